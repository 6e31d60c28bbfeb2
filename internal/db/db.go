package db

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lojf/vbs/internal/models"
)

// Open connects to the configured store and migrates it.
//
// Finalization depends on an exclusive read-then-write per registration row.
// Postgres provides that with SELECT ... FOR UPDATE. SQLite has no row locks,
// so its pool is capped at one connection and transactions run one at a time.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Errorf("db: unsupported driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "db: open %s", driver)
	}

	if driver == "sqlite" {
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	log.Info("database ready", zap.String("driver", driver))
	return conn, nil
}

// Migrate creates the tables and the composite indexes GORM doesn't derive
// from struct tags.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Registration{},
		&models.Child{},
		&models.Group{},
		&models.Volunteer{},
	); err != nil {
		return errors.Wrap(err, "auto-migrate failed")
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_reg_status ON registrations(status)",
		`CREATE INDEX IF NOT EXISTS idx_groups_order ON "groups"(sort_order, id)`,
	} {
		if err := conn.Exec(stmt).Error; err != nil {
			return errors.Wrapf(err, "db: %s", stmt)
		}
	}
	return nil
}

func Close(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
