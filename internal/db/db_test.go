package db_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/db"
)

func openTemp(t *testing.T) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "vbs_test.db") +
		"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	gdb, err := db.Open("sqlite", dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck
	return sqlDB
}

// TestWALMode verifies that the default DSN parameters enable WAL journal mode.
func TestWALMode(t *testing.T) {
	sqlDB := openTemp(t)

	var mode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected journal_mode=wal, got %q", mode)
	}
}

// TestOpen_SingleConnection verifies the SQLite pool is capped at one
// connection, which is what serializes concurrent finalizations.
func TestOpen_SingleConnection(t *testing.T) {
	sqlDB := openTemp(t)
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections: want 1, got %d", got)
	}
}

// TestOpen_CreatesIndexes verifies that Migrate creates the composite indexes
// GORM does not derive from struct tags.
func TestOpen_CreatesIndexes(t *testing.T) {
	sqlDB := openTemp(t)

	if found := indexNames(t, sqlDB, "registrations"); !found["idx_reg_status"] {
		t.Errorf("index idx_reg_status missing from registrations; found: %v", found)
	}
	if found := indexNames(t, sqlDB, `"groups"`); !found["idx_groups_order"] {
		t.Errorf("index idx_groups_order missing from groups; found: %v", found)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := db.Open("mysql", "", zap.NewNop()); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func indexNames(t *testing.T, sqlDB *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := sqlDB.Query("PRAGMA index_list(" + table + ")")
	if err != nil {
		t.Fatalf("PRAGMA index_list: %v", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var seq int
		var name string
		var unique bool
		var origin, partial string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out[name] = true
	}
	return out
}
