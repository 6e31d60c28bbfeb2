package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/vbs/internal/db"
	"github.com/lojf/vbs/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "vbs_test.db") +
		"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	conn, err := db.Open("sqlite", dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

// seedRegistration stores a registration with one child per grade.
func seedRegistration(t *testing.T, conn *gorm.DB, status string, grades ...string) models.Registration {
	t.Helper()
	reg := models.Registration{
		Code:         GenerateCode(),
		GuardianName: "Test Guardian",
		Email:        "guardian@example.org",
		Status:       status,
	}
	for i, g := range grades {
		reg.Children = append(reg.Children, models.Child{
			FirstName: "Kid",
			LastName:  string(rune('A' + i)),
			Grade:     g,
		})
	}
	if err := conn.Create(&reg).Error; err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	return reg
}

func seedGroups(t *testing.T, conn *gorm.DB, names ...string) []models.Group {
	t.Helper()
	gs := make([]models.Group, len(names))
	for i, n := range names {
		gs[i] = models.Group{Name: n, SortOrder: i}
		if err := conn.Create(&gs[i]).Error; err != nil {
			t.Fatalf("seed group: %v", err)
		}
	}
	return gs
}

func groupOf(t *testing.T, conn *gorm.DB, childID uint) *uint {
	t.Helper()
	var c models.Child
	if err := conn.First(&c, childID).Error; err != nil {
		t.Fatalf("load child %d: %v", childID, err)
	}
	return c.GroupID
}

func reload(t *testing.T, conn *gorm.DB, id uint) models.Registration {
	t.Helper()
	var reg models.Registration
	if err := conn.First(&reg, id).Error; err != nil {
		t.Fatalf("reload registration %d: %v", id, err)
	}
	return reg
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string // registration codes
	err  error
}

func (f *fakeNotifier) SendConfirmation(_ context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, reg.Code)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
