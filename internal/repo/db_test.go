package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpenSQLite_PragmasOnEveryConnection_AndAutoMigrate(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// Pin two connections at once so the check is not satisfied by a single
	// lucky connection.
	conns := make([]*gorm.DB, 0, 2)
	for i := 0; i < 2; i++ {
		tx := db.Begin()
		if tx.Error != nil {
			t.Fatalf("begin: %v", tx.Error)
		}
		conns = append(conns, tx)
	}
	for i, tx := range conns {
		var fkOn, busyMS int
		var journal string
		if err := tx.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil || fkOn != 1 {
			t.Fatalf("conn %d: foreign_keys=%d err=%v", i, fkOn, err)
		}
		if err := tx.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil || busyMS != 5000 {
			t.Fatalf("conn %d: busy_timeout=%d err=%v", i, busyMS, err)
		}
		if err := tx.Raw("PRAGMA journal_mode;").Row().Scan(&journal); err != nil || strings.ToLower(journal) != "wal" {
			t.Fatalf("conn %d: journal_mode=%q err=%v", i, journal, err)
		}
		tx.Rollback()
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.User{}, &domain.RevokedToken{}, &domain.Category{}, &domain.Group{},
		&domain.Product{}, &domain.Image{}, &domain.Comment{}, &domain.AttributeKey{},
		&domain.AttributeValue{}, &domain.ProductAttribute{}, &domain.ProductLike{}, &domain.Idempotency{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if m.HasColumn(&domain.Product{}, "avg_rating") {
		t.Fatalf("avg_rating must not be a stored column")
	}
}

func TestInstrument(t *testing.T) {
	db := newTestDB(t)
	if err := Instrument(db); err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if _, err := ListCategories(context.Background(), db); err != nil {
		t.Fatalf("query after instrumentation: %v", err)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string, string) (*gorm.DB, error) = Open
