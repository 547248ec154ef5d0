// Package ledgertest provides a migrated SQLite ledger for tests.
package ledgertest

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-bot/internal/database"
	"referral-bot/internal/database/migrations"
	"referral-bot/internal/ledger"
)

// Open returns a migrated gorm handle on a fresh SQLite file in t.TempDir.
// The connection is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := database.SQLiteDSN(filepath.Join(t.TempDir(), "ledger.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// New returns a GormStore over Open(t).
func New(t testing.TB, opts ...ledger.Option) *ledger.GormStore {
	t.Helper()
	return ledger.NewGormStore(Open(t), opts...)
}
