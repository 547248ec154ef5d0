package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-bot/internal/config"
	"referral-bot/internal/database/migrations"
)

// Connect opens the configured database and brings its schema up to date.
func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// SQLite works best with a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	log.Info("Connected to database", zap.String("driver", cfg.DBDriver))

	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(SQLiteDSN(cfg.SQLitePath)), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// SQLiteDSN appends the pragmas the ledger relies on: WAL for concurrent
// readers and a busy timeout so writers queue instead of failing.
func SQLiteDSN(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}
