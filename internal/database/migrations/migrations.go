package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"referral-bot/internal/models"
)

// Run applies every pending migration in order.
func Run(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, list())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("could not migrate: %w", err)
	}
	return nil
}

func list() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createLedgerTables(),
		addReferrerTimeIndex(),
	}
}

func createLedgerTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202610150001_create_ledger_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.User{}, &models.ReferralEvent{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.ReferralEvent{}, &models.User{})
		},
	}
}

func addReferrerTimeIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202610150002_referral_events_referrer_time",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec("CREATE INDEX IF NOT EXISTS idx_referral_events_referrer_time ON referral_events(referrer_id, created_at)").Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP INDEX IF EXISTS idx_referral_events_referrer_time").Error
		},
	}
}
