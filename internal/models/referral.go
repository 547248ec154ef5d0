package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralEvent records one credited referral. Rows are append-only.
type ReferralEvent struct {
	ID         uint            `gorm:"primaryKey"`
	ReferrerID int64           `gorm:"not null;index"`
	ReferredID int64           `gorm:"not null;uniqueIndex"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt  time.Time
}
