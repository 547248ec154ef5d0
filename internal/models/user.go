package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a chat participant keyed by their chat-platform identity.
// ReferralCode is assigned once on creation and never changes; ReferredBy is
// set at most once.
type User struct {
	UserID       int64           `gorm:"primaryKey;autoIncrement:false"`
	Username     string          `gorm:"size:255"`
	DisplayName  string          `gorm:"size:255"`
	ReferralCode string          `gorm:"size:32;uniqueIndex;not null"`
	Balance      decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	ReferredBy   *string         `gorm:"size:32;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
