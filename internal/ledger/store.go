// Package ledger is the durable record of users and referral events.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"referral-bot/internal/models"
)

var (
	ErrNotFound = errors.New("ledger: not found")
	// ErrCodeExhausted means every generated referral code collided. The
	// caller may retry the whole request.
	ErrCodeExhausted = errors.New("ledger: could not allocate a unique referral code")
)

// Profile holds the informational fields refreshed on each observed update.
type Profile struct {
	Username    string
	DisplayName string
}

// Aggregate summarizes the referral events of one referrer.
type Aggregate struct {
	Count int64
	Total decimal.Decimal
}

// Totals summarizes the whole ledger for operators.
type Totals struct {
	Users       int64
	NewUsers    int64
	Referrals   int64
	RewardsPaid decimal.Decimal
	Outstanding decimal.Decimal
}

// Store is the ledger contract. Every mutation is durable before it returns.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindByCode(ctx context.Context, code string) (*models.User, error)
	CreateUserIfAbsent(ctx context.Context, id int64, p Profile) (*models.User, error)
	AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
	// SetReferredBy succeeds only while the user has no referrer. It
	// returns false when one is already set.
	SetReferredBy(ctx context.Context, id int64, code string) (bool, error)
	AppendReferralEvent(ctx context.Context, referrerID, referredID int64, amount decimal.Decimal) (*models.ReferralEvent, error)
	AggregateFor(ctx context.Context, referrerID int64) (Aggregate, error)
	Totals(ctx context.Context, since time.Time) (Totals, error)
	// Transact runs fn against a store bound to a single transaction.
	// Returning an error from fn rolls everything back.
	Transact(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}
