// Package referral awards credits for referrals and reports on them.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"referral-bot/internal/ledger"
	"referral-bot/internal/models"
)

var (
	// Reward is credited to a referrer once per referred user.
	Reward = decimal.RequireFromString("5.00")
	// MinWithdrawal is shown to users; withdrawals are handled manually by
	// an operator and the amount is not enforced here.
	MinWithdrawal = decimal.RequireFromString("10.00")
)

// Notice tells a referrer about a credited referral.
type Notice struct {
	ReferrerID   int64
	ReferredName string
	Amount       decimal.Decimal
}

// Notifier delivers notices. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

type Stats struct {
	ReferralCode   string
	TotalReferrals int64
	TotalEarnings  decimal.Decimal
}

type Engine struct {
	store    ledger.Store
	notifier Notifier
	logger   *zap.Logger
}

func NewEngine(store ledger.Store, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger.Named("referral"),
	}
}

// RegisterContact makes sure a user exists, refreshing the profile fields
// of an existing one.
func (e *Engine) RegisterContact(ctx context.Context, id int64, p ledger.Profile) (*models.User, error) {
	return e.store.CreateUserIfAbsent(ctx, id, p)
}

// LinkReferral records that newUserID was referred by the owner of code and
// credits the referrer. Unknown codes, a user's own code and users that
// already have a referrer are ignored: the result is nil with no error.
// The referred user must already exist.
func (e *Engine) LinkReferral(ctx context.Context, newUserID int64, code string) (*models.ReferralEvent, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}

	referrer, err := e.store.FindByCode(ctx, code)
	if errors.Is(err, ledger.ErrNotFound) {
		e.logger.Debug("Ignoring unknown referral code", zap.Int64("user_id", newUserID), zap.String("code", code))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if referrer.UserID == newUserID {
		e.logger.Debug("Ignoring self-referral", zap.Int64("user_id", newUserID))
		return nil, nil
	}

	var (
		event    *models.ReferralEvent
		referred *models.User
	)
	err = e.store.Transact(ctx, func(tx ledger.Store) error {
		var err error
		referred, err = tx.GetUser(ctx, newUserID)
		if err != nil {
			return err
		}

		linked, err := tx.SetReferredBy(ctx, newUserID, code)
		if err != nil || !linked {
			return err
		}

		if _, err := tx.AdjustBalance(ctx, referrer.UserID, Reward); err != nil {
			return err
		}
		event, err = tx.AppendReferralEvent(ctx, referrer.UserID, newUserID, Reward)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("link referral of user %d: %w", newUserID, err)
	}
	if event == nil {
		e.logger.Debug("User already referred", zap.Int64("user_id", newUserID))
		return nil, nil
	}

	e.logger.Info("Referral credited",
		zap.Int64("referrer_id", referrer.UserID),
		zap.Int64("referred_id", newUserID),
		zap.String("amount", event.Amount.StringFixed(2)))

	e.notify(ctx, Notice{
		ReferrerID:   referrer.UserID,
		ReferredName: displayName(referred),
		Amount:       event.Amount,
	})
	return event, nil
}

func (e *Engine) notify(ctx context.Context, n Notice) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("Could not notify referrer", zap.Int64("referrer_id", n.ReferrerID), zap.Error(err))
	}
}

func (e *Engine) GetStats(ctx context.Context, userID int64) (Stats, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	agg, err := e.store.AggregateFor(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ReferralCode:   user.ReferralCode,
		TotalReferrals: agg.Count,
		TotalEarnings:  agg.Total,
	}, nil
}

func (e *Engine) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// AdjustBalance applies an operator correction, such as a processed
// withdrawal. No floor is enforced.
func (e *Engine) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	balance, err := e.store.AdjustBalance(ctx, userID, delta)
	if err != nil {
		return decimal.Zero, err
	}
	e.logger.Info("Balance adjusted",
		zap.Int64("user_id", userID),
		zap.String("delta", delta.StringFixed(2)),
		zap.String("balance", balance.StringFixed(2)))
	return balance, nil
}

func displayName(u *models.User) string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return "@" + u.Username
	default:
		return fmt.Sprintf("user %d", u.UserID)
	}
}
