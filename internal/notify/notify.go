// Package notify delivers referral notices to users.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"referral-bot/internal/referral"
)

// Messenger sends a plain text message to a user.
type Messenger interface {
	Send(ctx context.Context, userID int64, text string) error
}

type Formatter interface {
	RewardNotice(n referral.Notice) string
}

type Notifier struct {
	messenger Messenger
	format    Formatter
	timeout   time.Duration
	logger    *zap.Logger
}

func New(messenger Messenger, format Formatter, timeout time.Duration, logger *zap.Logger) *Notifier {
	return &Notifier{
		messenger: messenger,
		format:    format,
		timeout:   timeout,
		logger:    logger.Named("notify"),
	}
}

// Notify sends the reward notice to the referrer. The send is bounded by the
// configured timeout even if ctx has none.
func (n *Notifier) Notify(ctx context.Context, notice referral.Notice) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	if err := n.messenger.Send(ctx, notice.ReferrerID, n.format.RewardNotice(notice)); err != nil {
		return fmt.Errorf("notify user %d: %w", notice.ReferrerID, err)
	}
	n.logger.Debug("Reward notice sent", zap.Int64("user_id", notice.ReferrerID))
	return nil
}
