package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"referral-bot/internal/ledger"
	"referral-bot/internal/ledger/ledgertest"
	"referral-bot/internal/notify"
	"referral-bot/internal/presenter"
	"referral-bot/internal/referral"
)

type sent struct {
	userID int64
	text   string
}

type recorder struct {
	messages []sent
	err      error
	block    bool
}

func (r *recorder) Send(ctx context.Context, userID int64, text string) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, sent{userID, text})
	return nil
}

func TestNotifySendsRewardNotice(t *testing.T) {
	rec := &recorder{}
	n := notify.New(rec, presenter.New("", ""), time.Second, zap.NewNop())

	err := n.Notify(context.Background(), referral.Notice{ReferrerID: 7, ReferredName: "Bob", Amount: referral.Reward})
	require.NoError(t, err)
	assert.Equal(t, []sent{{7, "🎉 You earned $5.00 for referring Bob!"}}, rec.messages)
}

func TestNotifyTimesOut(t *testing.T) {
	rec := &recorder{block: true}
	n := notify.New(rec, presenter.New("", ""), 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	err := n.Notify(context.Background(), referral.Notice{ReferrerID: 7})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotifyFailureDoesNotUndoCredit(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{err: errors.New("bot was blocked by the user")}
	store := ledgertest.New(t)
	engine := referral.NewEngine(store, notify.New(rec, presenter.New("", ""), time.Second, zap.NewNop()), zap.NewNop())

	u1, err := engine.RegisterContact(ctx, 1, ledger.Profile{DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = engine.RegisterContact(ctx, 2, ledger.Profile{DisplayName: "Bob"})
	require.NoError(t, err)

	event, err := engine.LinkReferral(ctx, 2, u1.ReferralCode)
	require.NoError(t, err)
	require.NotNil(t, event)

	balance, err := engine.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "5.00", balance.StringFixed(2))
	assert.Empty(t, rec.messages)
}

func TestNotifyThroughEngine(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	store := ledgertest.New(t)
	engine := referral.NewEngine(store, notify.New(rec, presenter.New("", ""), time.Second, zap.NewNop()), zap.NewNop())

	u1, err := engine.RegisterContact(ctx, 1, ledger.Profile{})
	require.NoError(t, err)
	_, err = engine.RegisterContact(ctx, 2, ledger.Profile{Username: "bob"})
	require.NoError(t, err)

	_, err = engine.LinkReferral(ctx, 2, u1.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, []sent{{1, "🎉 You earned $5.00 for referring @bob!"}}, rec.messages)
}
