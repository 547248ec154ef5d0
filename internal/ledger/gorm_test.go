package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-bot/internal/ledger"
	"referral-bot/internal/ledger/ledgertest"
)

func TestCreateUserIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)

	first, err := store.CreateUserIfAbsent(ctx, 42, ledger.Profile{Username: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	require.Len(t, first.ReferralCode, 8)
	assert.True(t, first.Balance.IsZero())
	assert.Nil(t, first.ReferredBy)

	second, err := store.CreateUserIfAbsent(ctx, 42, ledger.Profile{Username: "alice_new", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)
	assert.Equal(t, "alice_new", second.Username)

	stored, err := store.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, first.ReferralCode, stored.ReferralCode)
	assert.Equal(t, "alice_new", stored.Username)
}

func TestReferralCodesAreUnique(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)

	const n = 50
	seen := make(map[string]bool, n)
	for i := int64(1); i <= n; i++ {
		user, err := store.CreateUserIfAbsent(ctx, i, ledger.Profile{DisplayName: fmt.Sprint("user", i)})
		require.NoError(t, err)
		assert.False(t, seen[user.ReferralCode], "duplicate code %s", user.ReferralCode)
		seen[user.ReferralCode] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateUserRegeneratesCollidingCode(t *testing.T) {
	ctx := context.Background()
	codes := []string{"AAAA0001", "AAAA0001", "BBBB0002"}
	var mu sync.Mutex
	gen := func() string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		codes = codes[1:]
		return code
	}
	store := ledgertest.New(t, ledger.WithCodeGenerator(gen))

	u1, err := store.CreateUserIfAbsent(ctx, 1, ledger.Profile{})
	require.NoError(t, err)
	u2, err := store.CreateUserIfAbsent(ctx, 2, ledger.Profile{})
	require.NoError(t, err)

	assert.Equal(t, "AAAA0001", u1.ReferralCode)
	assert.Equal(t, "BBBB0002", u2.ReferralCode)
}

func TestCreateUserGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t, ledger.WithCodeGenerator(func() string { return "SAMECODE" }))

	_, err := store.CreateUserIfAbsent(ctx, 1, ledger.Profile{})
	require.NoError(t, err)

	_, err = store.CreateUserIfAbsent(ctx, 2, ledger.Profile{})
	assert.ErrorIs(t, err, ledger.ErrCodeExhausted)

	_, err = store.GetUser(ctx, 2)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLookupsReportNotFound(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)

	_, err := store.GetUser(ctx, 7)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = store.FindByCode(ctx, "NOPE0000")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = store.AdjustBalance(ctx, 7, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAdjustBalanceAllowsNegative(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)
	_, err := store.CreateUserIfAbsent(ctx, 1, ledger.Profile{})
	require.NoError(t, err)

	bal, err := store.AdjustBalance(ctx, 1, decimal.RequireFromString("5.00"))
	require.NoError(t, err)
	assert.Equal(t, "5.00", bal.StringFixed(2))

	bal, err = store.AdjustBalance(ctx, 1, decimal.RequireFromString("-12.50"))
	require.NoError(t, err)
	assert.Equal(t, "-7.50", bal.StringFixed(2))
}

func TestAdjustBalanceConcurrent(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)
	_, err := store.CreateUserIfAbsent(ctx, 1, ledger.Profile{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AdjustBalance(ctx, 1, decimal.NewFromInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "20.00", user.Balance.StringFixed(2))
}

func TestSetReferredByIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)
	_, err := store.CreateUserIfAbsent(ctx, 1, ledger.Profile{})
	require.NoError(t, err)

	ok, err := store.SetReferredBy(ctx, 1, "FIRST000")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetReferredBy(ctx, 1, "SECOND00")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, user.ReferredBy)
	assert.Equal(t, "FIRST000", *user.ReferredBy)
}

func TestAggregateFor(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)

	agg, err := store.AggregateFor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.Count)
	assert.True(t, agg.Total.IsZero())

	for referred := int64(10); referred < 13; referred++ {
		_, err := store.AppendReferralEvent(ctx, 1, referred, decimal.RequireFromString("5.00"))
		require.NoError(t, err)
	}
	_, err = store.AppendReferralEvent(ctx, 2, 20, decimal.RequireFromString("5.00"))
	require.NoError(t, err)

	agg, err = store.AggregateFor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count)
	assert.Equal(t, "15.00", agg.Total.StringFixed(2))
}

func TestAppendReferralEventRejectsSecondEventForReferredUser(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)

	_, err := store.AppendReferralEvent(ctx, 1, 10, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = store.AppendReferralEvent(ctx, 2, 10, decimal.NewFromInt(5))
	assert.Error(t, err)
}

func TestTransactRollsBack(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)
	_, err := store.CreateUserIfAbsent(ctx, 1, ledger.Profile{})
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = store.Transact(ctx, func(tx ledger.Store) error {
		if _, err := tx.AdjustBalance(ctx, 1, decimal.NewFromInt(5)); err != nil {
			return err
		}
		if _, err := tx.SetReferredBy(ctx, 1, "ROLLBACK"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	user, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.IsZero())
	assert.Nil(t, user.ReferredBy)
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New(t)
	for id := int64(1); id <= 3; id++ {
		_, err := store.CreateUserIfAbsent(ctx, id, ledger.Profile{})
		require.NoError(t, err)
	}
	_, err := store.AdjustBalance(ctx, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = store.AppendReferralEvent(ctx, 1, 2, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = store.AppendReferralEvent(ctx, 1, 3, decimal.NewFromInt(5))
	require.NoError(t, err)

	totals, err := store.Totals(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Users)
	assert.Equal(t, int64(3), totals.NewUsers)
	assert.Equal(t, int64(2), totals.Referrals)
	assert.Equal(t, "10.00", totals.RewardsPaid.StringFixed(2))
	assert.Equal(t, "10.00", totals.Outstanding.StringFixed(2))

	totals, err = store.Totals(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.NewUsers)
}

func TestPing(t *testing.T) {
	assert.NoError(t, ledgertest.New(t).Ping(context.Background()))
}
