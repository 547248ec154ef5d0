package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Get(ctx context.Context, userID int64) (string, bool, error)
	Set(ctx context.Context, userID int64, state string) error
}

func TestStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]store{
		"memory": NewMemory(),
		"redis":  NewRedis(client, 0),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.Get(ctx, 1)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, 1, "main_menu"))
			require.NoError(t, s.Set(ctx, 1, "withdraw_menu"))
			require.NoError(t, s.Set(ctx, 2, "earning_guide"))

			state, ok, err := s.Get(ctx, 1)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "withdraw_menu", state)

			state, _, err = s.Get(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, "earning_guide", state)
		})
	}
}

func TestRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedis(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, 9, "main_menu"))
	mr.FastForward(2 * time.Hour)

	_, ok, err := s.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, _, err := NewRedis(client, 0).Get(context.Background(), 1)
	assert.Error(t, err)
}
