package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps states in redis so they survive restarts and are shared by
// replicas. A zero ttl keeps them forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func (r *Redis) Get(ctx context.Context, userID int64) (string, bool, error) {
	state, err := r.client.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session of user %d: %w", userID, err)
	}
	return state, true, nil
}

func (r *Redis) Set(ctx context.Context, userID int64, state string) error {
	if err := r.client.Set(ctx, key(userID), state, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session of user %d: %w", userID, err)
	}
	return nil
}
