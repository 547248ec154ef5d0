package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis returns a redis Locker. ttl bounds how long a crashed holder can
// keep a key locked.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: "lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	key = r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Join(ErrNotAcquired, ctxErr)
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
		})
	}, nil
}
