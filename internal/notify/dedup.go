package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "fixhooks:notify:"

// DedupGuard records dispatch keys. Claim returns true the first time a
// key is seen within its retention window; Release forgets a key so the
// dispatch can be retried.
type DedupGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDedup keeps dispatch keys in Redis with a TTL.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedup creates a Redis-backed guard. A non-positive ttl defaults
// to 24 hours.
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{client: client, ttl: ttl}
}

func (g *RedisDedup) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, dedupKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming dedup key: %w", err)
	}
	return ok, nil
}

func (g *RedisDedup) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, dedupKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing dedup key: %w", err)
	}
	return nil
}
