package gateway

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "numalloc:idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// IdempotencyGuard records request keys.
type IdempotencyGuard interface {
	// SetIdempotency records key and returns false if it was already recorded.
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency forgets key so that it can be used again.
	ClearIdempotency(ctx context.Context, key string) error
}

// RedisGuard is an IdempotencyGuard keeping keys in Redis for a day.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) SetIdempotency(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
}

func (g *RedisGuard) ClearIdempotency(ctx context.Context, key string) error {
	return g.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
