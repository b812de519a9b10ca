package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed window counter shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.key(key)

	count64, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit incr failed: %w", err)
	}
	if count64 == 1 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("redis rate limit expire failed: %w", err)
		}
	}
	retryAfter, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit ttl failed: %w", err)
	}
	if retryAfter < 0 {
		// a crash between INCR and PEXPIRE leaves a key without a TTL
		_ = l.client.PExpire(ctx, k, l.window).Err()
		retryAfter = l.window
	}

	count := int(count64)
	if count > l.limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset failed: %w", err)
	}
	return nil
}

func (l *RedisLimiter) key(key string) string {
	return "ratelimit:" + key
}
