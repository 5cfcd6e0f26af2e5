package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAttemptLimiter is a fixed-window counter shared by every instance
// pointing at the same Redis. The window is anchored at the first attempt by
// the key's expiry.
type RedisAttemptLimiter struct {
	redis  redis.UniversalClient
	config AttemptConfig
	prefix string
}

func NewRedisAttemptLimiter(redisClient redis.UniversalClient, prefix string, cfg AttemptConfig) *RedisAttemptLimiter {
	if prefix == "" {
		prefix = "rrl"
	}
	return &RedisAttemptLimiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

func (l *RedisAttemptLimiter) Allow(ctx context.Context, key string, _ time.Time) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}

	redisKey := l.prefix + ":" + key

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.PExpire(ctx, redisKey, l.config.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}

	if count <= int64(l.config.MaxAttempts) {
		return Decision{Allowed: true}, nil
	}

	ttl, err := l.redis.PTTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if ttl < 0 {
		// Key lost its expiry; restart the window so it cannot lock forever.
		if err := l.redis.PExpire(ctx, redisKey, l.config.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
		ttl = l.config.Window
	}

	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// SweepExpired is a no-op; counters expire with their keys.
func (l *RedisAttemptLimiter) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
