package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the login throttle budget.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter counts login attempts per client IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// AllowLogin records one attempt from ip and returns ErrRateLimited when the
// window budget is exceeded. An empty ip is never throttled.
func (l *Limiter) AllowLogin(ctx context.Context, ip string) error {
	if l == nil || ip == "" || l.config.MaxAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Attempts returns the counter for ip in the current window.
func (l *Limiter) Attempts(ctx context.Context, ip string) (int, error) {
	count, err := l.redis.Get(ctx, loginIPKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func loginIPKey(ip string) string {
	return "sa:login:ip:" + ip
}
