package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 30
	defaultWindow      = time.Minute
)

var (
	ErrAttemptsRateLimited = errors.New("verification attempts rate limited")
	ErrAttemptsUnavailable = errors.New("attempt limiter unavailable")
)

// AttemptLimiterConfig holds thresholds for the attempt limiter.
type AttemptLimiterConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// AttemptLimiter counts verification attempts per network address.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	window      time.Duration
}

// NewAttemptLimiter creates a limiter. Zero-value fields in cfg fall back to
// 30 attempts per minute.
func NewAttemptLimiter(redisClient redis.UniversalClient, prefix string, cfg AttemptLimiterConfig) *AttemptLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	w := cfg.Window
	if w <= 0 {
		w = defaultWindow
	}
	if prefix == "" {
		prefix = "gs"
	}
	return &AttemptLimiter{redis: redisClient, prefix: prefix, maxAttempts: int64(max), window: w}
}

func (l *AttemptLimiter) key(addr string) string {
	return l.prefix + ":att:" + addr
}

// Hit counts one attempt from addr and returns ErrAttemptsRateLimited once
// the window's budget is spent.
func (l *AttemptLimiter) Hit(ctx context.Context, addr string) error {
	if l == nil || l.redis == nil || addr == "" {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(addr)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(addr), l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
		}
	}
	if count > l.maxAttempts {
		return ErrAttemptsRateLimited
	}
	return nil
}

// Reset clears the counter for addr.
func (l *AttemptLimiter) Reset(ctx context.Context, addr string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(addr)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}
