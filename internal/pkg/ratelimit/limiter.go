// internal/pkg/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter kept in Redis, so every instance shares
// the same budget.
type Limiter struct {
	client *redis.Client
	prefix string
}

func NewLimiter(client *redis.Client, prefix string) *Limiter {
	return &Limiter{client: client, prefix: prefix}
}

// Allow counts one hit for subject on action and reports whether it is still
// within max for the current window.
func (l *Limiter) Allow(ctx context.Context, subject, action string, max int64, window time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%s:%s", l.prefix, action, subject)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Only the first hit of a window sets the expiry.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return incr.Val() <= max, nil
}

// Remaining reports how many hits subject has left on action.
func (l *Limiter) Remaining(ctx context.Context, subject, action string, max int64) (int64, error) {
	key := fmt.Sprintf("%s%s:%s", l.prefix, action, subject)
	count, err := l.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return max, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit: %w", err)
	}
	if remaining := max - count; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// Reset clears subject's counter for action.
func (l *Limiter) Reset(ctx context.Context, subject, action string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s%s:%s", l.prefix, action, subject)).Err()
}
