package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLocker leases job runs through a Redis mutex so that only one
// instance executes a job at a time.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, prefix string, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix,
		logger: logger,
	}
}

// Acquire tries once. ok is false when another holder has the lease.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	mutex := l.rs.NewMutex(l.prefix+name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, false, nil
		}
		return nil, false, err
	}

	release := func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			l.logger.Warn("failed to release job lease", zap.String("lease", name), zap.Error(err))
		}
	}
	return release, true, nil
}
