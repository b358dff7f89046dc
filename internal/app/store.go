// internal/app/store.go
package app

import (
	"context"
	"fmt"

	"entitlement-service/internal/config"
	"entitlement-service/internal/db"
	"entitlement-service/internal/repository"
	"entitlement-service/internal/repository/memory"
	"entitlement-service/internal/repository/mongodb"
	"entitlement-service/internal/repository/postgres"
	"entitlement-service/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OpenStore connects the configured backend and prepares its schema.
func OpenStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectDB(ctx, db.PostgresConfig{
			URL:           cfg.DatabaseURL,
			MaxConns:      int32(cfg.DBMaxConns),
			MinConns:      int32(cfg.DBMinConns),
			RetryAttempts: cfg.ConnectRetries,
			RetryInterval: cfg.ConnectBackoff,
		})
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("[POSTGRES] connected and migrated")
		return postgres.NewStore(pool), nil

	case config.DriverMongo:
		client, err := db.ConnectMongo(ctx, db.MongoConfig{
			URL:           cfg.MongoURL,
			Database:      cfg.MongoDB,
			RetryAttempts: cfg.ConnectRetries,
			RetryInterval: cfg.ConnectBackoff,
		})
		if err != nil {
			return nil, err
		}
		transactional, err := db.SupportsTransactions(ctx, client)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		mdb := mongodb.NewDB(client, cfg.MongoDB, transactional)
		if err := mdb.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		logger.Info("[MONGODB] connected",
			zap.String("database", cfg.MongoDB),
			zap.Bool("transactions", transactional),
		)
		return mongodb.NewStore(mdb), nil

	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(true).Repositories(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenRedis connects Redis when REDIS_ADDR is set and returns nil otherwise.
func OpenRedis(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, assuming a single instance without rate limits")
		return nil, nil
	}
	client, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("[REDIS] connected", zap.String("addr", cfg.RedisAddr))
	return client, nil
}

// BuildScheduler wires the lifecycle jobs. Runs are leased through Redis
// when a client is given.
func BuildScheduler(cfg config.AppConfig, engine scheduler.Engine, redisClient *redis.Client, deps Deps) (*scheduler.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var locker scheduler.Locker
	if redisClient != nil {
		locker = scheduler.NewRedisLocker(redisClient, "entitlements:jobs:", deps.Logger.Named("lease"))
	}

	return scheduler.New(engine, scheduler.Config{
		ExpirySweepSpec:    cfg.ExpirySweepSpec,
		NearExpiryScanSpec: cfg.NearExpiryScanSpec,
		Location:           loc,
		JobTimeout:         cfg.JobTimeout,
		LockTTL:            cfg.LockTTL,
		RunOnStart:         cfg.RunOnStart,
	}, locker, deps.Clock, deps.Logger.Named("scheduler"))
}
