// cmd/scheduler runs the expiry sweep and near-expiry scan without the HTTP
// API. Run it alongside API instances started with SCHEDULER_ENABLED=false.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"entitlement-service/internal/app"
	"entitlement-service/internal/config"
	"entitlement-service/internal/pkg/clock"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[SCHEDULER] No .env file found, relying on system env vars")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	deps := app.Deps{
		Store:  store,
		Clock:  clock.New(),
		Logger: logger,
		Mailer: app.NewMailer(cfg),
	}
	services := app.NewServices(deps)

	redisClient, err := app.OpenRedis(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}

	sched, err := app.BuildScheduler(cfg, services.Subscriptions, redisClient, deps)
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", zap.Error(err))
		}
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("store close", zap.Error(err))
	}
	logger.Info("scheduler stopped")
}
