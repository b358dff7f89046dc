// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"entitlement-service/internal/config"
	planHandler "entitlement-service/internal/handlers/plan"
	schedulerHandler "entitlement-service/internal/handlers/scheduler"
	subscriptionHandler "entitlement-service/internal/handlers/subscription"
	"entitlement-service/internal/middleware"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/pkg/jwt"
	"entitlement-service/internal/pkg/ratelimit"
	"entitlement-service/internal/repository"
	"entitlement-service/internal/scheduler"
	"entitlement-service/internal/service/email"
	historyUsecase "entitlement-service/internal/service/history"
	notifyUsecase "entitlement-service/internal/service/notification"
	planUsecase "entitlement-service/internal/service/plan"
	subscriptionUsecase "entitlement-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the process-wide collaborators every service is built from.
type Deps struct {
	Store  *repository.Store
	Clock  clock.Clock
	Logger *zap.Logger
	// Mailer may be nil; reminders are then only logged.
	Mailer notifyUsecase.Mailer
}

type Services struct {
	Subscriptions *subscriptionUsecase.SubscriptionService
	Plans         *planUsecase.PlanService
	History       *historyUsecase.HistoryService
	Reminders     *notifyUsecase.ReminderService
}

func NewServices(d Deps) *Services {
	reminders := notifyUsecase.NewReminderService(d.Store, d.Mailer, d.Logger.Named("reminders"))
	return &Services{
		Subscriptions: subscriptionUsecase.NewSubscriptionService(d.Store, reminders, d.Clock, d.Logger.Named("subscriptions")),
		Plans:         planUsecase.NewPlanService(d.Store.Plans, d.Clock, d.Logger.Named("plans")),
		History:       historyUsecase.NewHistoryService(d.Store.Subscriptions),
		Reminders:     reminders,
	}
}

// NewMailer returns the SMTP sender, or nil when SMTP_HOST is unset.
func NewMailer(cfg config.AppConfig) notifyUsecase.Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	return email.NewEmailSender(
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.SMTPFromName,
		cfg.SMTPSecure,
	)
}

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server

	store     *repository.Store
	redis     *redis.Client
	scheduler *scheduler.Scheduler
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Init connects the backends and builds the HTTP stack. It must succeed
// before Start.
func (s *Server) Init(ctx context.Context) error {
	store, err := OpenStore(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", s.cfg.StoreDriver, err)
	}
	s.store = store

	// ----- JWT Verifier -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	deps := Deps{
		Store:  store,
		Clock:  clock.New(),
		Logger: s.logger,
		Mailer: NewMailer(s.cfg),
	}
	if deps.Mailer == nil {
		s.logger.Warn("SMTP_HOST not set, expiration reminders will only be logged")
	}
	services := NewServices(deps)

	// ----- Redis (optional) -----
	redisClient, err := OpenRedis(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redis = redisClient

	var writeLimit gin.HandlerFunc
	if redisClient != nil {
		limiter := ratelimit.NewLimiter(redisClient, "entitlements:ratelimit:")
		writeLimit = middleware.RateLimit(limiter, "subscription-writes", int64(s.cfg.WriteRateLimit), s.cfg.WriteRateWindow, s.logger)
	}

	// ----- Scheduler -----
	var schedHandler *schedulerHandler.SchedulerHandler
	if s.cfg.SchedulerEnabled {
		sched, err := BuildScheduler(s.cfg, services.Subscriptions, redisClient, deps)
		if err != nil {
			return fmt.Errorf("failed to build scheduler: %w", err)
		}
		s.scheduler = sched
		schedHandler = schedulerHandler.NewSchedulerHandler(sched)
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(s.cfg.CORSOrigins...),
	)

	// ----- Router -----
	SetupRouter(s.engine, &Handlers{
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(services.Subscriptions, services.History),
		PlanHandler:         planHandler.NewPlanHandler(services.Plans),
		SchedulerHandler:    schedHandler,
		AuthMiddleware:      middleware.NewAuthMiddleware(jwtManager.Verifier),
		WriteLimit:          writeLimit,
		WebhookSecret:       s.cfg.WebhookSecret,
	})

	s.http = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Start launches the scheduler and blocks serving HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.http == nil {
		return errors.New("server not initialised")
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for running jobs and closes the
// backends, all bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.store != nil && s.store.Close != nil {
		if err := s.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	return errors.Join(errs...)
}
