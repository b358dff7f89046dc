// internal/app/router.go
package app

import (
	"net/http"

	planHandler "entitlement-service/internal/handlers/plan"
	schedulerHandler "entitlement-service/internal/handlers/scheduler"
	subscriptionHandler "entitlement-service/internal/handlers/subscription"
	"entitlement-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	PlanHandler         *planHandler.PlanHandler
	// SchedulerHandler is nil when this process does not run the scheduler.
	SchedulerHandler *schedulerHandler.SchedulerHandler
	AuthMiddleware   *middleware.AuthMiddleware
	// WriteLimit throttles subscription writes; nil disables it.
	WriteLimit    gin.HandlerFunc
	WebhookSecret string
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Plans (public catalog) ====================
	plans := api.Group("/plans")
	{
		plans.GET("", h.PlanHandler.ListPackages)
		plans.GET("/:id", h.PlanHandler.GetPackage)
	}

	// ==================== Subscriptions ====================
	subs := api.Group("/subscriptions")
	subs.Use(h.AuthMiddleware.Auth())
	{
		subs.GET("/active", h.SubscriptionHandler.GetActiveStatus)
		subs.GET("/history", h.SubscriptionHandler.GetHistory)
		subs.GET("/stats", h.SubscriptionHandler.GetStats)
		subs.GET("/:id", h.SubscriptionHandler.GetSubscription)
	}

	writes := subs.Group("")
	if h.WriteLimit != nil {
		writes.Use(h.WriteLimit)
	}
	{
		writes.POST("", h.SubscriptionHandler.CreateSubscription)
		writes.POST("/trial", h.SubscriptionHandler.StartFreeTrial)
		writes.POST("/:id/cancel", h.SubscriptionHandler.CancelSubscription)
		writes.POST("/:id/renew", h.SubscriptionHandler.RenewSubscription)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.POST("/plans", h.PlanHandler.CreatePackage)
		admin.POST("/subscriptions/:id/confirm-payment", h.SubscriptionHandler.ConfirmPayment)
		admin.POST("/subscriptions/:id/extend", h.SubscriptionHandler.ExtendSubscription)
		admin.POST("/subscriptions/:id/suspend", h.SubscriptionHandler.SuspendSubscription)
		admin.GET("/contributors/:contributorId/subscriptions", h.SubscriptionHandler.GetContributorHistory)

		if h.SchedulerHandler != nil {
			jobs := admin.Group("/scheduler/jobs")
			jobs.GET("", h.SchedulerHandler.ListJobs)
			jobs.POST("/:name/start", h.SchedulerHandler.StartJob)
			jobs.POST("/:name/stop", h.SchedulerHandler.StopJob)
			jobs.POST("/:name/run", h.SchedulerHandler.RunJob)
		}
	}

	// ==================== Payment gateway callbacks ====================
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RequireSharedSecret(h.WebhookSecret))
	{
		webhooks.POST("/payments/confirm", h.SubscriptionHandler.ConfirmPaymentWebhook)
	}
}
