// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"context"
	"net/http"

	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/middleware"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Lifecycle is the lifecycle engine surface the handler drives.
type Lifecycle interface {
	CreateSubscription(ctx context.Context, contributorID string, req *subscription.CreateSubscriptionRequest) (*subscription.Subscription, error)
	ConfirmPayment(ctx context.Context, subscriptionID string, conf *subscription.PaymentConfirmation) (*subscription.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) (*subscription.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	ExtendSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	StartFreeTrial(ctx context.Context, contributorID, packageID string) (*subscription.Subscription, error)
	SuspendSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error)
	GetActiveStatus(ctx context.Context, contributorID string) (*subscription.ActiveStatus, error)
}

// History is the reporting view surface.
type History interface {
	GetHistory(ctx context.Context, contributorID string, filters subscription.SubscriptionListFilters) (*subscription.SubscriptionListResponse, error)
	GetStats(ctx context.Context, contributorID string) (*subscription.SubscriptionStats, error)
}

type SubscriptionHandler struct {
	lifecycle Lifecycle
	history   History
}

func NewSubscriptionHandler(lifecycle Lifecycle, history History) *SubscriptionHandler {
	return &SubscriptionHandler{
		lifecycle: lifecycle,
		history:   history,
	}
}

// ========== Contributor Endpoints ==========

// CreateSubscription starts a PENDING subscription awaiting payment
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	contributorID := middleware.MustGetContributorID(c)

	var req subscription.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.lifecycle.CreateSubscription(c.Request.Context(), contributorID, &req)
	if err != nil {
		response.FromError(c, "failed to create subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription created successfully", result)
}

// StartFreeTrial activates the package's free trial
func (h *SubscriptionHandler) StartFreeTrial(c *gin.Context) {
	contributorID := middleware.MustGetContributorID(c)

	var req subscription.StartTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.lifecycle.StartFreeTrial(c.Request.Context(), contributorID, req.PackageID)
	if err != nil {
		response.FromError(c, "failed to start free trial", err)
		return
	}

	response.Success(c, http.StatusCreated, "free trial started", result)
}

// ConfirmPayment activates a PENDING subscription. Admin only; gateways use
// ConfirmPaymentWebhook.
func (h *SubscriptionHandler) ConfirmPayment(c *gin.Context) {
	sub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req subscription.PaymentConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.lifecycle.ConfirmPayment(c.Request.Context(), sub.ID, &req)
	if err != nil {
		response.FromError(c, "failed to confirm payment", err)
		return
	}

	response.Success(c, http.StatusOK, "payment confirmed", result)
}

// CancelSubscription cancels a PENDING or ACTIVE subscription
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	sub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req subscription.CancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, "invalid request", err)
			return
		}
	}

	result, err := h.lifecycle.CancelSubscription(c.Request.Context(), sub.ID, req.Reason)
	if err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", result)
}

// RenewSubscription buys the same package again
func (h *SubscriptionHandler) RenewSubscription(c *gin.Context) {
	sub, ok := h.authorize(c)
	if !ok {
		return
	}

	result, err := h.lifecycle.RenewSubscription(c.Request.Context(), sub.ID)
	if err != nil {
		response.FromError(c, "failed to renew subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "renewal created", result)
}

// ExtendSubscription pushes an ACTIVE subscription's end date by one period.
// Admin only.
func (h *SubscriptionHandler) ExtendSubscription(c *gin.Context) {
	sub, ok := h.authorize(c)
	if !ok {
		return
	}

	result, err := h.lifecycle.ExtendSubscription(c.Request.Context(), sub.ID)
	if err != nil {
		response.FromError(c, "failed to extend subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription extended", result)
}

// GetSubscription retrieves a subscription by ID
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	sub, ok := h.authorize(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// GetActiveStatus returns the caller's entitlements and active subscription
func (h *SubscriptionHandler) GetActiveStatus(c *gin.Context) {
	contributorID := middleware.MustGetContributorID(c)

	result, err := h.lifecycle.GetActiveStatus(c.Request.Context(), contributorID)
	if err != nil {
		response.FromError(c, "failed to get subscription status", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription status retrieved", result)
}

// GetHistory lists the caller's subscriptions, newest first
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	contributorID := middleware.MustGetContributorID(c)

	var filters subscription.SubscriptionListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}
	if filters.Status != nil && !filters.Status.Valid() {
		response.ValidationError(c, "invalid query parameters", xerrors.Invalid("unknown status %q", *filters.Status))
		return
	}

	result, err := h.history.GetHistory(c.Request.Context(), contributorID, filters)
	if err != nil {
		response.FromError(c, "failed to get subscription history", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription history retrieved", result)
}

// GetStats summarises the caller's subscriptions
func (h *SubscriptionHandler) GetStats(c *gin.Context) {
	contributorID := middleware.MustGetContributorID(c)

	result, err := h.history.GetStats(c.Request.Context(), contributorID)
	if err != nil {
		response.FromError(c, "failed to get subscription stats", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription stats retrieved", result)
}

// ========== Admin Endpoints ==========

// SuspendSubscription suspends an ACTIVE subscription
func (h *SubscriptionHandler) SuspendSubscription(c *gin.Context) {
	result, err := h.lifecycle.SuspendSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to suspend subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription suspended", result)
}

// GetContributorHistory lists any contributor's subscriptions
func (h *SubscriptionHandler) GetContributorHistory(c *gin.Context) {
	var filters subscription.SubscriptionListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.history.GetHistory(c.Request.Context(), c.Param("contributorId"), filters)
	if err != nil {
		response.FromError(c, "failed to get subscription history", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription history retrieved", result)
}

// ========== Payment Gateway ==========

// ConfirmPaymentWebhook is the gateway callback. The route is guarded by a
// shared secret rather than a user token.
func (h *SubscriptionHandler) ConfirmPaymentWebhook(c *gin.Context) {
	var req subscription.WebhookConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.lifecycle.ConfirmPayment(c.Request.Context(), req.SubscriptionID, &subscription.PaymentConfirmation{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Metadata:      req.Metadata,
	})
	if err != nil {
		response.FromError(c, "failed to confirm payment", err)
		return
	}

	response.Success(c, http.StatusOK, "payment confirmed", result)
}

// authorize loads the :id subscription and checks the caller owns it or is
// an admin. Foreign subscriptions are reported as missing.
func (h *SubscriptionHandler) authorize(c *gin.Context) (*subscription.Subscription, bool) {
	contributorID := middleware.MustGetContributorID(c)
	id := c.Param("id")

	sub, err := h.lifecycle.GetSubscription(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "subscription not found", err)
		return nil, false
	}
	if sub.ContributorID != contributorID && !middleware.IsAdmin(c) {
		response.NotFound(c, "subscription not found")
		return nil, false
	}
	return sub, true
}
