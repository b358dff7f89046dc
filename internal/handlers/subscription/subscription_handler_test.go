package subscription

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/middleware"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/pkg/jwt"
	"entitlement-service/internal/repository/memory"
	"entitlement-service/internal/service/entitlement"
	"entitlement-service/internal/service/history"
	service "entitlement-service/internal/service/subscription"
)

const webhookSecret = "gateway-secret"

type harness struct {
	router *gin.Engine
	gen    *jwt.Generator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	repos := memory.NewStore(true).Repositories()
	trial := 7
	require.NoError(t, repos.Plans.Create(ctx, &plan.Package{
		ID: "pkg-basic", Name: "Basic", Price: 10, Currency: "USD",
		Duration: 1, DurationUnit: plan.DurationMonths, Tier: plan.TierBasic,
		Ceilings: plan.Ceilings{Users: 3}, IsActive: true, MaxFreeTrialDuration: &trial,
	}))
	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, repos.Contributors.Create(ctx, &contributor.Contributor{
			ID: id, SubscriptionTier: plan.TierFree, Status: contributor.StatusInactive,
			UsageLimits: entitlement.FreeTier(),
		}))
	}

	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	lifecycle := service.NewSubscriptionService(repos, nil, clk, zap.NewNop())
	h := NewSubscriptionHandler(lifecycle, history.NewHistoryService(repos.Subscriptions))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	auth := middleware.NewAuthMiddleware(jwt.NewVerifier(&key.PublicKey, "identity", "entitlements"))

	r := gin.New()
	api := r.Group("/api/v1")
	subs := api.Group("/subscriptions", auth.Auth())
	subs.POST("", h.CreateSubscription)
	subs.POST("/trial", h.StartFreeTrial)
	subs.GET("/active", h.GetActiveStatus)
	subs.GET("/history", h.GetHistory)
	subs.GET("/stats", h.GetStats)
	subs.GET("/:id", h.GetSubscription)
	subs.POST("/:id/cancel", h.CancelSubscription)
	subs.POST("/:id/renew", h.RenewSubscription)
	admin := api.Group("/admin", auth.AdminOnly()...)
	admin.POST("/subscriptions/:id/confirm-payment", h.ConfirmPayment)
	admin.POST("/subscriptions/:id/extend", h.ExtendSubscription)
	admin.POST("/subscriptions/:id/suspend", h.SuspendSubscription)
	api.POST("/webhooks/payments/confirm", middleware.RequireSharedSecret(webhookSecret), h.ConfirmPaymentWebhook)

	return &harness{router: r, gen: jwt.NewGenerator(key, "identity", "entitlements", "", time.Hour)}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, contributorID string, roles []string, body any, header ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if contributorID != "" {
		token, _, err := h.gen.Generate(contributorID, roles)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestSubscriptionFlowOverHTTP(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(t, http.MethodPost, "/api/v1/subscriptions", "c1", nil, map[string]any{
		"packageId": "pkg-basic", "paymentMethod": "card", "autoRenewal": true,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	created := decode[subscription.Subscription](t, env)
	assert.Equal(t, subscription.StatusPending, created.Status)

	code, _ = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+created.ID+"/confirm-payment", "c1", nil, map[string]any{
		"transactionId": "gw-1",
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+created.ID+"/confirm-payment", "ops", []string{jwt.RoleAdmin}, map[string]any{
		"transactionId": "gw-1",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, subscription.StatusActive, decode[subscription.Subscription](t, env).Status)

	code, env = h.do(t, http.MethodGet, "/api/v1/subscriptions/active", "c1", nil, nil)
	require.Equal(t, http.StatusOK, code)
	status := decode[subscription.ActiveStatus](t, env)
	assert.Equal(t, plan.TierBasic, status.SubscriptionTier)
	require.NotNil(t, status.Subscription)
	assert.Equal(t, created.ID, status.Subscription.ID)

	code, _ = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+created.ID+"/confirm-payment", "ops", []string{jwt.RoleAdmin}, map[string]any{
		"transactionId": "gw-2",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+created.ID+"/extend", "c1", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+created.ID+"/extend", "ops", []string{jwt.RoleAdmin}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = h.do(t, http.MethodPost, "/api/v1/subscriptions/"+created.ID+"/cancel", "c1", nil, map[string]any{"reason": "too pricey"})
	require.Equal(t, http.StatusOK, code, env.Error)
	cancelled := decode[subscription.Subscription](t, env)
	require.NotNil(t, cancelled.CancelationReason)
	assert.Equal(t, "too pricey", *cancelled.CancelationReason)

	code, _ = h.do(t, http.MethodPost, "/api/v1/subscriptions/"+created.ID+"/cancel", "c1", nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = h.do(t, http.MethodGet, "/api/v1/subscriptions/history", "c1", nil, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[subscription.SubscriptionListResponse](t, env)
	assert.EqualValues(t, 1, list.Total)

	code, env = h.do(t, http.MethodGet, "/api/v1/subscriptions/stats", "c1", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, decode[subscription.SubscriptionStats](t, env).CancelledSubscriptions)
}

func TestForeignSubscriptionIsHidden(t *testing.T) {
	h := newHarness(t)
	code, env := h.do(t, http.MethodPost, "/api/v1/subscriptions", "c1", nil, map[string]any{
		"packageId": "pkg-basic", "paymentMethod": "card",
	})
	require.Equal(t, http.StatusCreated, code)
	id := decode[subscription.Subscription](t, env).ID

	code, _ = h.do(t, http.MethodGet, "/api/v1/subscriptions/"+id, "c2", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = h.do(t, http.MethodPost, "/api/v1/subscriptions/"+id+"/cancel", "c2", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodGet, "/api/v1/subscriptions/"+id, "ops", []string{jwt.RoleAdmin}, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRequestErrors(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodPost, "/api/v1/subscriptions", "c1", nil, map[string]any{"paymentMethod": "card"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPost, "/api/v1/subscriptions", "c1", nil, map[string]any{"packageId": "nope", "paymentMethod": "card"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodGet, "/api/v1/subscriptions/history?status=BOGUS", "c1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodGet, "/api/v1/subscriptions/active", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTrialAndSuspend(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(t, http.MethodPost, "/api/v1/subscriptions/trial", "c1", nil, map[string]any{"packageId": "pkg-basic"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	trial := decode[subscription.Subscription](t, env)
	assert.True(t, trial.IsFreeTrial)

	code, _ = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+trial.ID+"/suspend", "c1", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = h.do(t, http.MethodPost, "/api/v1/admin/subscriptions/"+trial.ID+"/suspend", "ops", []string{jwt.RoleAdmin}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, subscription.StatusSuspended, decode[subscription.Subscription](t, env).Status)
}

func TestPaymentWebhook(t *testing.T) {
	h := newHarness(t)
	code, env := h.do(t, http.MethodPost, "/api/v1/subscriptions", "c1", nil, map[string]any{
		"packageId": "pkg-basic", "paymentMethod": "mobile_money",
	})
	require.Equal(t, http.StatusCreated, code)
	id := decode[subscription.Subscription](t, env).ID
	body := map[string]any{"subscriptionId": id, "transactionId": "gw-77"}

	code, _ = h.do(t, http.MethodPost, "/api/v1/webhooks/payments/confirm", "", nil, body, middleware.WebhookSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = h.do(t, http.MethodPost, "/api/v1/webhooks/payments/confirm", "", nil, body, middleware.WebhookSecretHeader, webhookSecret)
	require.Equal(t, http.StatusOK, code, env.Error)
	confirmed := decode[subscription.Subscription](t, env)
	assert.Equal(t, subscription.StatusActive, confirmed.Status)
	require.NotNil(t, confirmed.ExternalTransactionID)
	assert.Equal(t, "gw-77", *confirmed.ExternalTransactionID)
}
