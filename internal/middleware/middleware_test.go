package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"entitlement-service/internal/pkg/jwt"
)

func newAuth(t *testing.T) (*AuthMiddleware, *jwt.Generator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	gen := jwt.NewGenerator(key, "identity", "entitlements", "", time.Hour)
	return NewAuthMiddleware(jwt.NewVerifier(&key.PublicKey, "identity", "entitlements")), gen
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()), LoggingMiddleware(zap.NewNop()))
	r.GET("/x", handlers...)
	return r
}

func get(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestAuthSetsContributor(t *testing.T) {
	auth, gen := newAuth(t)
	var seen string
	r := newRouter(auth.Auth(), func(c *gin.Context) {
		seen = MustGetContributorID(c)
		c.Status(http.StatusOK)
	})

	token, _, err := gen.Generate("c1", []string{jwt.RoleContributor})
	require.NoError(t, err)

	w := get(r, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", seen)
}

func TestAuthRejects(t *testing.T) {
	auth, _ := newAuth(t)
	r := newRouter(auth.Auth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, bearer("garbage")).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, http.Header{"Authorization": {"Basic abc"}}).Code)
}

func TestAdminOnly(t *testing.T) {
	auth, gen := newAuth(t)
	r := newRouter(append(auth.AdminOnly(), func(c *gin.Context) { c.Status(http.StatusOK) })...)

	user, _, err := gen.Generate("c1", []string{jwt.RoleContributor})
	require.NoError(t, err)
	admin, _, err := gen.Generate("ops", []string{jwt.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(r, bearer(user)).Code)
	assert.Equal(t, http.StatusOK, get(r, bearer(admin)).Code)
}

func TestRequireSharedSecret(t *testing.T) {
	r := newRouter(RequireSharedSecret("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, http.Header{WebhookSecretHeader: {"nope"}}).Code)
	assert.Equal(t, http.StatusOK, get(r, http.Header{WebhookSecretHeader: {"s3cret"}}).Code)

	disabled := newRouter(RequireSharedSecret(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusServiceUnavailable, get(disabled, http.Header{WebhookSecretHeader: {""}}).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := newRouter(func(*gin.Context) { panic("boom") })
	assert.Equal(t, http.StatusInternalServerError, get(r, nil).Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware("https://app.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, http.Header{"Origin": {"https://app.example.com"}})
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type countingLimiter struct {
	hits map[string]int64
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, subject, action string, max int64, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.hits == nil {
		l.hits = make(map[string]int64)
	}
	l.hits[action+":"+subject]++
	return l.hits[action+":"+subject] <= max, nil
}

func TestRateLimit(t *testing.T) {
	auth, gen := newAuth(t)
	limiter := &countingLimiter{}
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r := newRouter(auth.Auth(), RateLimit(limiter, "writes", 2, time.Minute, zap.NewNop()), ok)

	as := func(id string) http.Header {
		token, _, err := gen.Generate(id, []string{jwt.RoleContributor})
		require.NoError(t, err)
		return bearer(token)
	}

	assert.Equal(t, http.StatusNoContent, get(r, as("c1")).Code)
	assert.Equal(t, http.StatusNoContent, get(r, as("c1")).Code)
	w := get(r, as("c1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1m0s", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, get(r, as("c2")).Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	r := newRouter(RateLimit(limiter, "writes", 1, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, get(r, nil).Code)
	assert.Equal(t, http.StatusNoContent, get(r, nil).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newRouter(RateLimit(nil, "writes", 1, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, get(r, nil).Code)
	assert.Equal(t, http.StatusNoContent, get(r, nil).Code)
}
