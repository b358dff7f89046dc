// internal/middleware/rate_limit_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter is satisfied by ratelimit.Limiter.
type Limiter interface {
	Allow(ctx context.Context, subject, action string, max int64, window time.Duration) (bool, error)
}

// RateLimit caps each contributor at max requests per window for action.
// It must run after Auth(). A limiter error lets the request through.
func RateLimit(limiter Limiter, action string, max int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || max <= 0 {
			c.Next()
			return
		}
		subject, ok := GetContributorID(c)
		if !ok {
			subject = c.ClientIP()
		}

		allowed, err := limiter.Allow(c.Request.Context(), subject, action, max, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("action", action), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", window.String())
			response.Error(c, http.StatusTooManyRequests, "too many requests", errors.New("rate limit exceeded"), map[string]any{
				"limit":  max,
				"window": window.String(),
			})
			return
		}
		c.Next()
	}
}
