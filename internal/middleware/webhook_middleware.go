// internal/middleware/webhook_middleware.go
package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// RequireSharedSecret rejects requests whose secret header does not match.
// An empty secret disables the endpoint.
func RequireSharedSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			response.Error(c, http.StatusServiceUnavailable, "webhook not configured", nil)
			return
		}
		got := c.GetHeader(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Error(c, http.StatusUnauthorized, "invalid webhook secret", errors.New("secret mismatch"))
			return
		}
		c.Next()
	}
}
