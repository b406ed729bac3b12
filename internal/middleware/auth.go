package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	HeaderGatewayKey = "X-Gateway-Key"
	ContextCallerKey = "caller"
)

// AuthMiddleware guards the action routes with a shared key when one is
// configured. The caller identity scopes idempotency keys.
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Set(ContextCallerKey, "ip:"+c.ClientIP())
			c.Next()
			return
		}

		got := c.GetHeader(HeaderGatewayKey)
		if got == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(ContextCallerKey, "key")
		c.Next()
	}
}
