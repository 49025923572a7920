package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/content-orchestrator/pkg/api"
)

// Auth checks for the operator key as a Bearer token or X-API-Key header.
// An empty key disables the check.
func Auth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		token := c.GetHeader("X-API-Key")
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				_ = c.Error(api.UnauthorizedError("Missing Authorization header"))
				c.Abort()
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				_ = c.Error(api.UnauthorizedError("Invalid Authorization header format"))
				c.Abort()
				return
			}
			token = parts[1]
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			_ = c.Error(api.UnauthorizedError("Invalid API Key"))
			c.Abort()
			return
		}

		c.Next()
	}
}
