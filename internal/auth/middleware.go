package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

type ctxKey struct{}

type identity struct {
	carrierID string
	role      string
}

// RequireAccessToken verifies the bearer token and injects the carrier
// identity into the request context.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), ctxKey{}, identity{
			carrierID: claims.CarrierID,
			role:      claims.Role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CarrierID returns the authenticated carrier from context.
func CarrierID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(identity)
	return id.carrierID, ok && id.carrierID != ""
}

// Role returns the authenticated role from context.
func Role(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(identity)
	return id.role, ok && id.role != ""
}
