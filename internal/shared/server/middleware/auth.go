package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crm-backend/internal/shared/auth"
	"crm-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	tenantIDKey  = "tenantId"
	userRoleKey  = "userRole"
)

// Auth validates JWTs and stores identity and tenant scope in context.
// Webhook routes authenticate with a shared secret instead and are skipped.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		if strings.HasPrefix(c.Request.URL.Path, "/api/v1/webhooks/") {
			c.Next()
			return
		}

		claims, err := ClaimsFromRequest(c)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(userIDKey, claims.Sub)
		c.Set(tenantIDKey, claims.TenantID)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		if claims.Role != "" {
			c.Set(userRoleKey, claims.Role)
		}
		c.Next()
	}
}

// ClaimsFromRequest extracts and verifies the bearer token on a request.
// The websocket handler uses this directly since it must reject before the
// upgrade completes and any room join happens.
func ClaimsFromRequest(c *gin.Context) (auth.Claims, error) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			return auth.Claims{}, auth.ErrInvalidToken
		}
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	}
	if token == "" {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return auth.VerifyJWT(token)
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// TenantIDFromContext fetches the tenant ID set by the auth middleware.
func TenantIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(tenantIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}
