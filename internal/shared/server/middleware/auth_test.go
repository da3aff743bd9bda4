package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/shared/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authTestRouter() (*gin.Engine, *auth.Claims) {
	var seen auth.Claims
	r := gin.New()
	r.Use(Auth())
	r.GET("/api/v1/me", func(c *gin.Context) {
		seen = auth.Claims{
			Sub:      UserIDFromContext(c),
			TenantID: TenantIDFromContext(c),
			Email:    UserEmailFromContext(c),
		}
		c.Status(http.StatusOK)
	})
	r.POST("/api/v1/webhooks/messages", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return r, &seen
}

func signedToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := auth.SignJWT(auth.Claims{
		Sub:      "user-1",
		TenantID: tenantID,
		Email:    "agent@example.com",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return token
}

func TestAuthSetsIdentityFromBearerToken(t *testing.T) {
	r, seen := authTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "tenant-a"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", seen.Sub)
	assert.Equal(t, "tenant-a", seen.TenantID)
	assert.Equal(t, "agent@example.com", seen.Email)
}

func TestAuthAcceptsTokenQueryParam(t *testing.T) {
	r, seen := authTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/me?token="+signedToken(t, "tenant-a"), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-a", seen.TenantID)
}

func TestAuthRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not.a.jwt"},
	}

	r, _ := authTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token, err := auth.SignJWT(auth.Claims{
		Sub:      "user-1",
		TenantID: "tenant-a",
		Iat:      time.Now().Add(-2 * time.Hour).Unix(),
		Exp:      time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	r, _ := authTestRouter()
	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// Webhook routes carry their own shared-secret check, so the JWT middleware
// must let them through untouched.
func TestAuthSkipsWebhookRoutes(t *testing.T) {
	r, _ := authTestRouter()

	req := httptest.NewRequest("POST", "/api/v1/webhooks/messages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}
