package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-backend/internal/conversations"
	"crm-backend/internal/messages"
	"crm-backend/internal/shared/config"
	"crm-backend/internal/shared/metrics"
	"crm-backend/internal/shared/server/middleware"
	"crm-backend/internal/shared/server/respond"
	"crm-backend/internal/tenants"
)

// RouterDeps carries the pre-built handlers into route registration.
type RouterDeps struct {
	Config               config.Config
	TenantsHandler       *tenants.Handler
	ConversationsHandler *conversations.Handler
	MessagesHandler      *messages.Handler
	GatewayHandler       gin.HandlerFunc
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"WEBHOOK": {Rate: 10, Burst: 30},
			},
			GroupFor: func(c *gin.Context) string {
				if c.FullPath() == "/api/v1/webhooks/messages" {
					return "WEBHOOK"
				}
				return ""
			},
		}),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	if deps.GatewayHandler != nil {
		r.GET("/ws", deps.GatewayHandler)
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.TenantsHandler != nil {
		deps.TenantsHandler.RegisterRoutes(api)
	}
	if deps.ConversationsHandler != nil {
		deps.ConversationsHandler.RegisterRoutes(api)
	}
	if deps.MessagesHandler != nil {
		deps.MessagesHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
