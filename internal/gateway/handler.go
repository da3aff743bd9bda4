package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"crm-backend/internal/relay"
	"crm-backend/internal/shared/server/middleware"
	"crm-backend/internal/shared/server/respond"
	"crm-backend/internal/shared/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origin checks are handled by the CORS layer; tokens gate the
	// upgrade itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests to websocket sessions. The JWT is
// verified before the upgrade, and the session auto-joins its tenant room so
// tenant-wide events arrive without any client action.
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := middleware.ClaimsFromRequest(c)
		if err != nil || claims.TenantID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			telemetry.Error("gateway.upgrade_failed", map[string]any{"error": err.Error()})
			return
		}

		s := newSession(hub, conn, claims.TenantID, claims.Sub, claims.Email)
		hub.join(relay.TenantRoom(claims.TenantID), s)
		telemetry.Info("gateway.session.connected", map[string]any{
			"tenant_id": claims.TenantID,
			"user_id":   claims.Sub,
		})
		s.run()
	}
}
