package tenants

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crm-backend/internal/ai"
	"crm-backend/internal/shared/server/middleware"
	"crm-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tenants/ai-config", h.getAIConfig)
	rg.PUT("/tenants/ai-config", h.putAIConfig)
	rg.DELETE("/tenants/ai-config", h.deleteAIConfig)
}

type aiConfigRequest struct {
	Provider     string           `json:"provider"`
	APIKey       string           `json:"apiKey"`
	Model        string           `json:"model"`
	UpdatePolicy *ai.UpdatePolicy `json:"updatePolicy"`
}

type aiConfigResponse struct {
	Provider     string           `json:"provider"`
	Model        string           `json:"model,omitempty"`
	UpdatePolicy *ai.UpdatePolicy `json:"updatePolicy,omitempty"`
}

func (h *Handler) putAIConfig(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}

	var req aiConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	cfg := ai.ProviderConfig{
		Provider:     req.Provider,
		APIKey:       req.APIKey,
		Model:        req.Model,
		UpdatePolicy: req.UpdatePolicy,
	}

	err := h.Svc.Configure(c.Request.Context(), tenantID, cfg)
	if err != nil {
		var unsupported ai.UnsupportedProviderError
		switch {
		case errors.As(err, &unsupported):
			respond.Error(c, http.StatusBadRequest, "unsupported_provider", unsupported.Error(), map[string]any{
				"supported": h.Svc.Providers.Names(),
			})
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "tenant not found", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		}
		return
	}
	// The API key is write-only: it never appears in responses.
	respond.OK(c, aiConfigResponse{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		UpdatePolicy: cfg.UpdatePolicy,
	})
}

func (h *Handler) getAIConfig(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}

	cfg, err := h.Svc.AIConfig(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "tenant not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load config", nil)
		return
	}
	if cfg == nil {
		respond.OK(c, gin.H{"configured": false})
		return
	}
	respond.OK(c, aiConfigResponse{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		UpdatePolicy: cfg.UpdatePolicy,
	})
}

func (h *Handler) deleteAIConfig(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	if err := h.Svc.Reset(c.Request.Context(), tenantID); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "tenant not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to reset config", nil)
		return
	}
	respond.OK(c, gin.H{"configured": false})
}
