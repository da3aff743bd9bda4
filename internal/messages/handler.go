package messages

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crm-backend/internal/conversations"
	"crm-backend/internal/shared/server/middleware"
	"crm-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc  *Service
	Repo Repo

	// WebhookSecret authenticates inbound webhook calls. Empty disables the
	// webhook route entirely.
	WebhookSecret string
}

func NewHandler(svc *Service, repo Repo, webhookSecret string) *Handler {
	return &Handler{Svc: svc, Repo: repo, WebhookSecret: webhookSecret}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/conversations/:id/messages", h.list)
	rg.POST("/conversations/:id/messages", h.postAgentMessage)
	rg.POST("/webhooks/messages", h.postWebhookMessage)
}

type messageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderType     string    `json:"senderType"`
	ContentText    string    `json:"contentText"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toDTO(m Message) messageDTO {
	return messageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     m.SenderType,
		ContentText:    m.ContentText,
		CreatedAt:      m.CreatedAt,
	}
}

func (h *Handler) list(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Repo.ListByConversation(c.Request.Context(), tenantID, c.Param("id"), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list messages", nil)
		return
	}
	out := make([]messageDTO, 0, len(items))
	for _, m := range items {
		out = append(out, toDTO(m))
	}
	respond.OK(c, gin.H{"messages": out})
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// postAgentMessage is the authenticated reply path: the sender is always an
// agent of the token's tenant.
func (h *Handler) postAgentMessage(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	msg, err := h.Svc.Ingest(c.Request.Context(), tenantID, c.Param("id"), SenderAgent, req.Content)
	if err != nil {
		h.writeIngestError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, toDTO(msg))
}

type webhookMessageRequest struct {
	TenantID       string `json:"tenantId"`
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
	Content        string `json:"content"`
}

// postWebhookMessage ingests inbound lead messages from external channels.
// Auth is a shared secret header, not a JWT: the caller is a machine.
func (h *Handler) postWebhookMessage(c *gin.Context) {
	if h.WebhookSecret == "" {
		respond.Error(c, http.StatusNotFound, "not_found", "webhooks are not enabled", nil)
		return
	}
	provided := c.GetHeader("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.WebhookSecret)) != 1 {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid webhook secret", nil)
		return
	}

	var req webhookMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.ConversationID) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "tenantId and conversationId are required", nil)
		return
	}
	sender := req.SenderType
	if sender == "" {
		sender = SenderLead
	}

	msg, err := h.Svc.Ingest(c.Request.Context(), req.TenantID, req.ConversationID, sender, req.Content)
	if err != nil {
		h.writeIngestError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, toDTO(msg))
}

func (h *Handler) writeIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversations.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "conversation not found", nil)
	case errors.Is(err, ErrInvalidSender):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid sender type", nil)
	case strings.Contains(err.Error(), "content"):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to ingest message", nil)
	}
}
