package conversations

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm-backend/internal/ai"
	"crm-backend/internal/shared/server/middleware"
	"crm-backend/internal/shared/server/respond"
)

type Handler struct {
	Repo Repo
}

func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/conversations", h.list)
	rg.POST("/conversations", h.create)
	rg.GET("/conversations/:id", h.get)
	rg.PUT("/conversations/:id/ai-policy", h.putAIPolicy)
}

type conversationDTO struct {
	ID                  string             `json:"id"`
	LeadName            string             `json:"leadName"`
	LeadPhone           string             `json:"leadPhone,omitempty"`
	Status              string             `json:"status"`
	AISummary           string             `json:"aiSummary,omitempty"`
	AISummaryVersion    int                `json:"aiSummaryVersion"`
	AIPriority          string             `json:"aiPriority,omitempty"`
	AIPriorityReason    string             `json:"aiPriorityReason,omitempty"`
	AITags              []string           `json:"aiTags,omitempty"`
	AITagConfidence     map[string]float64 `json:"aiTagConfidence,omitempty"`
	AIUpdatedAt         *time.Time         `json:"aiUpdatedAt,omitempty"`
	AIUpdatePolicy      *ai.UpdatePolicy   `json:"aiUpdatePolicy,omitempty"`
	MessagesSinceLastAI int                `json:"messagesSinceLastAi"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

func toDTO(conv Conversation) conversationDTO {
	return conversationDTO{
		ID:                  conv.ID,
		LeadName:            conv.LeadName,
		LeadPhone:           conv.LeadPhone,
		Status:              conv.Status,
		AISummary:           conv.AISummary,
		AISummaryVersion:    conv.AISummaryVersion,
		AIPriority:          conv.AIPriority,
		AIPriorityReason:    conv.AIPriorityReason,
		AITags:              conv.AITags,
		AITagConfidence:     conv.AITagConfidence,
		AIUpdatedAt:         conv.AIUpdatedAt,
		AIUpdatePolicy:      conv.AIUpdatePolicy,
		MessagesSinceLastAI: conv.MessagesSinceLastAI,
		CreatedAt:           conv.CreatedAt,
		UpdatedAt:           conv.UpdatedAt,
	}
}

func (h *Handler) list(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Repo.ListByTenant(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list conversations", nil)
		return
	}
	out := make([]conversationDTO, 0, len(items))
	for _, conv := range items {
		out = append(out, toDTO(conv))
	}
	respond.OK(c, gin.H{"conversations": out})
}

func (h *Handler) get(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	conv, err := h.Repo.GetByID(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "conversation not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load conversation", nil)
		return
	}
	respond.OK(c, toDTO(conv))
}

type createConversationRequest struct {
	LeadName  string `json:"leadName"`
	LeadPhone string `json:"leadPhone"`
}

func (h *Handler) create(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.LeadName) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "leadName is required", []map[string]string{
			{"field": "leadName", "issue": "required"},
		})
		return
	}

	conv := Conversation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		LeadName:  strings.TrimSpace(req.LeadName),
		LeadPhone: strings.TrimSpace(req.LeadPhone),
		Status:    StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Repo.Create(c.Request.Context(), conv); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create conversation", nil)
		return
	}
	conv.UpdatedAt = conv.CreatedAt
	respond.JSON(c, http.StatusCreated, toDTO(conv))
}

type aiPolicyRequest struct {
	Policy *ai.UpdatePolicy `json:"policy"`
}

func (h *Handler) putAIPolicy(c *gin.Context) {
	tenantID := strings.TrimSpace(middleware.TenantIDFromContext(c))
	if tenantID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing tenant scope", nil)
		return
	}
	var req aiPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.Policy != nil {
		if err := req.Policy.Validate(); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
	}
	err := h.Repo.SetUpdatePolicy(c.Request.Context(), tenantID, c.Param("id"), req.Policy)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "conversation not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update policy", nil)
		return
	}
	respond.OK(c, gin.H{"policy": req.Policy})
}
