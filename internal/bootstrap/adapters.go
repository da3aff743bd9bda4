package bootstrap

import (
	"context"
	"errors"
	"time"

	"crm-backend/internal/ai"
	"crm-backend/internal/conversations"
	"crm-backend/internal/messages"
	"crm-backend/internal/tenants"
)

// conversationStoreAdapter presents the conversations and messages repos as
// the single store the AI service works against, translating the repo's
// not-found error into the AI package's.
type conversationStoreAdapter struct {
	convs conversations.Repo
	msgs  messages.Repo
}

func (a *conversationStoreAdapter) State(ctx context.Context, tenantID, conversationID string) (ai.ConversationState, error) {
	conv, err := a.convs.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return ai.ConversationState{}, mapNotFound(err)
	}
	return toState(conv), nil
}

func (a *conversationStoreAdapter) PolicyOverride(ctx context.Context, tenantID, conversationID string) (*ai.UpdatePolicy, error) {
	conv, err := a.convs.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return conv.AIUpdatePolicy, nil
}

func (a *conversationStoreAdapter) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]ai.ContextMessage, error) {
	msgs, err := a.msgs.RecentByConversation(ctx, tenantID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ai.ContextMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.ContextMessage{
			SenderType:  m.SenderType,
			ContentText: m.ContentText,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

func (a *conversationStoreAdapter) ApplyAnalysis(ctx context.Context, tenantID, conversationID string, result ai.AnalysisResult, analyzedAt time.Time) (ai.ConversationState, error) {
	conv, err := a.convs.ApplyAnalysis(ctx, tenantID, conversationID, result, analyzedAt)
	if err != nil {
		return ai.ConversationState{}, mapNotFound(err)
	}
	return toState(conv), nil
}

var _ ai.ConversationStore = (*conversationStoreAdapter)(nil)

// tenantConfigAdapter exposes the tenants repo as the AI service's config
// source. A missing tenant yields a nil config so the global fallback (or
// ErrNotConfigured) applies.
type tenantConfigAdapter struct {
	repo tenants.Repo
}

func (a *tenantConfigAdapter) AIConfig(ctx context.Context, tenantID string) (*ai.ProviderConfig, error) {
	t, err := a.repo.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t.AIConfig, nil
}

var _ ai.ConfigSource = (*tenantConfigAdapter)(nil)

func mapNotFound(err error) error {
	if errors.Is(err, conversations.ErrNotFound) {
		return ai.ErrConversationNotFound
	}
	return err
}

func toState(conv conversations.Conversation) ai.ConversationState {
	return ai.ConversationState{
		ConversationID:            conv.ID,
		TenantID:                  conv.TenantID,
		LeadDisplayName:           conv.LeadName,
		Summary:                   conv.AISummary,
		SummaryVersion:            conv.AISummaryVersion,
		MessagesSinceLastAnalysis: conv.MessagesSinceLastAI,
		LastAnalyzedAt:            conv.AIUpdatedAt,
	}
}
