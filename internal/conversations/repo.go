package conversations

import (
	"context"
	"time"

	"crm-backend/internal/ai"
)

// Repo stores conversations. Every method takes the tenant ID and scopes the
// row lookup with it; a conversation belonging to another tenant behaves
// exactly like a missing one.
type Repo interface {
	Create(ctx context.Context, conversation Conversation) error
	GetByID(ctx context.Context, tenantID, conversationID string) (Conversation, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Conversation, error)

	// IncrementMessagesSinceAI bumps the policy counter for one new message.
	IncrementMessagesSinceAI(ctx context.Context, tenantID, conversationID string) error

	// ApplyAnalysis persists one analysis atomically: summary, priority,
	// tags, version bump and counter reset in a single statement.
	ApplyAnalysis(ctx context.Context, tenantID, conversationID string, result ai.AnalysisResult, analyzedAt time.Time) (Conversation, error)

	// SetUpdatePolicy sets or clears the conversation-level cadence override.
	SetUpdatePolicy(ctx context.Context, tenantID, conversationID string, policy *ai.UpdatePolicy) error
}
