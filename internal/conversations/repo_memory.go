package conversations

import (
	"context"
	"sort"
	"sync"
	"time"

	"crm-backend/internal/ai"
)

// MemoryRepo implements Repo in memory for dev mode and tests.
type MemoryRepo struct {
	mu            sync.RWMutex
	conversations map[string]Conversation // keyed tenantID+"/"+conversationID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{conversations: make(map[string]Conversation)}
}

func memKey(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}

func (r *MemoryRepo) Create(ctx context.Context, conversation Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.Status == "" {
		conversation.Status = StatusOpen
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now().UTC()
	}
	conversation.UpdatedAt = conversation.CreatedAt
	r.conversations[memKey(conversation.TenantID, conversation.ID)] = conversation
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, conversationID string) (Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[memKey(tenantID, conversationID)]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (r *MemoryRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	var out []Conversation
	for _, conv := range r.conversations {
		if conv.TenantID == tenantID {
			out = append(out, conv)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) IncrementMessagesSinceAI(ctx context.Context, tenantID, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(tenantID, conversationID)
	conv, ok := r.conversations[key]
	if !ok {
		return ErrNotFound
	}
	conv.MessagesSinceLastAI++
	conv.UpdatedAt = time.Now().UTC()
	r.conversations[key] = conv
	return nil
}

func (r *MemoryRepo) ApplyAnalysis(ctx context.Context, tenantID, conversationID string, result ai.AnalysisResult, analyzedAt time.Time) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(tenantID, conversationID)
	conv, ok := r.conversations[key]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	at := analyzedAt
	conv.AISummary = result.Summary
	conv.AISummaryVersion++
	conv.AIPriority = string(result.Priority)
	conv.AIPriorityReason = result.PriorityReason
	conv.AITags = result.TagNames()
	conv.AITagConfidence = result.TagConfidence()
	conv.AIUpdatedAt = &at
	conv.MessagesSinceLastAI = 0
	conv.UpdatedAt = at
	r.conversations[key] = conv
	return conv, nil
}

func (r *MemoryRepo) SetUpdatePolicy(ctx context.Context, tenantID, conversationID string, policy *ai.UpdatePolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(tenantID, conversationID)
	conv, ok := r.conversations[key]
	if !ok {
		return ErrNotFound
	}
	conv.AIUpdatePolicy = policy
	conv.UpdatedAt = time.Now().UTC()
	r.conversations[key] = conv
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
