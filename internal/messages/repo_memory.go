package messages

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo implements Repo in memory for dev mode and tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	messages []Message
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Create(ctx context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	r.messages = append(r.messages, message)
	return nil
}

func (r *MemoryRepo) RecentByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	all := r.byConversation(tenantID, conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *MemoryRepo) ListByConversation(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	all := r.byConversation(tenantID, conversationID)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepo) byConversation(tenantID, conversationID string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Message
	for _, m := range r.messages {
		if m.TenantID == tenantID && m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ Repo = (*MemoryRepo)(nil)
