package tenants

import (
	"context"
	"sync"
	"time"

	"crm-backend/internal/ai"
)

// MemoryRepo implements Repo in memory for dev mode and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tenants: make(map[string]Tenant)}
}

func (r *MemoryRepo) Create(ctx context.Context, tenant Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	tenant.UpdatedAt = tenant.CreatedAt
	r.tenants[tenant.ID] = tenant
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, tenantID string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) UpdateAIConfig(ctx context.Context, tenantID string, cfg *ai.ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	t.AIConfig = cfg
	t.UpdatedAt = time.Now().UTC()
	r.tenants[tenantID] = t
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
