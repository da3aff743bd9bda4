package tenants

import (
	"context"

	"crm-backend/internal/ai"
)

// Repo stores tenants.
type Repo interface {
	Create(ctx context.Context, tenant Tenant) error
	GetByID(ctx context.Context, tenantID string) (Tenant, error)
	UpdateAIConfig(ctx context.Context, tenantID string, cfg *ai.ProviderConfig) error
}
