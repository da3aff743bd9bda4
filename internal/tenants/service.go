package tenants

import (
	"context"
	"fmt"

	"crm-backend/internal/ai"
)

// Service wraps tenant config changes with validation against the provider
// registry, so a typoed provider name fails at configuration time rather than
// at the first analysis job.
type Service struct {
	Repo      Repo
	Providers *ai.Registry
}

func NewService(repo Repo, providers *ai.Registry) *Service {
	return &Service{Repo: repo, Providers: providers}
}

// Configure validates and stores the tenant's AI config.
func (s *Service) Configure(ctx context.Context, tenantID string, cfg ai.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := s.Providers.New(cfg); err != nil {
		return err
	}
	return s.Repo.UpdateAIConfig(ctx, tenantID, &cfg)
}

// Reset clears the tenant config so the global fallback applies.
func (s *Service) Reset(ctx context.Context, tenantID string) error {
	return s.Repo.UpdateAIConfig(ctx, tenantID, nil)
}

// AIConfig returns the tenant's config, nil when the tenant has none. A
// missing tenant is reported as ErrNotFound.
func (s *Service) AIConfig(ctx context.Context, tenantID string) (*ai.ProviderConfig, error) {
	t, err := s.Repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	return t.AIConfig, nil
}
