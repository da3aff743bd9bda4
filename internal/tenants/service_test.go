package tenants

import (
	"context"
	"errors"
	"testing"

	"crm-backend/internal/ai"
)

type nullProvider struct{}

func (nullProvider) Name() string { return "null" }
func (nullProvider) Analyze(ctx context.Context, convCtx ai.ConversationContext) (ai.AnalysisResult, error) {
	return ai.AnalysisResult{}, nil
}

func newTestTenantService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	if err := repo.Create(context.Background(), Tenant{ID: "t1", Name: "Acme"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	reg := ai.NewRegistry()
	reg.Register("openai", func(ai.ProviderConfig) (ai.Provider, error) { return nullProvider{}, nil })
	return NewService(repo, reg), repo
}

func TestConfigureStoresValidConfig(t *testing.T) {
	svc, repo := newTestTenantService(t)
	ctx := context.Background()

	cfg := ai.ProviderConfig{
		Provider:     "openai",
		APIKey:       "sk-test",
		Model:        "gpt-4o-mini",
		UpdatePolicy: &ai.UpdatePolicy{Mode: ai.PolicyEveryNMessages, N: 5},
	}
	if err := svc.Configure(ctx, "t1", cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	tenant, err := repo.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if tenant.AIConfig == nil || tenant.AIConfig.Provider != "openai" || tenant.AIConfig.UpdatePolicy.N != 5 {
		t.Fatalf("stored config = %+v", tenant.AIConfig)
	}
}

func TestConfigureRejectsUnknownProvider(t *testing.T) {
	svc, repo := newTestTenantService(t)

	err := svc.Configure(context.Background(), "t1", ai.ProviderConfig{Provider: "claude", APIKey: "k"})
	var unsupported ai.UnsupportedProviderError
	if !errors.As(err, &unsupported) {
		t.Fatalf("want UnsupportedProviderError, got %v", err)
	}

	tenant, _ := repo.GetByID(context.Background(), "t1")
	if tenant.AIConfig != nil {
		t.Fatalf("rejected config must not be stored")
	}
}

func TestConfigureRejectsInvalidPolicy(t *testing.T) {
	svc, _ := newTestTenantService(t)

	err := svc.Configure(context.Background(), "t1", ai.ProviderConfig{
		Provider:     "openai",
		APIKey:       "k",
		UpdatePolicy: &ai.UpdatePolicy{Mode: ai.PolicyEveryXMinutes},
	})
	if err == nil {
		t.Fatalf("zero minutes must be rejected")
	}
}

func TestConfigureMissingTenant(t *testing.T) {
	svc, _ := newTestTenantService(t)

	err := svc.Configure(context.Background(), "nope", ai.ProviderConfig{Provider: "openai", APIKey: "k"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResetClearsConfig(t *testing.T) {
	svc, repo := newTestTenantService(t)
	ctx := context.Background()

	if err := svc.Configure(ctx, "t1", ai.ProviderConfig{Provider: "openai", APIKey: "k"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := svc.Reset(ctx, "t1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	tenant, _ := repo.GetByID(ctx, "t1")
	if tenant.AIConfig != nil {
		t.Fatalf("config should be cleared")
	}
}
