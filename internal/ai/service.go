package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-backend/internal/relay"
	"crm-backend/internal/shared/metrics"
	"crm-backend/internal/shared/retry"
	"crm-backend/internal/shared/telemetry"
)

// ConversationStore is the analysis-facing view of conversation and message
// storage. Every method is tenant scoped; lookups for other tenants must
// behave exactly like missing rows.
type ConversationStore interface {
	State(ctx context.Context, tenantID, conversationID string) (ConversationState, error)
	PolicyOverride(ctx context.Context, tenantID, conversationID string) (*UpdatePolicy, error)
	RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]ContextMessage, error)
	ApplyAnalysis(ctx context.Context, tenantID, conversationID string, result AnalysisResult, analyzedAt time.Time) (ConversationState, error)
}

// ConfigSource resolves per-tenant AI config. A nil config (with nil error)
// means the tenant has none and the global fallback applies.
type ConfigSource interface {
	AIConfig(ctx context.Context, tenantID string) (*ProviderConfig, error)
}

// Service runs the analysis pipeline: resolve provider, load context, call
// with bounded retry, persist atomically, publish the update event.
type Service struct {
	Store     ConversationStore
	Config    ConfigSource
	Providers *Registry
	Relay     relay.Publisher

	// Global is the fallback provider config when a tenant has none.
	Global *ProviderConfig

	// MessageWindow bounds the context handed to providers.
	MessageWindow int

	// Retry governs provider-call attempts within one job execution.
	Retry retry.Policy

	now func() time.Time
}

func NewService(store ConversationStore, cfg ConfigSource, providers *Registry, pub relay.Publisher, global *ProviderConfig, window int, policy retry.Policy) *Service {
	if window <= 0 {
		window = 20
	}
	return &Service{
		Store:         store,
		Config:        cfg,
		Providers:     providers,
		Relay:         pub,
		Global:        global,
		MessageWindow: window,
		Retry:         policy,
		now:           time.Now,
	}
}

// ShouldAnalyzeConversation evaluates the resolved update policy against the
// conversation's current state. A missing conversation is not an error: the
// caller skips the job.
func (s *Service) ShouldAnalyzeConversation(ctx context.Context, tenantID, conversationID string) (bool, error) {
	state, err := s.Store.State(ctx, tenantID, conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			telemetry.Info("ai.analysis.conversation_gone", map[string]any{
				"tenant_id":       tenantID,
				"conversation_id": conversationID,
			})
			return false, nil
		}
		return false, fmt.Errorf("load conversation state: %w", err)
	}
	policy, err := s.resolvePolicy(ctx, tenantID, conversationID)
	if err != nil {
		return false, err
	}
	return ShouldAnalyze(state, policy, s.now().UTC()), nil
}

// AnalyzeConversation runs one full analysis. The persisted update is atomic:
// summary, priority, tags, version bump and counter reset land together, so a
// crash mid-run never leaves a half-written analysis.
func (s *Service) AnalyzeConversation(ctx context.Context, tenantID, conversationID string) error {
	provider, err := s.providerFor(ctx, tenantID)
	if err != nil {
		return err
	}

	state, err := s.Store.State(ctx, tenantID, conversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			telemetry.Info("ai.analysis.conversation_gone", map[string]any{
				"tenant_id":       tenantID,
				"conversation_id": conversationID,
			})
			return nil
		}
		return fmt.Errorf("load conversation state: %w", err)
	}

	msgs, err := s.Store.RecentMessages(ctx, tenantID, conversationID, s.MessageWindow)
	if err != nil {
		return fmt.Errorf("load recent messages: %w", err)
	}

	convCtx := ConversationContext{
		ConversationID:         conversationID,
		PreviousSummary:        state.Summary,
		PreviousSummaryVersion: state.SummaryVersion,
		RecentMessages:         msgs,
		LeadDisplayName:        state.LeadDisplayName,
	}

	metrics.IncAnalysisStarted()
	started := s.now()

	var result AnalysisResult
	err = retry.Do(ctx, s.Retry, Retryable, func(ctx context.Context) error {
		res, callErr := provider.Analyze(ctx, convCtx)
		if callErr != nil {
			telemetry.Error("ai.provider.call_failed", map[string]any{
				"tenant_id":       tenantID,
				"conversation_id": conversationID,
				"provider":        provider.Name(),
				"error":           callErr.Error(),
			})
			return callErr
		}
		if vErr := res.Validate(); vErr != nil {
			var malformed MalformedResponseError
			if errors.As(vErr, &malformed) && malformed.Provider == "" {
				malformed.Provider = provider.Name()
				vErr = malformed
			}
			return vErr
		}
		result = res
		return nil
	})
	if err != nil {
		metrics.IncAnalysisFailed()
		return fmt.Errorf("analyze conversation %s: %w", conversationID, err)
	}

	analyzedAt := s.now().UTC()
	newState, err := s.Store.ApplyAnalysis(ctx, tenantID, conversationID, result, analyzedAt)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			telemetry.Info("ai.analysis.conversation_gone", map[string]any{
				"tenant_id":       tenantID,
				"conversation_id": conversationID,
			})
			return nil
		}
		metrics.IncAnalysisFailed()
		return fmt.Errorf("persist analysis: %w", err)
	}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(float64(s.now().Sub(started).Milliseconds()))
	telemetry.Info("ai.analysis.completed", map[string]any{
		"tenant_id":       tenantID,
		"conversation_id": conversationID,
		"provider":        provider.Name(),
		"summary_version": newState.SummaryVersion,
		"priority":        string(result.Priority),
	})

	s.publishUpdate(ctx, tenantID, conversationID, result, analyzedAt)
	return nil
}

// publishUpdate is best effort: the analysis is already durable, a lost
// event only delays the UI until the next fetch.
func (s *Service) publishUpdate(ctx context.Context, tenantID, conversationID string, result AnalysisResult, analyzedAt time.Time) {
	if s.Relay == nil {
		return
	}
	env, err := relay.NewAIUpdateEnvelope(relay.AIUpdate{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Summary:        result.Summary,
		Priority:       string(result.Priority),
		Tags:           result.TagNames(),
		UpdatedAt:      analyzedAt,
	})
	if err == nil {
		err = s.Relay.Publish(ctx, env)
	}
	if err != nil {
		telemetry.Error("ai.event.publish_failed", map[string]any{
			"tenant_id":       tenantID,
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
	}
}

func (s *Service) providerFor(ctx context.Context, tenantID string) (Provider, error) {
	cfg, err := s.Config.AIConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant ai config: %w", err)
	}
	if cfg == nil {
		cfg = s.Global
	}
	if cfg == nil || cfg.Provider == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	return s.Providers.New(*cfg)
}

// resolvePolicy walks conversation override, tenant config, then the system
// default.
func (s *Service) resolvePolicy(ctx context.Context, tenantID, conversationID string) (UpdatePolicy, error) {
	override, err := s.Store.PolicyOverride(ctx, tenantID, conversationID)
	if err != nil && !errors.Is(err, ErrConversationNotFound) {
		return UpdatePolicy{}, fmt.Errorf("load policy override: %w", err)
	}
	if override != nil {
		return *override, nil
	}
	cfg, err := s.Config.AIConfig(ctx, tenantID)
	if err != nil {
		return UpdatePolicy{}, fmt.Errorf("load tenant ai config: %w", err)
	}
	if cfg != nil && cfg.UpdatePolicy != nil {
		return *cfg.UpdatePolicy, nil
	}
	return DefaultUpdatePolicy(), nil
}
