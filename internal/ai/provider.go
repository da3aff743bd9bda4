package ai

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Provider runs one analysis call against an AI backend.
//
// Implementations return ProviderError for transport or auth failures and
// MalformedResponseError when the backend payload cannot be parsed into an
// AnalysisResult.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, convCtx ConversationContext) (AnalysisResult, error)
}

// Factory builds a provider from a resolved config.
type Factory func(cfg ProviderConfig) (Provider, error)

// Registry maps provider names to factories. Names are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(strings.TrimSpace(name))] = f
}

// New resolves cfg.Provider and builds the provider. Unknown names return
// UnsupportedProviderError; there is no fallback provider.
func (r *Registry) New(cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	r.mu.RUnlock()
	if !ok {
		return nil, UnsupportedProviderError{Name: cfg.Provider}
	}
	return f(cfg)
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
