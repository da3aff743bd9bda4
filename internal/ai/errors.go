package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates neither the tenant nor the global config
	// provides an AI provider. Not retryable.
	ErrNotConfigured = errors.New("ai not configured for tenant and no global config")

	// ErrConversationNotFound is not exceptional: the conversation may have
	// been deleted between enqueue and execution. Jobs complete as a no-op.
	ErrConversationNotFound = errors.New("conversation not found")
)

// UnsupportedProviderError indicates a tenant configured an unknown provider
// name. Not retryable; never falls back to guessing a provider.
type UnsupportedProviderError struct {
	Name string
}

func (e UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported ai provider: %s", e.Name)
}

// ProviderError indicates a transport or auth failure calling the AI backend.
type ProviderError struct {
	Provider string
	Err      error
}

func (e ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s failed", e.Provider)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Err.Error())
}

func (e ProviderError) Unwrap() error { return e.Err }

// MalformedResponseError indicates the provider returned a payload that does
// not satisfy the AnalysisResult contract. Retried like ProviderError since a
// later attempt may produce a well-formed response.
type MalformedResponseError struct {
	Provider string
	Reason   string
}

func (e MalformedResponseError) Error() string {
	if e.Provider == "" {
		return "malformed provider response: " + e.Reason
	}
	return fmt.Sprintf("malformed response from %s: %s", e.Provider, e.Reason)
}

// Retryable reports whether a provider-call error is worth another attempt.
// Configuration and provider-selection errors are permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrConversationNotFound) {
		return false
	}
	var unsupported UnsupportedProviderError
	return !errors.As(err, &unsupported)
}
