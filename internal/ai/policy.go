package ai

import (
	"fmt"
	"time"
)

// PolicyMode selects how analysis cadence is decided.
type PolicyMode string

const (
	PolicyEveryNMessages PolicyMode = "EVERY_N_MESSAGES"
	PolicyEveryXMinutes  PolicyMode = "EVERY_X_MINUTES"
)

// UpdatePolicy decides when a conversation is eligible for re-analysis.
// Resolution order: conversation-level override, then tenant-level default,
// then DefaultUpdatePolicy.
type UpdatePolicy struct {
	Mode    PolicyMode `json:"mode"`
	N       int        `json:"n,omitempty"`
	Minutes int        `json:"minutes,omitempty"`
}

// DefaultUpdatePolicy is the system fallback: analyze every 3 messages.
func DefaultUpdatePolicy() UpdatePolicy {
	return UpdatePolicy{Mode: PolicyEveryNMessages, N: 3}
}

// Validate checks mode-specific requirements.
func (p UpdatePolicy) Validate() error {
	switch p.Mode {
	case PolicyEveryNMessages:
		if p.N <= 0 {
			return fmt.Errorf("updatePolicy: n must be positive for %s", PolicyEveryNMessages)
		}
	case PolicyEveryXMinutes:
		if p.Minutes <= 0 {
			return fmt.Errorf("updatePolicy: minutes must be positive for %s", PolicyEveryXMinutes)
		}
	default:
		return fmt.Errorf("updatePolicy: unknown mode %q", p.Mode)
	}
	return nil
}

// ShouldAnalyze reports whether the conversation has accumulated enough
// signal under the given policy. Pure: the only clock input is now.
func ShouldAnalyze(state ConversationState, policy UpdatePolicy, now time.Time) bool {
	switch policy.Mode {
	case PolicyEveryNMessages:
		n := policy.N
		if n <= 0 {
			n = DefaultUpdatePolicy().N
		}
		return state.MessagesSinceLastAnalysis >= n
	case PolicyEveryXMinutes:
		if state.LastAnalyzedAt == nil {
			return true
		}
		return now.Sub(*state.LastAnalyzedAt) >= time.Duration(policy.Minutes)*time.Minute
	default:
		return false
	}
}
