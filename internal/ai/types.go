package ai

import (
	"fmt"
	"strings"
	"time"
)

// MaxSummaryLen bounds the summary a provider may return.
const MaxSummaryLen = 500

// Priority is the triage level assigned to a conversation.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether the priority is one of the known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Tag is a classification label with the provider's confidence in it.
type Tag struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is the structured output contract every provider must meet.
type AnalysisResult struct {
	Summary        string   `json:"summary"`
	Priority       Priority `json:"priority"`
	PriorityReason string   `json:"priorityReason"`
	Tags           []Tag    `json:"tags"`
}

// Validate checks the result against the output contract. Violations are
// returned as MalformedResponseError so callers retry them like any other
// bad provider response.
func (r AnalysisResult) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return MalformedResponseError{Reason: "empty summary"}
	}
	if len([]rune(r.Summary)) > MaxSummaryLen {
		return MalformedResponseError{Reason: fmt.Sprintf("summary exceeds %d chars", MaxSummaryLen)}
	}
	if !r.Priority.Valid() {
		return MalformedResponseError{Reason: fmt.Sprintf("unknown priority %q", r.Priority)}
	}
	for _, t := range r.Tags {
		if strings.TrimSpace(t.Tag) == "" {
			return MalformedResponseError{Reason: "empty tag"}
		}
		if t.Confidence < 0 || t.Confidence > 1 {
			return MalformedResponseError{Reason: fmt.Sprintf("tag %q confidence %v out of range", t.Tag, t.Confidence)}
		}
	}
	return nil
}

// TagNames returns just the tag labels, in result order.
func (r AnalysisResult) TagNames() []string {
	out := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		out = append(out, t.Tag)
	}
	return out
}

// TagConfidence returns the tag→confidence map. Tags without an explicit
// confidence default to 1.
func (r AnalysisResult) TagConfidence() map[string]float64 {
	out := make(map[string]float64, len(r.Tags))
	for _, t := range r.Tags {
		conf := t.Confidence
		if conf == 0 {
			conf = 1
		}
		out[t.Tag] = conf
	}
	return out
}

// ContextMessage is one message in the bounded window handed to a provider.
type ContextMessage struct {
	SenderType  string    `json:"senderType"`
	ContentText string    `json:"contentText"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ConversationContext is the provider input: a bounded chronological window
// plus the previous summary as an incremental-update hint.
type ConversationContext struct {
	ConversationID         string
	PreviousSummary        string
	PreviousSummaryVersion int
	RecentMessages         []ContextMessage
	LeadDisplayName        string
}

// ConversationState is the analysis-relevant slice of a conversation row.
type ConversationState struct {
	ConversationID            string
	TenantID                  string
	LeadDisplayName           string
	Summary                   string
	SummaryVersion            int
	MessagesSinceLastAnalysis int
	LastAnalyzedAt            *time.Time
}

// ProviderConfig selects and configures an AI provider, per tenant or global.
type ProviderConfig struct {
	Provider     string        `json:"provider"`
	APIKey       string        `json:"apiKey"`
	Model        string        `json:"model,omitempty"`
	UpdatePolicy *UpdatePolicy `json:"updatePolicy,omitempty"`
}

// Validate checks the parts of the config that do not require a provider
// lookup. Provider-name validation happens at registry resolution.
func (c ProviderConfig) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("apiKey is required")
	}
	if c.UpdatePolicy != nil {
		if err := c.UpdatePolicy.Validate(); err != nil {
			return err
		}
	}
	return nil
}
