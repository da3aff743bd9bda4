package conversations

import (
	"errors"
	"time"

	"crm-backend/internal/ai"
)

var ErrNotFound = errors.New("conversation not found")

// Conversation statuses.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Conversation is one lead thread plus its AI analysis state. The AI fields
// only ever change together, in a single versioned update.
type Conversation struct {
	ID        string
	TenantID  string
	LeadName  string
	LeadPhone string
	Status    string

	AISummary        string
	AISummaryVersion int
	AIPriority       string
	AIPriorityReason string
	AITags           []string
	AITagConfidence  map[string]float64
	AIUpdatedAt      *time.Time

	// AIUpdatePolicy overrides the tenant's analysis cadence when set.
	AIUpdatePolicy *ai.UpdatePolicy

	MessagesSinceLastAI int

	CreatedAt time.Time
	UpdatedAt time.Time
}
