package tenants

import (
	"errors"
	"time"

	"crm-backend/internal/ai"
)

var ErrNotFound = errors.New("tenant not found")

// Tenant is one CRM workspace. AIConfig is nil until the tenant opts into
// its own provider; until then the global config applies.
type Tenant struct {
	ID        string
	Name      string
	AIConfig  *ai.ProviderConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}
