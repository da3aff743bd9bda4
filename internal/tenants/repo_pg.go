package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"crm-backend/internal/ai"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new tenant.
func (r *PGRepo) Create(ctx context.Context, tenant Tenant) error {
	const query = `
INSERT INTO tenants (id, name, ai_config, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)`
	cfgPayload, err := marshalConfig(tenant.AIConfig)
	if err != nil {
		return err
	}
	createdAt := tenant.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.DB.ExecContext(ctx, query, tenant.ID, tenant.Name, cfgPayload, createdAt)
	return err
}

// GetByID returns a tenant by ID.
func (r *PGRepo) GetByID(ctx context.Context, tenantID string) (Tenant, error) {
	const query = `
SELECT id, name, ai_config, created_at, updated_at
FROM tenants
WHERE id = $1
LIMIT 1`
	var t Tenant
	var cfg sql.NullString
	err := r.DB.QueryRowContext(ctx, query, tenantID).Scan(
		&t.ID,
		&t.Name,
		&cfg,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	if cfg.Valid && cfg.String != "" && cfg.String != "null" {
		var parsed ai.ProviderConfig
		if err := json.Unmarshal([]byte(cfg.String), &parsed); err == nil {
			t.AIConfig = &parsed
		}
	}
	return t, nil
}

// UpdateAIConfig replaces the tenant's AI config. A nil cfg clears it so the
// global fallback applies again.
func (r *PGRepo) UpdateAIConfig(ctx context.Context, tenantID string, cfg *ai.ProviderConfig) error {
	const query = `
UPDATE tenants
SET ai_config = $1::jsonb,
    updated_at = now()
WHERE id = $2`
	payload, err := marshalConfig(cfg)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, payload, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

func marshalConfig(cfg *ai.ProviderConfig) (any, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
