package conversations

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

const conversationColumns = `id, tenant_id, lead_name, lead_phone, status,
       ai_summary, ai_summary_version, ai_priority, ai_priority_reason, ai_tags, ai_tag_confidence, ai_updated_at,
       ai_update_policy, messages_since_last_ai, created_at, updated_at`

// Create inserts a new conversation.
func (r *PGRepo) Create(ctx context.Context, conversation Conversation) error {
	const query = `
INSERT INTO conversations (id, tenant_id, lead_name, lead_phone, status, ai_update_policy, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	policyPayload, err := marshalPolicy(conversation.AIUpdatePolicy)
	if err != nil {
		return err
	}
	status := conversation.Status
	if status == "" {
		status = StatusOpen
	}
	createdAt := conversation.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.DB.ExecContext(ctx, query,
		conversation.ID,
		conversation.TenantID,
		conversation.LeadName,
		conversation.LeadPhone,
		status,
		policyPayload,
		createdAt,
	)
	return err
}

// GetByID returns a conversation scoped to the tenant.
func (r *PGRepo) GetByID(ctx context.Context, tenantID, conversationID string) (Conversation, error) {
	const query = `
SELECT ` + conversationColumns + `
FROM conversations
WHERE id = $1 AND tenant_id = $2
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, conversationID, tenantID)
	return scanConversation(row)
}

// ListByTenant lists conversations newest-first.
func (r *PGRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT ` + conversationColumns + `
FROM conversations
WHERE tenant_id = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// IncrementMessagesSinceAI bumps the policy counter.
func (r *PGRepo) IncrementMessagesSinceAI(ctx context.Context, tenantID, conversationID string) error {
	const query = `
UPDATE conversations
SET messages_since_last_ai = messages_since_last_ai + 1,
    updated_at = now()
WHERE id = $1 AND tenant_id = $2`
	res, err := r.DB.ExecContext(ctx, query, conversationID, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyAnalysis persists one analysis run in a single statement so readers
// never see a new summary with a stale version or counter.
func (r *PGRepo) ApplyAnalysis(ctx context.Context, tenantID, conversationID string, result ai.AnalysisResult, analyzedAt time.Time) (Conversation, error) {
	const query = `
UPDATE conversations
SET ai_summary = $3,
    ai_summary_version = ai_summary_version + 1,
    ai_priority = $4,
    ai_priority_reason = $5,
    ai_tags = $6::jsonb,
    ai_tag_confidence = $7::jsonb,
    ai_updated_at = $8,
    messages_since_last_ai = 0,
    updated_at = $8
WHERE id = $1 AND tenant_id = $2
RETURNING ` + conversationColumns

	tagsPayload, err := json.Marshal(result.TagNames())
	if err != nil {
		return Conversation{}, err
	}
	confidencePayload, err := json.Marshal(result.TagConfidence())
	if err != nil {
		return Conversation{}, err
	}

	row := r.DB.QueryRowContext(ctx, query,
		conversationID,
		tenantID,
		result.Summary,
		string(result.Priority),
		result.PriorityReason,
		tagsPayload,
		confidencePayload,
		analyzedAt,
	)
	return scanConversation(row)
}

// SetUpdatePolicy sets or clears the conversation-level cadence override.
func (r *PGRepo) SetUpdatePolicy(ctx context.Context, tenantID, conversationID string, policy *ai.UpdatePolicy) error {
	const query = `
UPDATE conversations
SET ai_update_policy = $3::jsonb,
    updated_at = now()
WHERE id = $1 AND tenant_id = $2`
	payload, err := marshalPolicy(policy)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, conversationID, tenantID, payload)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var conv Conversation
	var leadPhone sql.NullString
	var summary sql.NullString
	var priority sql.NullString
	var priorityReason sql.NullString
	var tags sql.NullString
	var tagConfidence sql.NullString
	var aiUpdatedAt sql.NullTime
	var policy sql.NullString
	err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.LeadName,
		&leadPhone,
		&conv.Status,
		&summary,
		&conv.AISummaryVersion,
		&priority,
		&priorityReason,
		&tags,
		&tagConfidence,
		&aiUpdatedAt,
		&policy,
		&conv.MessagesSinceLastAI,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	if leadPhone.Valid {
		conv.LeadPhone = leadPhone.String
	}
	if summary.Valid {
		conv.AISummary = summary.String
	}
	if priority.Valid {
		conv.AIPriority = priority.String
	}
	if priorityReason.Valid {
		conv.AIPriorityReason = priorityReason.String
	}
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &conv.AITags)
	}
	if tagConfidence.Valid && tagConfidence.String != "" {
		_ = json.Unmarshal([]byte(tagConfidence.String), &conv.AITagConfidence)
	}
	if aiUpdatedAt.Valid {
		conv.AIUpdatedAt = &aiUpdatedAt.Time
	}
	if policy.Valid && policy.String != "" && policy.String != "null" {
		var parsed ai.UpdatePolicy
		if err := json.Unmarshal([]byte(policy.String), &parsed); err == nil {
			conv.AIUpdatePolicy = &parsed
		}
	}
	return conv, nil
}

func marshalPolicy(policy *ai.UpdatePolicy) (any, error) {
	if policy == nil {
		return nil, nil
	}
	return json.Marshal(policy)
}
