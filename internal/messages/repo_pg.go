package messages

import (
	"context"
	"database/sql"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new message.
func (r *PGRepo) Create(ctx context.Context, message Message) error {
	const query = `
INSERT INTO messages (id, tenant_id, conversation_id, sender_type, content_text, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, query,
		message.ID,
		message.TenantID,
		message.ConversationID,
		message.SenderType,
		message.ContentText,
		createdAt,
	)
	return err
}

// RecentByConversation returns the last limit messages, oldest first.
func (r *PGRepo) RecentByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
SELECT id, tenant_id, conversation_id, sender_type, content_text, created_at
FROM messages
WHERE tenant_id = $1 AND conversation_id = $2
ORDER BY created_at DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, tenantID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the index, chronological for callers.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListByConversation pages messages oldest-first.
func (r *PGRepo) ListByConversation(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, tenant_id, conversation_id, sender_type, content_text, created_at
FROM messages
WHERE tenant_id = $1 AND conversation_id = $2
ORDER BY created_at
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, tenantID, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

var _ Repo = (*PGRepo)(nil)

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.ConversationID,
			&m.SenderType,
			&m.ContentText,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
