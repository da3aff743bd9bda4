package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crm-backend/internal/shared/telemetry"
)

// notifyChannel is the single Postgres NOTIFY channel all envelopes share.
// Routing happens on Envelope.Room, not on the channel name.
const notifyChannel = "crm_events"

// PGRelay relays envelopes across processes over Postgres LISTEN/NOTIFY.
// Publishing rides the shared *sql.DB pool; listening holds a dedicated pgx
// connection because NOTIFY delivery is per-session.
type PGRelay struct {
	db  *sql.DB
	url string
}

func NewPGRelay(db *sql.DB, databaseURL string) *PGRelay {
	return &PGRelay{db: db, url: databaseURL}
}

func (r *PGRelay) Publish(ctx context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// Subscribe listens until ctx is done, reconnecting with backoff when the
// listen connection drops. Malformed payloads are logged and skipped.
func (r *PGRelay) Subscribe(ctx context.Context, fn func(Envelope)) error {
	backoff := time.Second
	for {
		err := r.listen(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		telemetry.Error("relay.listen.lost", map[string]any{
			"error":      err.Error(),
			"retry_in_s": backoff.Seconds(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (r *PGRelay) listen(ctx context.Context, fn func(Envelope)) error {
	conn, err := pgx.Connect(ctx, r.url)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	telemetry.Info("relay.listen.started", map[string]any{"channel": notifyChannel})

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait notification: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
			telemetry.Error("relay.payload.invalid", map[string]any{"error": err.Error()})
			continue
		}
		if err := env.Validate(); err != nil {
			telemetry.Error("relay.envelope.invalid", map[string]any{"error": err.Error()})
			continue
		}
		fn(env)
	}
}
