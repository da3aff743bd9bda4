package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"crm-backend/internal/shared/metrics"
	"crm-backend/internal/shared/retry"
	"crm-backend/internal/shared/telemetry"
)

// The partial unique index on (dedupe_key) WHERE status = 'pending' is what
// enforces at-most-one pending job per conversation; the upsert below leans
// on it to turn duplicate enqueues into window slides.
const (
	enqueueQuery = `
		INSERT INTO analysis_jobs (id, dedupe_key, tenant_id, conversation_id, status, not_before, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $6)
		ON CONFLICT (dedupe_key) WHERE status = 'pending'
		DO UPDATE SET not_before = EXCLUDED.not_before, updated_at = EXCLUDED.updated_at
		RETURNING (created_at = updated_at)`

	dequeueQuery = `
		UPDATE analysis_jobs
		SET status = 'running', attempts = attempts + 1, updated_at = $2
		WHERE id = (
			SELECT id FROM analysis_jobs
			WHERE status = 'pending' AND not_before <= $1
			ORDER BY not_before
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, dedupe_key, tenant_id, conversation_id, status, not_before, attempts, COALESCE(last_error, ''), created_at, updated_at`

	completeQuery = `
		UPDATE analysis_jobs
		SET status = 'completed', updated_at = $2, completed_at = $2
		WHERE id = $1 AND status = 'running'`

	requeueQuery = `
		UPDATE analysis_jobs
		SET status = 'pending', not_before = $2, last_error = $3, updated_at = $4
		WHERE id = $1 AND status = 'running'`

	markFailedQuery = `
		UPDATE analysis_jobs
		SET status = $2, last_error = $3, updated_at = $4, completed_at = $4
		WHERE id = $1 AND status = 'running'`

	// Jobs whose worker died mid-run go back to pending, unless a newer
	// pending job for the conversation already covers the work. Requeue must
	// run first so the second sweep only sees the superseded leftovers.
	recoverStalledQuery = `
		UPDATE analysis_jobs AS stalled
		SET status = 'pending', not_before = $2, updated_at = $2
		WHERE stalled.status = 'running' AND stalled.updated_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM analysis_jobs p
				WHERE p.dedupe_key = stalled.dedupe_key AND p.status = 'pending'
			)`

	supersedeStalledQuery = `
		UPDATE analysis_jobs
		SET status = 'completed', last_error = 'stalled; superseded by a newer job', updated_at = $2, completed_at = $2
		WHERE status = 'running' AND updated_at < $1`

	cleanupCompletedQuery = `
		DELETE FROM analysis_jobs
		WHERE status = 'completed' AND (
			completed_at < $1
			OR id IN (
				SELECT id FROM analysis_jobs WHERE status = 'completed'
				ORDER BY completed_at DESC OFFSET $2
			)
		)`

	cleanupFailedQuery = `
		DELETE FROM analysis_jobs
		WHERE status = 'failed' AND (
			completed_at < $1
			OR id IN (
				SELECT id FROM analysis_jobs WHERE status = 'failed'
				ORDER BY completed_at DESC OFFSET $2
			)
		)`
)

// PGQueue is the Postgres-backed queue. Claiming uses FOR UPDATE SKIP LOCKED,
// so any number of worker processes can poll the same table safely.
type PGQueue struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
}

func NewPGQueue(db *sql.DB, opts Options) *PGQueue {
	if opts.MaxAttempts <= 0 {
		opts = DefaultOptions()
	}
	if opts.RunningLease <= 0 {
		opts.RunningLease = DefaultOptions().RunningLease
	}
	return &PGQueue{db: db, opts: opts, now: time.Now}
}

func (q *PGQueue) Enqueue(ctx context.Context, tenantID, conversationID string, delay time.Duration) error {
	now := q.now().UTC()
	var inserted bool
	err := q.db.QueryRowContext(ctx, enqueueQuery,
		uuid.NewString(),
		DedupeKey(tenantID, conversationID),
		tenantID,
		conversationID,
		now.Add(delay),
		now,
	).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("enqueue analysis job: %w", err)
	}
	if inserted {
		metrics.IncJobsEnqueued()
	} else {
		metrics.IncJobsDebounced()
	}
	return nil
}

func (q *PGQueue) Dequeue(ctx context.Context) (*Job, error) {
	now := q.now().UTC()
	var job Job
	err := q.db.QueryRowContext(ctx, dequeueQuery, now, now).Scan(
		&job.ID,
		&job.DedupeKey,
		&job.TenantID,
		&job.ConversationID,
		&job.Status,
		&job.NotBefore,
		&job.Attempts,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue analysis job: %w", err)
	}
	return &job, nil
}

func (q *PGQueue) Complete(ctx context.Context, jobID string) error {
	now := q.now().UTC()
	if _, err := q.db.ExecContext(ctx, completeQuery, jobID, now); err != nil {
		return fmt.Errorf("complete analysis job: %w", err)
	}
	metrics.IncJobsCompleted()
	return nil
}

func (q *PGQueue) Fail(ctx context.Context, job *Job, cause error, retryable bool) error {
	now := q.now().UTC()
	msg := truncateError(cause)

	if retryable && job.Attempts < q.opts.MaxAttempts {
		backoff := retry.Policy{BaseDelay: q.opts.RetryBaseDelay, Multiplier: 2}.Delay(job.Attempts)
		_, err := q.db.ExecContext(ctx, requeueQuery, job.ID, now.Add(backoff), msg, now)
		if err == nil {
			return nil
		}
		// A fresh pending job for this conversation appeared while we held
		// this one. The new job covers the work, so this attempt is done.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			telemetry.Info("jobqueue.superseded", map[string]any{
				"job_id":     job.ID,
				"dedupe_key": job.DedupeKey,
			})
			if _, err := q.db.ExecContext(ctx, markFailedQuery, job.ID, StatusCompleted, msg, now); err != nil {
				return fmt.Errorf("mark superseded job: %w", err)
			}
			return nil
		}
		return fmt.Errorf("requeue analysis job: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, markFailedQuery, job.ID, StatusFailed, msg, now); err != nil {
		return fmt.Errorf("mark failed job: %w", err)
	}
	metrics.IncJobsFailed()
	return nil
}

func (q *PGQueue) Cleanup(ctx context.Context) error {
	now := q.now().UTC()
	staleBefore := now.Add(-q.opts.RunningLease)

	res, err := q.db.ExecContext(ctx, recoverStalledQuery, staleBefore, now)
	if err != nil {
		return fmt.Errorf("recover stalled jobs: %w", err)
	}
	if recovered, _ := res.RowsAffected(); recovered > 0 {
		telemetry.Info("jobqueue.stalled_recovered", map[string]any{"count": recovered})
	}
	if _, err := q.db.ExecContext(ctx, supersedeStalledQuery, staleBefore, now); err != nil {
		return fmt.Errorf("supersede stalled jobs: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, cleanupCompletedQuery, now.Add(-q.opts.CompletedRetention), q.opts.CompletedKeep); err != nil {
		return fmt.Errorf("cleanup completed jobs: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, cleanupFailedQuery, now.Add(-q.opts.FailedRetention), q.opts.FailedKeep); err != nil {
		return fmt.Errorf("cleanup failed jobs: %w", err)
	}
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}
