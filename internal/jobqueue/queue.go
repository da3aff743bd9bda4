// Package jobqueue is the debounced analysis job queue. One pending job per
// conversation at a time: re-enqueueing an existing key slides its delay
// window forward instead of adding a job, which is what collapses message
// bursts into a single analysis run.
package jobqueue

import (
	"context"
	"time"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one scheduled analysis run.
type Job struct {
	ID             string
	DedupeKey      string
	TenantID       string
	ConversationID string
	Status         string
	NotBefore      time.Time
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DedupeKey scopes debouncing to one conversation within one tenant.
func DedupeKey(tenantID, conversationID string) string {
	return tenantID + ":" + conversationID
}

// Options tune retry and retention. Retention mirrors what a busy queue
// needs: completed jobs are short-lived bookkeeping, failed jobs stick
// around long enough to debug.
type Options struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration

	CompletedKeep      int
	CompletedRetention time.Duration
	FailedKeep         int
	FailedRetention    time.Duration

	// RunningLease bounds how long a claimed job may sit in running before
	// cleanup treats its worker as dead and recovers the job. Must be far
	// longer than any legitimate analysis run.
	RunningLease time.Duration
}

// DefaultOptions returns the production tuning: 3 attempts with 2s
// exponential backoff, keep 100 completed for 1h and 1000 failed for 24h,
// recover jobs stuck in running after 5m.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:        3,
		RetryBaseDelay:     2 * time.Second,
		CompletedKeep:      100,
		CompletedRetention: time.Hour,
		FailedKeep:         1000,
		FailedRetention:    24 * time.Hour,
		RunningLease:       5 * time.Minute,
	}
}

// Queue is the debounced job queue contract shared by the Postgres and
// in-memory implementations.
type Queue interface {
	// Enqueue schedules an analysis after delay. If a pending job for the
	// same conversation exists, its window slides to now+delay and no new
	// job is created.
	Enqueue(ctx context.Context, tenantID, conversationID string, delay time.Duration) error

	// Dequeue claims the oldest ready job, or returns nil when none is due.
	Dequeue(ctx context.Context) (*Job, error)

	// Complete marks a claimed job done.
	Complete(ctx context.Context, jobID string) error

	// Fail records the error. Retryable failures under the attempt limit go
	// back to pending with exponential backoff; the rest become failed.
	Fail(ctx context.Context, job *Job, cause error, retryable bool) error

	// Cleanup recovers jobs stranded in running past their lease (worker
	// crashed or was killed mid-run), then prunes completed and failed jobs
	// past their retention or count caps.
	Cleanup(ctx context.Context) error
}
