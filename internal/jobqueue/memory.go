package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"crm-backend/internal/shared/metrics"
	"crm-backend/internal/shared/retry"
)

// MemoryQueue mirrors PGQueue semantics for dev mode and tests: one pending
// job per dedupe key, sliding delay window, backoff requeue.
type MemoryQueue struct {
	mu      sync.Mutex
	pending map[string]*Job // by dedupe key
	running map[string]*Job // by job id
	done    []*Job
	opts    Options
	now     func() time.Time
}

func NewMemoryQueue(opts Options) *MemoryQueue {
	if opts.MaxAttempts <= 0 {
		opts = DefaultOptions()
	}
	if opts.RunningLease <= 0 {
		opts.RunningLease = DefaultOptions().RunningLease
	}
	return &MemoryQueue{
		pending: make(map[string]*Job),
		running: make(map[string]*Job),
		opts:    opts,
		now:     time.Now,
	}
}

// SetNow overrides the clock for tests.
func (q *MemoryQueue) SetNow(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(ctx context.Context, tenantID, conversationID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	key := DedupeKey(tenantID, conversationID)
	if existing, ok := q.pending[key]; ok {
		existing.NotBefore = now.Add(delay)
		existing.UpdatedAt = now
		metrics.IncJobsDebounced()
		return nil
	}
	q.pending[key] = &Job{
		ID:             uuid.NewString(),
		DedupeKey:      key,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Status:         StatusPending,
		NotBefore:      now.Add(delay),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	metrics.IncJobsEnqueued()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var ready *Job
	for _, job := range q.pending {
		if job.NotBefore.After(now) {
			continue
		}
		if ready == nil || job.NotBefore.Before(ready.NotBefore) {
			ready = job
		}
	}
	if ready == nil {
		return nil, nil
	}
	delete(q.pending, ready.DedupeKey)
	ready.Status = StatusRunning
	ready.Attempts++
	ready.UpdatedAt = now
	q.running[ready.ID] = ready

	claimed := *ready
	return &claimed, nil
}

func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.running[jobID]
	if !ok {
		return nil
	}
	delete(q.running, jobID)
	job.Status = StatusCompleted
	job.UpdatedAt = q.now().UTC()
	q.done = append(q.done, job)
	metrics.IncJobsCompleted()
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, failed *Job, cause error, retryable bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.running[failed.ID]
	if !ok {
		return nil
	}
	delete(q.running, failed.ID)
	now := q.now().UTC()
	job.LastError = truncateError(cause)
	job.UpdatedAt = now

	if retryable && job.Attempts < q.opts.MaxAttempts {
		// A newer pending job for the same conversation supersedes the retry.
		if _, exists := q.pending[job.DedupeKey]; exists {
			job.Status = StatusCompleted
			q.done = append(q.done, job)
			return nil
		}
		backoff := retry.Policy{BaseDelay: q.opts.RetryBaseDelay, Multiplier: 2}.Delay(job.Attempts)
		job.Status = StatusPending
		job.NotBefore = now.Add(backoff)
		q.pending[job.DedupeKey] = job
		return nil
	}

	job.Status = StatusFailed
	q.done = append(q.done, job)
	metrics.IncJobsFailed()
	return nil
}

func (q *MemoryQueue) Cleanup(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()

	// Recover jobs whose worker died mid-run, unless a newer pending job
	// for the conversation already covers the work.
	for id, job := range q.running {
		if now.Sub(job.UpdatedAt) < q.opts.RunningLease {
			continue
		}
		delete(q.running, id)
		job.UpdatedAt = now
		if _, exists := q.pending[job.DedupeKey]; exists {
			job.Status = StatusCompleted
			job.LastError = "stalled; superseded by a newer job"
			q.done = append(q.done, job)
			continue
		}
		job.Status = StatusPending
		job.NotBefore = now
		q.pending[job.DedupeKey] = job
	}

	// Retention by age and count, per status. done is oldest first, so the
	// overflow drops the oldest jobs, matching the Postgres OFFSET pruning.
	completed, failed := 0, 0
	for _, job := range q.done {
		if job.Status == StatusFailed {
			failed++
		} else {
			completed++
		}
	}
	kept := q.done[:0]
	for _, job := range q.done {
		retention, keep, over := q.opts.CompletedRetention, q.opts.CompletedKeep, &completed
		if job.Status == StatusFailed {
			retention, keep, over = q.opts.FailedRetention, q.opts.FailedKeep, &failed
		}
		if now.Sub(job.UpdatedAt) >= retention || *over > keep {
			*over--
			continue
		}
		kept = append(kept, job)
	}
	q.done = kept
	return nil
}

// Finished returns terminal jobs, oldest first. Test helper.
func (q *MemoryQueue) Finished() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.done))
	for _, job := range q.done {
		out = append(out, *job)
	}
	return out
}

// PendingCount reports the number of pending jobs. Test helper.
func (q *MemoryQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
