package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestQueue(start time.Time) (*MemoryQueue, *time.Time) {
	now := start
	q := NewMemoryQueue(Options{
		MaxAttempts:        3,
		RetryBaseDelay:     2 * time.Second,
		CompletedKeep:      100,
		CompletedRetention: time.Hour,
		FailedKeep:         1000,
		FailedRetention:    24 * time.Hour,
	})
	q.SetNow(func() time.Time { return now })
	return q, &now
}

// A burst of messages within the debounce window collapses to one job.
func TestEnqueueCollapsesBurst(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, "t1", "c1", 10*time.Second); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		*now = now.Add(2 * time.Second)
	}

	if got := q.PendingCount(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	// Not ready yet: the last enqueue slid the window forward.
	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("job ready too early: %+v", job)
	}

	*now = now.Add(10 * time.Second)
	job, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job == nil {
		t.Fatalf("job should be ready after the window elapsed")
	}
	if job.TenantID != "t1" || job.ConversationID != "c1" {
		t.Fatalf("job = %+v", job)
	}
}

// Different conversations never share a debounce window.
func TestEnqueueKeysAreTenantScoped(t *testing.T) {
	q, _ := newTestQueue(time.Now().UTC())
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "t2", "c1", time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "t1", "c2", time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if got := q.PendingCount(); got != 3 {
		t.Fatalf("pending = %d, want 3 distinct jobs", got)
	}
}

func TestFailRequeuesWithBackoffThenFails(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()
	cause := errors.New("provider down")

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue attempt %d: %v", attempt, err)
		}
		if job == nil {
			t.Fatalf("attempt %d: no job ready", attempt)
		}
		if job.Attempts != attempt {
			t.Fatalf("attempt %d: job.Attempts = %d", attempt, job.Attempts)
		}
		if err := q.Fail(ctx, job, cause, true); err != nil {
			t.Fatalf("Fail attempt %d: %v", attempt, err)
		}
		// 2s, 4s backoff; jump past whatever was scheduled.
		*now = now.Add(time.Minute)
	}

	if got := q.PendingCount(); got != 0 {
		t.Fatalf("pending = %d after exhausting attempts", got)
	}
	finished := q.Finished()
	if len(finished) != 1 || finished[0].Status != StatusFailed {
		t.Fatalf("finished = %+v, want one failed job", finished)
	}
	if finished[0].LastError != "provider down" {
		t.Fatalf("last error = %q", finished[0].LastError)
	}
}

func TestFailBackoffDelaysRetry(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx)
	if err := q.Fail(ctx, job, errors.New("x"), true); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	*now = now.Add(time.Second)
	if job, _ := q.Dequeue(ctx); job != nil {
		t.Fatalf("retry ready before 2s backoff")
	}
	*now = now.Add(2 * time.Second)
	job, _ = q.Dequeue(ctx)
	if job == nil {
		t.Fatalf("retry not ready after backoff")
	}
	if job.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", job.Attempts)
	}
}

func TestFailPermanentSkipsRetry(t *testing.T) {
	q, _ := newTestQueue(time.Now().UTC())
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx)
	if err := q.Fail(ctx, job, errors.New("unsupported ai provider: x"), false); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if got := q.PendingCount(); got != 0 {
		t.Fatalf("permanent failure must not requeue, pending = %d", got)
	}
	finished := q.Finished()
	if len(finished) != 1 || finished[0].Status != StatusFailed {
		t.Fatalf("finished = %+v", finished)
	}
}

// A new pending job arriving while the old one runs makes the old retry
// redundant.
func TestFailSupersededByNewerJob(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx)

	// New message arrives mid-run.
	if err := q.Enqueue(ctx, "t1", "c1", 10*time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := q.Fail(ctx, job, errors.New("transient"), true); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if got := q.PendingCount(); got != 1 {
		t.Fatalf("pending = %d, want only the newer job", got)
	}
	*now = now.Add(time.Minute)
	next, _ := q.Dequeue(ctx)
	if next == nil || next.Attempts != 1 {
		t.Fatalf("next = %+v, want the fresh job on its first attempt", next)
	}
}

// A job claimed by a worker that died must come back to pending once its
// lease expires, never sit in running forever.
func TestCleanupRecoversStalledJob(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx)
	if job == nil {
		t.Fatalf("no job claimed")
	}

	// Worker dies; neither Complete nor Fail ever runs.
	*now = now.Add(10 * time.Minute)
	if err := q.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if got := q.PendingCount(); got != 1 {
		t.Fatalf("pending = %d, want the recovered job", got)
	}
	next, _ := q.Dequeue(ctx)
	if next == nil || next.ID != job.ID || next.Attempts != 2 {
		t.Fatalf("next = %+v, want recovered job on attempt 2", next)
	}
}

// A stalled job whose conversation already has a newer pending job is
// redundant: close it out instead of requeueing a duplicate.
func TestCleanupSupersedesStalledJob(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	stalled, _ := q.Dequeue(ctx)

	if err := q.Enqueue(ctx, "t1", "c1", time.Second); err != nil {
		t.Fatalf("Enqueue newer: %v", err)
	}

	*now = now.Add(10 * time.Minute)
	if err := q.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if got := q.PendingCount(); got != 1 {
		t.Fatalf("pending = %d, want only the newer job", got)
	}
	finished := q.Finished()
	if len(finished) != 1 || finished[0].ID != stalled.ID || finished[0].Status != StatusCompleted {
		t.Fatalf("finished = %+v, want the stalled job closed out", finished)
	}
	next, _ := q.Dequeue(ctx)
	if next == nil || next.Attempts != 1 {
		t.Fatalf("next = %+v, want the fresh job on its first attempt", next)
	}
}

// Retention caps by count as well as age, oldest dropped first.
func TestCleanupEnforcesCountCaps(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := start
	q := NewMemoryQueue(Options{
		MaxAttempts:        3,
		RetryBaseDelay:     2 * time.Second,
		CompletedKeep:      2,
		CompletedRetention: 24 * time.Hour,
		FailedKeep:         1,
		FailedRetention:    24 * time.Hour,
	})
	q.SetNow(func() time.Time { return now })
	ctx := context.Background()

	for _, conv := range []string{"c1", "c2", "c3", "c4"} {
		if err := q.Enqueue(ctx, "t1", conv, 0); err != nil {
			t.Fatalf("Enqueue %s: %v", conv, err)
		}
		job, _ := q.Dequeue(ctx)
		if err := q.Complete(ctx, job.ID); err != nil {
			t.Fatalf("Complete %s: %v", conv, err)
		}
		now = now.Add(time.Minute)
	}
	for _, conv := range []string{"c5", "c6"} {
		if err := q.Enqueue(ctx, "t1", conv, 0); err != nil {
			t.Fatalf("Enqueue %s: %v", conv, err)
		}
		job, _ := q.Dequeue(ctx)
		if err := q.Fail(ctx, job, errors.New("boom"), false); err != nil {
			t.Fatalf("Fail %s: %v", conv, err)
		}
		now = now.Add(time.Minute)
	}

	if err := q.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	var completed, failed []string
	for _, job := range q.Finished() {
		if job.Status == StatusFailed {
			failed = append(failed, job.ConversationID)
		} else {
			completed = append(completed, job.ConversationID)
		}
	}
	if len(completed) != 2 || completed[0] != "c3" || completed[1] != "c4" {
		t.Fatalf("completed kept = %v, want newest two", completed)
	}
	if len(failed) != 1 || failed[0] != "c6" {
		t.Fatalf("failed kept = %v, want newest one", failed)
	}
}

func TestCleanupDropsExpiredJobs(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	q, now := newTestQueue(start)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "t1", "c1", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx)
	if err := q.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	*now = now.Add(2 * time.Hour)
	if err := q.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := len(q.Finished()); got != 0 {
		t.Fatalf("finished = %d after retention elapsed, want 0", got)
	}
}
