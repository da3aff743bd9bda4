// Package workerproc executes analysis jobs claimed from the queue.
package workerproc

import (
	"context"
	"errors"

	"crm-backend/internal/ai"
	"crm-backend/internal/jobqueue"
	"crm-backend/internal/shared/metrics"
	"crm-backend/internal/shared/telemetry"
)

// HandleJob runs one claimed job: evaluate the update policy, then analyze.
// A nil return means the job is done, whether it analyzed or skipped; the
// caller completes it. Errors are classified by Retryable.
func HandleJob(ctx context.Context, svc *ai.Service, job *jobqueue.Job) error {
	ok, err := svc.ShouldAnalyzeConversation(ctx, job.TenantID, job.ConversationID)
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncJobsSkipped()
		telemetry.Info("worker.job.skipped", map[string]any{
			"job_id":          job.ID,
			"tenant_id":       job.TenantID,
			"conversation_id": job.ConversationID,
		})
		return nil
	}
	return svc.AnalyzeConversation(ctx, job.TenantID, job.ConversationID)
}

// Retryable classifies a HandleJob error for the queue. Configuration
// problems will not fix themselves between attempts; everything else gets
// the queue's backoff.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ai.ErrNotConfigured) {
		return false
	}
	var unsupported ai.UnsupportedProviderError
	return !errors.As(err, &unsupported)
}
