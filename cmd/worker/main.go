package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crm-backend/internal/bootstrap"
	"crm-backend/internal/jobqueue"
	"crm-backend/internal/shared/config"
	"crm-backend/internal/shared/telemetry"
	"crm-backend/internal/workerproc"
)

const (
	pollInterval    = 500 * time.Millisecond
	cleanupInterval = 5 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	// One semaphore across all tenants: the concurrency bound is global.
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Printf("worker started concurrency=%d debounce=%s", concurrency, cfg.AIDebounce)

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

pollLoop:
	for {
		// Take a slot before claiming so a dequeued job always gets a
		// handler; once shutdown begins, nothing new is claimed.
		select {
		case <-ctx.Done():
			break pollLoop
		case <-cleanupTicker.C:
			if err := app.Queue.Cleanup(ctx); err != nil && ctx.Err() == nil {
				log.Printf("queue cleanup: %v", err)
			}
			continue
		case sem <- struct{}{}:
		}

		job, err := app.Queue.Dequeue(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("dequeue: %v", err)
			sleep(ctx, pollInterval)
			continue
		}
		if job == nil {
			<-sem
			sleep(ctx, pollInterval)
			continue
		}

		wg.Add(1)
		go func(job *jobqueue.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			handleJob(ctx, app, job)
		}(job)
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

func handleJob(ctx context.Context, app *bootstrap.App, job *jobqueue.Job) {
	err := workerproc.HandleJob(ctx, app.AIService, job)
	if err == nil {
		if err := app.Queue.Complete(ctx, job.ID); err != nil {
			log.Printf("complete job %s: %v", job.ID, err)
		}
		return
	}

	retryable := workerproc.Retryable(err)
	telemetry.Error("worker.job.failed", map[string]any{
		"job_id":          job.ID,
		"tenant_id":       job.TenantID,
		"conversation_id": job.ConversationID,
		"attempts":        job.Attempts,
		"retryable":       retryable,
		"error":           err.Error(),
	})
	// Queue bookkeeping must survive a canceled job context.
	failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Queue.Fail(failCtx, job, err, retryable); err != nil {
		log.Printf("fail job %s: %v", job.ID, err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
