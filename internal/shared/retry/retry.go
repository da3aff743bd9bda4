package retry

import (
	"context"
	"time"
)

// Policy is a bounded exponential backoff: attempt n (1-based) sleeps
// BaseDelay * Multiplier^(n-1) before retrying. Both the provider-call retry
// and the queue-level retry share this shape.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Retryable lets callers mark errors as permanent so Do stops early.
type Retryable func(error) bool

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Delay returns the backoff before retrying after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Do runs fn up to MaxAttempts times, sleeping Delay(attempt) between
// attempts. A nil retryable treats every error as retryable. The final error
// is returned on exhaustion; context cancellation aborts the backoff sleep.
func Do(ctx context.Context, p Policy, retryable Retryable, fn func(context.Context) error) error {
	p = p.normalized()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
