package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("boom")
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}

	err := Do(context.Background(), policy, nil, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do: got %v, want %v", err, wantErr)
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}

	err := Do(context.Background(), policy, nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2}

	err := Do(context.Background(), policy, func(err error) bool {
		return !errors.Is(err, permanent)
	}, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do: got %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, policy, nil, func(context.Context) error {
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDelayDoubles(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
