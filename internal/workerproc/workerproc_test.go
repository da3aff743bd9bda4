package workerproc

import (
	"errors"
	"fmt"
	"testing"

	"crm-backend/internal/ai"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not configured", ai.ErrNotConfigured, false},
		{"wrapped not configured", fmt.Errorf("job: %w", ai.ErrNotConfigured), false},
		{"unsupported provider", ai.UnsupportedProviderError{Name: "x"}, false},
		{"wrapped unsupported", fmt.Errorf("job: %w", ai.UnsupportedProviderError{Name: "x"}), false},
		{"provider error", ai.ProviderError{Provider: "openai", Err: errors.New("503")}, true},
		{"malformed response", ai.MalformedResponseError{Provider: "openai", Reason: "bad json"}, true},
		{"plain error", errors.New("db connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
