package ai

import (
	"errors"
	"strings"
	"testing"
)

func validResult() AnalysisResult {
	return AnalysisResult{
		Summary:        "Lead asked about premium pricing and wants a call this week.",
		Priority:       PriorityHigh,
		PriorityReason: "explicit buying intent",
		Tags:           []Tag{{Tag: "pricing", Confidence: 0.9}},
	}
}

func TestAnalysisResultValidate(t *testing.T) {
	if err := validResult().Validate(); err != nil {
		t.Fatalf("valid result: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*AnalysisResult)
	}{
		{"empty summary", func(r *AnalysisResult) { r.Summary = "  " }},
		{"summary too long", func(r *AnalysisResult) { r.Summary = strings.Repeat("x", MaxSummaryLen+1) }},
		{"unknown priority", func(r *AnalysisResult) { r.Priority = "CRITICAL" }},
		{"empty tag", func(r *AnalysisResult) { r.Tags = []Tag{{Tag: "", Confidence: 0.5}} }},
		{"confidence above one", func(r *AnalysisResult) { r.Tags = []Tag{{Tag: "pricing", Confidence: 1.5}} }},
		{"confidence below zero", func(r *AnalysisResult) { r.Tags = []Tag{{Tag: "pricing", Confidence: -0.1}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validResult()
			tc.mutate(&r)
			err := r.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var malformed MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("want MalformedResponseError, got %T", err)
			}
		})
	}
}

func TestAnalysisResultValidateBoundarySummary(t *testing.T) {
	r := validResult()
	r.Summary = strings.Repeat("x", MaxSummaryLen)
	if err := r.Validate(); err != nil {
		t.Fatalf("summary at limit should pass: %v", err)
	}
}

func TestDecodeResultStripsFences(t *testing.T) {
	raw := "```json\n{\"summary\":\"s\",\"priority\":\"LOW\",\"priorityReason\":\"r\",\"tags\":[]}\n```"
	got, err := DecodeResult("openai", raw)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if got.Priority != PriorityLow {
		t.Fatalf("priority = %q", got.Priority)
	}
}

func TestDecodeResultRejectsGarbage(t *testing.T) {
	_, err := DecodeResult("openai", "I cannot answer that.")
	var malformed MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("want MalformedResponseError, got %v", err)
	}
	if malformed.Provider != "openai" {
		t.Fatalf("provider = %q", malformed.Provider)
	}
}
