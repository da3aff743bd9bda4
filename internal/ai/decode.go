package ai

import (
	"encoding/json"
	"strings"
)

// DecodeResult parses raw provider output into an AnalysisResult. Models
// sometimes wrap JSON in markdown fences despite instructions, so fences are
// stripped first. Parse failures come back as MalformedResponseError.
func DecodeResult(provider, raw string) (AnalysisResult, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return AnalysisResult{}, MalformedResponseError{Provider: provider, Reason: "empty response"}
	}
	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return AnalysisResult{}, MalformedResponseError{Provider: provider, Reason: "invalid json: " + err.Error()}
	}
	return result, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
