package ai

import (
	"fmt"
	"strings"
)

const analysisSystemPrompt = `You are a CRM assistant that analyzes sales conversations between a lead and agents.
Given the recent messages you produce a strict JSON object with this shape:
{
  "summary": "concise summary of the conversation state, max 500 characters",
  "priority": "HIGH" | "MEDIUM" | "LOW",
  "priorityReason": "one sentence explaining the priority",
  "tags": [{"tag": "label", "confidence": 0.0-1.0}]
}
Rules:
- Respond with JSON only, no markdown fences, no prose.
- priority must be exactly HIGH, MEDIUM or LOW.
- Keep the summary under 500 characters.
- When a previous summary is provided, produce an incremental update of it rather than starting over.`

// AnalysisSystemPrompt is the shared system instruction for all providers.
func AnalysisSystemPrompt() string { return analysisSystemPrompt }

// BuildAnalysisPrompt renders the user prompt for one analysis call. Both
// providers share it so tenants can switch providers without drift in output.
func BuildAnalysisPrompt(convCtx ConversationContext) string {
	var b strings.Builder
	if convCtx.LeadDisplayName != "" {
		fmt.Fprintf(&b, "Lead: %s\n", convCtx.LeadDisplayName)
	}
	if convCtx.PreviousSummary != "" {
		fmt.Fprintf(&b, "Previous summary (v%d):\n%s\n\n", convCtx.PreviousSummaryVersion, convCtx.PreviousSummary)
	}
	b.WriteString("Recent messages (oldest first):\n")
	for _, m := range convCtx.RecentMessages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.CreatedAt.UTC().Format("2006-01-02 15:04"), m.SenderType, m.ContentText)
	}
	b.WriteString("\nAnalyze the conversation and respond with the JSON object.")
	return b.String()
}
