// Package gemini implements the Gemini analysis provider against the
// generateContent REST API. No official SDK: the surface we need is one
// endpoint with a JSON response mime type.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crm-backend/internal/ai"
)

const (
	baseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 60 * time.Second
)

type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
}

// New builds the provider from a resolved tenant or global config.
func New(cfg ai.ProviderConfig) (ai.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     cfg.APIKey,
		model:      model,
	}, nil
}

func (c *Client) Name() string { return "gemini" }

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini api error %d (%s): %s", e.Code, e.Status, e.Message)
}

func (c *Client) Analyze(ctx context.Context, convCtx ai.ConversationContext) (ai.AnalysisResult, error) {
	reqBody := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: ai.AnalysisSystemPrompt()}}},
		Contents: []content{
			{Role: "user", Parts: []part{{Text: ai.BuildAnalysisPrompt(convCtx)}}},
		},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return ai.AnalysisResult{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ai.AnalysisResult{}, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ai.AnalysisResult{}, ai.ProviderError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ai.AnalysisResult{}, ai.ProviderError{Provider: c.Name(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return ai.AnalysisResult{}, ai.ProviderError{
			Provider: c.Name(),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return ai.AnalysisResult{}, ai.MalformedResponseError{Provider: c.Name(), Reason: "invalid response body: " + err.Error()}
	}
	if result.Error != nil {
		return ai.AnalysisResult{}, ai.ProviderError{Provider: c.Name(), Err: result.Error}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return ai.AnalysisResult{}, ai.MalformedResponseError{Provider: c.Name(), Reason: "no candidates in response"}
	}
	return ai.DecodeResult(c.Name(), result.Candidates[0].Content.Parts[0].Text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
