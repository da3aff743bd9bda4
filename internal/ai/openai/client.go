// Package openai implements the OpenAI analysis provider on the chat
// completions API with JSON response format.
package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"crm-backend/internal/ai"
)

const defaultModel = "gpt-4o-mini"

type Client struct {
	api   *goopenai.Client
	model string
}

// New builds the provider from a resolved tenant or global config.
func New(cfg ai.ProviderConfig) (ai.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{api: goopenai.NewClient(cfg.APIKey), model: model}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Analyze(ctx context.Context, convCtx ai.ConversationContext) (ai.AnalysisResult, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: ai.AnalysisSystemPrompt()},
			{Role: goopenai.ChatMessageRoleUser, Content: ai.BuildAnalysisPrompt(convCtx)},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return ai.AnalysisResult{}, ai.ProviderError{Provider: c.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return ai.AnalysisResult{}, ai.MalformedResponseError{Provider: c.Name(), Reason: "no choices in response"}
	}
	return ai.DecodeResult(c.Name(), resp.Choices[0].Message.Content)
}
