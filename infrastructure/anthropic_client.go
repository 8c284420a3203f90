package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is a wrapper around the Anthropic API client.
// It provides a simplified interface for single-prompt completions.
type AnthropicClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient creates a new Anthropic client.
//
// It returns an error if apiKey is empty. An empty model selects the
// latest Claude Sonnet model.
func NewAnthropicClient(apiKey, model string, maxTokens int) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := anthropic.ModelClaude3_7SonnetLatest
	if model != "" {
		m = anthropic.Model(model)
	}

	return &AnthropicClient{
		client:    &client,
		model:     m,
		maxTokens: int64(maxTokens),
	}, nil
}

// Generate sends a single user message and returns the concatenated text
// blocks of the reply.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic returned no text content")
	}
	return sb.String(), nil
}
