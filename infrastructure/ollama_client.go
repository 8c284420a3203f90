package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaClient produces completions from a local Ollama server.
type OllamaClient struct {
	client    *api.Client
	model     string
	maxTokens int
}

// NewOllamaAPIClient builds the raw API client for host.
func NewOllamaAPIClient(host string) (*api.Client, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

// NewOllamaClient creates a completion client. An empty model selects
// llama3.1.
func NewOllamaClient(client *api.Client, model string, maxTokens int) *OllamaClient {
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaClient{client: client, model: model, maxTokens: maxTokens}
}

// Generate runs a non-streaming generate request.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}
	if o.maxTokens > 0 {
		req.Options = map[string]any{"num_predict": o.maxTokens}
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama completion failed: %w", err)
	}
	return sb.String(), nil
}
