package embedding

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"crm-ai-agent/domain"
)

// OllamaEmbeddingClient generates embeddings with a local Ollama model.
type OllamaEmbeddingClient struct {
	client *api.Client
	model  string
}

// NewOllamaEmbeddingClient creates an embedder. An empty model selects
// nomic-embed-text.
func NewOllamaEmbeddingClient(client *api.Client, model string) *OllamaEmbeddingClient {
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbeddingClient{client: client, model: model}
}

// GenerateEmbeddings embeds all texts in one request.
func (o *OllamaEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([]domain.Embedding, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		out[i] = domain.Embedding(v)
	}
	return out, nil
}
