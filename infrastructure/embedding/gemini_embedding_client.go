package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"crm-ai-agent/domain"
)

const geminiMaxBatch = 20

// GeminiEmbeddingClient generates embeddings using the Gemini API.
type GeminiEmbeddingClient struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbeddingClient creates an embedder on a shared genai client.
func NewGeminiEmbeddingClient(client *genai.Client, model string) *GeminiEmbeddingClient {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbeddingClient{client: client, model: model}
}

// GenerateEmbeddings splits texts into groups of 20 to stay under API limits.
func (g *GeminiEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([]domain.Embedding, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+geminiMaxBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, nil)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding batch %d-%d failed: %w", start, end, err)
		}
		for _, emb := range resp.Embeddings {
			all = append(all, domain.Embedding(emb.Values))
		}
	}

	if len(all) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(all), len(texts))
	}
	return all, nil
}
