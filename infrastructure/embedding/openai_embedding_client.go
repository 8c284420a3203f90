package embedding

import (
	"context"
	"errors"
	"fmt"

	"crm-ai-agent/domain"

	openai "github.com/sashabaranov/go-openai"
)

const openAIMaxBatch = 100

// OpenAIEmbeddingClient implements the domain.EmbeddingClient interface using the OpenAI API.
type OpenAIEmbeddingClient struct {
	client *openai.Client
	model  openai.EmbeddingModel // e.g., text-embedding-3-small
}

// NewOpenAIEmbeddingClient creates a new OpenAIEmbeddingClient.
func NewOpenAIEmbeddingClient(apiKey string, model openai.EmbeddingModel) (*OpenAIEmbeddingClient, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = openai.SmallEmbedding3
	}
	client := openai.NewClient(apiKey)
	return &OpenAIEmbeddingClient{client: client, model: model}, nil
}

// GenerateEmbeddings generates embeddings for the given texts using the specified OpenAI model.
// Inputs larger than one request are split into batches of 100.
func (c *OpenAIEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([]domain.Embedding, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxBatch {
		end := min(start+openAIMaxBatch, len(texts))

		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: c.model,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings %d-%d: %w", start, end, err)
		}

		for _, data := range resp.Data {
			embeddings = append(embeddings, domain.Embedding(data.Embedding))
		}
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(embeddings), len(texts))
	}
	return embeddings, nil
}
