package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/config"
	"crm-ai-agent/infrastructure/embedding"
	"crm-ai-agent/infrastructure/logging"
)

// CompletionProvider pairs a text generator with an embedder. It is the
// single domain.TextCompletionProvider handed to the pipeline.
type CompletionProvider struct {
	name         string
	generator    domain.TextGenerator
	embedder     domain.EmbeddingClient
	embedTimeout time.Duration
	logger       *zap.Logger
}

// NewCompletionProvider composes a provider from its parts.
func NewCompletionProvider(name string, generator domain.TextGenerator, embedder domain.EmbeddingClient, embedTimeout time.Duration, logger *zap.Logger) *CompletionProvider {
	return &CompletionProvider{
		name:         name,
		generator:    generator,
		embedder:     embedder,
		embedTimeout: embedTimeout,
		logger:       logging.OrNop(logger),
	}
}

// Name identifies the underlying completion provider.
func (p *CompletionProvider) Name() string { return p.name }

// Generate forwards to the configured text generator.
func (p *CompletionProvider) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := p.generator.Generate(ctx, prompt)
	p.logger.Debug("completion",
		zap.String("provider", p.name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return out, err
}

// Embed returns the embedding of a single non-empty text.
func (p *CompletionProvider) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", domain.ErrEmbeddingUnavailable)
	}
	vectors, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings embeds a batch. Every failure wraps
// domain.ErrEmbeddingUnavailable.
func (p *CompletionProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if p.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", domain.ErrEmbeddingUnavailable)
	}

	if p.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.embedTimeout)
		defer cancel()
	}

	vectors, err := p.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}

// NewProviderFromConfig selects the completion and embedding backends once,
// at startup.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*CompletionProvider, error) {
	var (
		genaiClient  *genai.Client
		ollamaClient *api.Client
	)
	gemini := func() (*genai.Client, error) {
		if genaiClient != nil {
			return genaiClient, nil
		}
		c, err := NewGenAIClient(ctx, cfg.LLM.GeminiKey)
		genaiClient = c
		return c, err
	}
	ollama := func() (*api.Client, error) {
		if ollamaClient != nil {
			return ollamaClient, nil
		}
		c, err := NewOllamaAPIClient(cfg.LLM.OllamaHost)
		ollamaClient = c
		return c, err
	}

	var generator domain.TextGenerator
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		c, err := NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.Model, cfg.LLM.MaxTokens)
		if err != nil {
			return nil, err
		}
		generator = c
	case config.ProviderAnthropic:
		c, err := NewAnthropicClient(cfg.LLM.AnthropicKey, cfg.LLM.Model, cfg.LLM.MaxTokens)
		if err != nil {
			return nil, err
		}
		generator = c
	case config.ProviderGemini:
		gc, err := gemini()
		if err != nil {
			return nil, err
		}
		generator = NewGeminiClient(gc, cfg.LLM.Model, cfg.LLM.MaxTokens)
	case config.ProviderOllama:
		oc, err := ollama()
		if err != nil {
			return nil, err
		}
		generator = NewOllamaClient(oc, cfg.LLM.Model, cfg.LLM.MaxTokens)
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownProvider, cfg.LLM.Provider)
	}

	var embedder domain.EmbeddingClient
	switch cfg.EmbeddingProvider() {
	case config.ProviderOpenAI:
		c, err := embedding.NewOpenAIEmbeddingClient(cfg.LLM.OpenAIKey, openai.EmbeddingModel(cfg.Embedding.Model))
		if err != nil {
			return nil, err
		}
		embedder = c
	case config.ProviderGemini:
		gc, err := gemini()
		if err != nil {
			return nil, err
		}
		embedder = embedding.NewGeminiEmbeddingClient(gc, cfg.Embedding.Model)
	case config.ProviderOllama:
		oc, err := ollama()
		if err != nil {
			return nil, err
		}
		embedder = embedding.NewOllamaEmbeddingClient(oc, cfg.Embedding.Model)
	default:
		return nil, errors.New("no embedding provider available")
	}

	logging.OrNop(logger).Info("llm provider selected",
		zap.String("completion", cfg.LLM.Provider),
		zap.String("embedding", cfg.EmbeddingProvider()))

	return NewCompletionProvider(cfg.LLM.Provider, generator, embedder, cfg.Embedding.Timeout, logger), nil
}
