package domain

import "context"

// TextGenerator produces a completion for a single prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TextCompletionProvider is the single provider abstraction the pipeline
// depends on. Provider selection happens once, at startup.
type TextCompletionProvider interface {
	TextGenerator
	// Embed returns the embedding of a non-empty text. Failures wrap
	// ErrEmbeddingUnavailable.
	Embed(ctx context.Context, text string) (Embedding, error)
}
