package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
)

type fakeGenerator struct {
	reply string
	err   error
}

func (f fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.reply, f.err
}

type fakeEmbedder struct {
	calls int
	err   error
	block bool
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Embedding, len(texts))
	for i := range texts {
		out[i] = domain.Embedding{1, float32(i)}
	}
	return out, nil
}

func TestCompletionProvider_EmbedRejectsEmptyInput(t *testing.T) {
	emb := &fakeEmbedder{}
	p := NewCompletionProvider("test", fakeGenerator{}, emb, 0, nil)

	_, err := p.Embed(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Zero(t, emb.calls)
}

func TestCompletionProvider_WrapsEmbedderErrors(t *testing.T) {
	cause := errors.New("quota exceeded")
	p := NewCompletionProvider("test", fakeGenerator{}, &fakeEmbedder{err: cause}, 0, nil)

	_, err := p.Embed(context.Background(), "hola")
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestCompletionProvider_EmbedTimeout(t *testing.T) {
	p := NewCompletionProvider("test", fakeGenerator{}, &fakeEmbedder{block: true}, 10*time.Millisecond, nil)

	_, err := p.Embed(context.Background(), "hola")
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompletionProvider_NoEmbedder(t *testing.T) {
	p := NewCompletionProvider("anthropic", fakeGenerator{reply: "ok"}, nil, 0, nil)

	_, err := p.Embed(context.Background(), "hola")
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	out, err := p.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestCompletionProvider_BatchEmbed(t *testing.T) {
	p := NewCompletionProvider("test", fakeGenerator{}, &fakeEmbedder{}, 0, nil)

	vecs, err := p.GenerateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][1])
}
