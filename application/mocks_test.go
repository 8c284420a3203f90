package application

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/learning"
	"crm-ai-agent/infrastructure/repository"
	"crm-ai-agent/infrastructure/vectorstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errProviderDown = errors.New("provider down")

// scriptedLLM answers by prompt kind: classification, argument extraction
// or search summary.
type scriptedLLM struct {
	mu         sync.Mutex
	classify   string
	classErr   error
	extract    string
	extractErr error
	summary    string
	summaryErr error
	prompts    []string
}

func (l *scriptedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)

	switch {
	case strings.Contains(prompt, "Extrae los argumentos"):
		return l.extract, l.extractErr
	case strings.Contains(prompt, "Resultados encontrados:"):
		return l.summary, l.summaryErr
	default:
		return l.classify, l.classErr
	}
}

func (l *scriptedLLM) lastPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return ""
	}
	return l.prompts[len(l.prompts)-1]
}

// hashEmbedder maps each folded word to one of 64 buckets, so texts that
// share words are similar and identical texts score 1.
type hashEmbedder struct {
	err   error
	calls atomic.Int32
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return hashVector(text), nil
}

func (e *hashEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([]domain.Embedding, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func hashVector(text string) domain.Embedding {
	v := make(domain.Embedding, 64)
	for _, w := range domain.Words(text) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%64]++
	}
	return v
}

// tickingClock advances one minute per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

type harness struct {
	repo     *repository.MemoryRepository
	store    *vectorstore.MemoryStore
	corpus   *learning.MemoryCorpus
	llm      *scriptedLLM
	embedder *hashEmbedder
	learning *LearningService
	indexer  *IndexingService
	executor *MutationExecutor
	service  *QueryService
}

func newHarness(t *testing.T, repoOpts ...repository.Option) *harness {
	t.Helper()
	h := &harness{
		repo:     repository.NewMemoryRepository(append([]repository.Option{repository.WithClock(tickingClock())}, repoOpts...)...),
		store:    vectorstore.NewMemoryStore(),
		corpus:   learning.NewMemoryCorpus(),
		llm:      &scriptedLLM{},
		embedder: &hashEmbedder{},
	}
	h.learning = NewLearningService(h.corpus, h.embedder, 0, 0, nil)
	t.Cleanup(h.learning.Close)

	h.indexer = NewIndexingService(h.repo, h.embedder, h.store, 2, nil)
	h.executor = NewMutationExecutor(h.repo, nil,
		WithIndexer(h.indexer),
		WithMutationClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }))

	dispatcher := NewDispatcher(nil)
	NewQueryHandlers(h.repo, h.store, h.embedder, HandlerConfig{SimilarityThreshold: 0.3}, nil).Register(dispatcher)

	h.service = NewQueryService(QueryServiceDeps{
		Learning:   h.learning,
		Sink:       h.learning,
		Classifier: NewIntentClassifier(h.llm, time.Second, nil),
		Dispatcher: dispatcher,
		Gate:       NewMutationGate(h.llm, time.Second, nil),
		Executor:   h.executor,
		Responder:  NewResponseGenerator(h.llm, "es", time.Second, nil),
	}, nil)
	return h
}

func (h *harness) client(t *testing.T, tenant, name, email string) *domain.Client {
	t.Helper()
	c, err := h.repo.CreateClient(context.Background(), domain.Scope{TenantID: tenant}, domain.ClientInput{Name: name, Email: email})
	require.NoError(t, err)
	return c
}

func (h *harness) ask(t *testing.T, tenant, query string) *domain.QueryResult {
	t.Helper()
	res, err := h.service.ProcessQuery(context.Background(), query, domain.RequestContext{TenantID: tenant})
	require.NoError(t, err)
	h.learning.Close()
	return res
}
