package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

const (
	defaultLearningTopK  = 3
	defaultWriteTimeout  = 10 * time.Second
	noLearnedExamples    = "No hay ejemplos previos similares."
	learnedResponseWidth = 100
)

// Embedder is the slice of domain.TextCompletionProvider that only embeds.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.Embedding, error)
}

// LearningService retrieves past successful queries as classifier context
// and records new ones without blocking the caller.
type LearningService struct {
	corpus       domain.LearningCorpus
	embedder     Embedder
	topK         int
	writeTimeout time.Duration
	logger       *zap.Logger
	wg           sync.WaitGroup
}

// NewLearningService creates a LearningService. Non-positive topK and
// writeTimeout fall back to 3 and 10s.
func NewLearningService(corpus domain.LearningCorpus, embedder Embedder, topK int, writeTimeout time.Duration, logger *zap.Logger) *LearningService {
	if topK <= 0 {
		topK = defaultLearningTopK
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LearningService{
		corpus:       corpus,
		embedder:     embedder,
		topK:         topK,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// LearnedContext returns a prompt fragment describing similar past queries.
// Failures degrade to the "no examples" sentence.
func (s *LearningService) LearnedContext(ctx context.Context, query, tenantID string) string {
	text, _ := s.Retrieve(ctx, query, tenantID)
	return text
}

// Retrieve is LearnedContext that also hands back the query embedding so
// the caller can reuse it when recording. The embedding is nil when the
// provider failed.
func (s *LearningService) Retrieve(ctx context.Context, query, tenantID string) (string, domain.Embedding) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("learned context unavailable", zap.Error(err))
		return noLearnedExamples, nil
	}

	examples, err := s.corpus.Similar(ctx, tenantID, vector, s.topK)
	if err != nil {
		s.logger.Warn("similar examples lookup failed", zap.String("tenant", tenantID), zap.Error(err))
		return noLearnedExamples, vector
	}
	s.logger.Debug("similar examples", zap.Int("count", len(examples)))
	return formatExamples(examples), vector
}

func formatExamples(examples []domain.ScoredExample) string {
	if len(examples) == 0 {
		return noLearnedExamples
	}
	var b strings.Builder
	b.WriteString("Ejemplos de consultas similares que funcionaron antes:\n\n")
	for i, ex := range examples {
		fmt.Fprintf(&b, "Ejemplo %d:\n", i+1)
		fmt.Fprintf(&b, "Usuario preguntó: %q\n", ex.UserQuery)
		fmt.Fprintf(&b, "Intención: %s\n", ex.Intent)
		fmt.Fprintf(&b, "Acción tomada: %s\n", ex.Action)
		entity := string(ex.Entity)
		if entity == "" {
			entity = "N/A"
		}
		fmt.Fprintf(&b, "Entidad: %s\n", entity)
		if len(ex.Filters) > 0 {
			if raw, err := json.Marshal(ex.Filters); err == nil {
				fmt.Fprintf(&b, "Filtros: %s\n", raw)
			}
		}
		fmt.Fprintf(&b, "Respuesta: %s\n\n", truncateRunes(ex.Response, learnedResponseWidth))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Record persists example in the background. It returns immediately; the
// write survives cancellation of ctx and is bounded by the write timeout.
func (s *LearningService) Record(ctx context.Context, example domain.QueryExample) {
	if example.TenantID == "" || strings.TrimSpace(example.UserQuery) == "" {
		s.logger.Warn("learning example dropped", zap.String("reason", "missing tenant or query"))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		if len(example.Embedding) == 0 {
			vector, err := s.embedder.Embed(wctx, example.UserQuery)
			if err != nil {
				s.logger.Warn("learning example stored without embedding", zap.Error(err))
			}
			example.Embedding = vector
		}

		if err := s.corpus.Append(wctx, example); err != nil {
			s.logger.Error("failed to save learning example",
				zap.String("tenant", example.TenantID),
				zap.String("query", example.UserQuery),
				zap.Error(err))
			return
		}
		s.logger.Debug("learning example saved",
			zap.String("tenant", example.TenantID),
			zap.String("intent", string(example.Intent)))
	}()
}

// Stats summarizes the tenant's corpus.
func (s *LearningService) Stats(ctx context.Context, tenantID string) (domain.LearningStats, error) {
	if tenantID == "" {
		return domain.LearningStats{}, domain.ErrMissingTenant
	}
	stats, err := s.corpus.Stats(ctx, tenantID)
	if err != nil {
		return domain.LearningStats{}, fmt.Errorf("learning stats: %w", err)
	}
	return stats, nil
}

// Close waits for in-flight writes. The service stays usable afterwards.
func (s *LearningService) Close() {
	s.wg.Wait()
}
