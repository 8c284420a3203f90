// Package learning stores the append-only corpus of successful queries.
package learning

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"crm-ai-agent/domain"
)

var errEmptyQuery = errors.New("query example has no user query")

// prepare fills the id and timestamp and checks required fields.
func prepare(ex domain.QueryExample) (domain.QueryExample, error) {
	if ex.TenantID == "" {
		return ex, fmt.Errorf("append example: %w", domain.ErrMissingTenant)
	}
	if ex.UserQuery == "" {
		return ex, errEmptyQuery
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return ex, nil
}

// rankExamples orders by similarity, newest first on ties, and keeps limit.
func rankExamples(scored []domain.ScoredExample, limit int) []domain.ScoredExample {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func newStats() domain.LearningStats {
	return domain.LearningStats{
		ByIntent: make(map[string]int),
		ByEntity: make(map[string]int),
	}
}

type statsBuilder struct{ domain.LearningStats }

func (s *statsBuilder) add(intent domain.IntentType, entity domain.EntityType, n int) {
	s.TotalExamples += n
	s.ByIntent[string(intent)] += n
	if entity != "" {
		s.ByEntity[string(entity)] += n
	}
}
