package learning

import (
	"context"
	"maps"
	"sync"

	"crm-ai-agent/domain"
)

// MemoryCorpus keeps examples in process.
type MemoryCorpus struct {
	mu       sync.RWMutex
	examples []domain.QueryExample
}

func NewMemoryCorpus() *MemoryCorpus {
	return &MemoryCorpus{}
}

func (c *MemoryCorpus) Append(ctx context.Context, example domain.QueryExample) error {
	ex, err := prepare(example)
	if err != nil {
		return err
	}
	ex.Filters = maps.Clone(ex.Filters)
	ex.Embedding = append(domain.Embedding(nil), ex.Embedding...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.examples = append(c.examples, ex)
	return nil
}

func (c *MemoryCorpus) Similar(ctx context.Context, tenantID string, vector domain.Embedding, limit int) ([]domain.ScoredExample, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var scored []domain.ScoredExample
	for _, ex := range c.examples {
		if ex.TenantID != tenantID || len(ex.Embedding) == 0 {
			continue
		}
		scored = append(scored, domain.ScoredExample{
			QueryExample: ex,
			Similarity:   domain.CosineSimilarity(vector, ex.Embedding),
		})
	}
	return rankExamples(scored, limit), nil
}

func (c *MemoryCorpus) Stats(ctx context.Context, tenantID string) (domain.LearningStats, error) {
	if tenantID == "" {
		return domain.LearningStats{}, domain.ErrMissingTenant
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	sb := statsBuilder{newStats()}
	for _, ex := range c.examples {
		if ex.TenantID == tenantID {
			sb.add(ex.Intent, ex.Entity, 1)
		}
	}
	return sb.LearningStats, nil
}

// Len reports the number of stored examples across tenants.
func (c *MemoryCorpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.examples)
}
