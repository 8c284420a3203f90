package vectorstore

import (
	"context"
	"maps"
	"sync"

	"crm-ai-agent/domain"
)

type recordKey struct {
	id  string
	typ domain.EntityType
}

// MemoryStore is an in-process domain.VectorStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]domain.EmbeddingRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]domain.EmbeddingRecord)}
}

// Upsert replaces any record with the same entity id and type.
func (s *MemoryStore) Upsert(ctx context.Context, record domain.EmbeddingRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	record.Vector = append(domain.Embedding(nil), record.Vector...)
	record.Metadata = maps.Clone(record.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{record.EntityID, record.EntityType}] = record
	return nil
}

// Delete removes the record of an entity.
func (s *MemoryStore) Delete(ctx context.Context, entityID string, entityType domain.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey{entityID, entityType})
	return nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SearchSimilar scans every record in the tenant.
func (s *MemoryStore) SearchSimilar(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	if opts.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.SearchHit
	for _, r := range s.records {
		if !matches(r, opts) {
			continue
		}
		hits = append(hits, toHit(r, domain.CosineSimilarity(vector, r.Vector)))
	}
	return domain.RankHits(hits, opts.Threshold, opts.Limit), nil
}
