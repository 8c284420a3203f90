package domain

import (
	"context"
	"sort"
	"time"
)

// DefaultSimilarityThreshold is the cutoff used when none is configured.
const DefaultSimilarityThreshold = 0.7

// SearchOptions filters a similarity search. TenantID is mandatory.
type SearchOptions struct {
	EntityType         EntityType // Optional
	TenantID           string
	BusinessIdentityID string // Optional
	Limit              int
	Threshold          float64 // Hits must score strictly above it
}

// SearchHit is one nearest-neighbor result.
type SearchHit struct {
	EntityID   string
	EntityType EntityType
	TenantID   string
	Similarity float64
	Content    string
	Metadata   map[string]string
	UpdatedAt  time.Time
}

// VectorStore defines the interface for interacting with a vector database.
type VectorStore interface {
	// Upsert adds or replaces the record keyed by (EntityID, EntityType).
	Upsert(ctx context.Context, record EmbeddingRecord) error
	// Delete removes the record for an entity, if present.
	Delete(ctx context.Context, entityID string, entityType EntityType) error
	// SearchSimilar returns hits ordered by similarity, best first.
	SearchSimilar(ctx context.Context, vector Embedding, opts SearchOptions) ([]SearchHit, error)
}

// RankHits drops hits at or below threshold, orders the rest by similarity
// descending (most recent UpdatedAt first on ties) and truncates to limit.
// A non-positive limit keeps every hit.
func RankHits(hits []SearchHit, threshold float64, limit int) []SearchHit {
	kept := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Similarity > threshold {
			kept = append(kept, h)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].UpdatedAt.After(kept[j].UpdatedAt)
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
