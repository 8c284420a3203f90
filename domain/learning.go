package domain

import (
	"context"
	"time"
)

// QueryExample is one successful query→action pair in the learning corpus.
// Examples are append-only and scoped to a tenant.
type QueryExample struct {
	ID        string         `json:"id"`
	UserQuery string         `json:"userQuery"`
	Intent    IntentType     `json:"intent"`
	Action    string         `json:"action"`
	Entity    EntityType     `json:"entity,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
	Response  string         `json:"response"`
	Embedding Embedding      `json:"-"`
	TenantID  string         `json:"tenantId"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ScoredExample is a corpus example with its similarity to a query.
type ScoredExample struct {
	QueryExample
	Similarity float64
}

// LearningStats summarizes a tenant's corpus.
type LearningStats struct {
	TotalExamples int            `json:"totalExamples"`
	ByIntent      map[string]int `json:"byIntent"`
	ByEntity      map[string]int `json:"byEntity"`
}

// LearningCorpus persists examples. There is no update method.
type LearningCorpus interface {
	Append(ctx context.Context, example QueryExample) error
	Similar(ctx context.Context, tenantID string, vector Embedding, limit int) ([]ScoredExample, error)
	Stats(ctx context.Context, tenantID string) (LearningStats, error)
}

// LearningSink receives examples from the query pipeline. Implementations
// must not block the caller on persistence.
type LearningSink interface {
	Record(ctx context.Context, example QueryExample)
}
