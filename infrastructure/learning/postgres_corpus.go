package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm-ai-agent/domain"
)

// QueryExampleRow is the ai_query_examples row.
type QueryExampleRow struct {
	ID        string            `gorm:"column:id;primaryKey"`
	TenantID  string            `gorm:"column:tenant_id;not null;index"`
	UserQuery string            `gorm:"column:user_query;type:text;not null"`
	Intent    string            `gorm:"column:intent;not null"`
	Action    string            `gorm:"column:action"`
	Entity    string            `gorm:"column:entity"`
	Filters   datatypes.JSONMap `gorm:"column:filters"`
	Response  string            `gorm:"column:response;type:text"`
	Embedding *pgvector.Vector  `gorm:"column:embedding;type:vector"`
	CreatedAt time.Time         `gorm:"column:created_at"`
}

func (QueryExampleRow) TableName() string { return "ai_query_examples" }

// PostgresCorpus stores examples with pgvector. It only ever inserts.
type PostgresCorpus struct {
	db *gorm.DB
}

func NewPostgresCorpus(db *gorm.DB) (*PostgresCorpus, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&QueryExampleRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ai_query_examples: %w", err)
	}
	return &PostgresCorpus{db: db}, nil
}

func (c *PostgresCorpus) Append(ctx context.Context, example domain.QueryExample) error {
	ex, err := prepare(example)
	if err != nil {
		return err
	}
	row := QueryExampleRow{
		ID:        ex.ID,
		TenantID:  ex.TenantID,
		UserQuery: ex.UserQuery,
		Intent:    string(ex.Intent),
		Action:    ex.Action,
		Entity:    string(ex.Entity),
		Filters:   datatypes.JSONMap(ex.Filters),
		Response:  ex.Response,
		CreatedAt: ex.CreatedAt,
	}
	if len(ex.Embedding) > 0 {
		v := pgvector.NewVector(ex.Embedding)
		row.Embedding = &v
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append example: %w", err)
	}
	return nil
}

type scoredRow struct {
	QueryExampleRow
	Similarity float64 `gorm:"column:similarity"`
}

func (c *PostgresCorpus) Similar(ctx context.Context, tenantID string, vector domain.Embedding, limit int) ([]domain.ScoredExample, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	qv := pgvector.NewVector(vector)

	q := c.db.WithContext(ctx).
		Table("ai_query_examples").
		Select("*, 1 - (embedding <=> ?) AS similarity", qv).
		Where("tenant_id = ? AND embedding IS NOT NULL", tenantID).
		Order("similarity DESC").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []scoredRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}

	out := make([]domain.ScoredExample, 0, len(rows))
	for _, r := range rows {
		ex := domain.QueryExample{
			ID:        r.ID,
			UserQuery: r.UserQuery,
			Intent:    domain.IntentType(r.Intent),
			Action:    r.Action,
			Entity:    domain.EntityType(r.Entity),
			Filters:   map[string]any(r.Filters),
			Response:  r.Response,
			TenantID:  r.TenantID,
			CreatedAt: r.CreatedAt,
		}
		if r.Embedding != nil {
			ex.Embedding = r.Embedding.Slice()
		}
		out = append(out, domain.ScoredExample{QueryExample: ex, Similarity: r.Similarity})
	}
	return out, nil
}

func (c *PostgresCorpus) Stats(ctx context.Context, tenantID string) (domain.LearningStats, error) {
	if tenantID == "" {
		return domain.LearningStats{}, domain.ErrMissingTenant
	}

	var groups []struct {
		Intent string
		Entity string
		Count  int
	}
	err := c.db.WithContext(ctx).
		Model(&QueryExampleRow{}).
		Select("intent, entity, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("intent, entity").
		Scan(&groups).Error
	if err != nil {
		return domain.LearningStats{}, fmt.Errorf("failed to compute learning stats: %w", err)
	}

	sb := statsBuilder{newStats()}
	for _, g := range groups {
		sb.add(domain.IntentType(g.Intent), domain.EntityType(g.Entity), g.Count)
	}
	return sb.LearningStats, nil
}
