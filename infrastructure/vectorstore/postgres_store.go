package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/logging"
)

// AIEmbedding is the ai_embeddings row.
type AIEmbedding struct {
	EntityID           string            `gorm:"column:entity_id;primaryKey"`
	EntityType         string            `gorm:"column:entity_type;primaryKey"`
	TenantID           string            `gorm:"column:tenant_id;not null;index:idx_ai_embeddings_tenant"`
	BusinessIdentityID string            `gorm:"column:business_identity_id;not null;default:''"`
	Content            string            `gorm:"column:content;type:text"`
	Metadata           datatypes.JSONMap `gorm:"column:metadata"`
	Embedding          pgvector.Vector   `gorm:"column:embedding;type:vector"`
	UpdatedAt          time.Time         `gorm:"column:updated_at"`
}

func (AIEmbedding) TableName() string { return "ai_embeddings" }

// PostgresStore keeps entity embeddings in Postgres with pgvector.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgresStore enables the vector extension and migrates the table.
func NewPostgresStore(db *gorm.DB, logger *zap.Logger) (*PostgresStore, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&AIEmbedding{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ai_embeddings: %w", err)
	}
	return &PostgresStore{db: db, logger: logging.OrNop(logger)}, nil
}

// Upsert replaces the row for the entity.
func (s *PostgresStore) Upsert(ctx context.Context, record domain.EmbeddingRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	updated := record.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	meta := datatypes.JSONMap{}
	for k, v := range record.Metadata {
		meta[k] = v
	}

	row := AIEmbedding{
		EntityID:           record.EntityID,
		EntityType:         string(record.EntityType),
		TenantID:           record.TenantID,
		BusinessIdentityID: record.BusinessIdentityID,
		Content:            record.Content,
		Metadata:           meta,
		Embedding:          pgvector.NewVector(record.Vector),
		UpdatedAt:          updated,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}, {Name: "entity_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "business_identity_id", "content", "metadata", "embedding", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert embedding %s/%s: %w", record.EntityType, record.EntityID, err)
	}
	return nil
}

// Delete removes the row for the entity.
func (s *PostgresStore) Delete(ctx context.Context, entityID string, entityType domain.EntityType) error {
	err := s.db.WithContext(ctx).
		Where("entity_id = ? AND entity_type = ?", entityID, string(entityType)).
		Delete(&AIEmbedding{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete embedding %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

type scoredEmbedding struct {
	AIEmbedding
	Similarity float64 `gorm:"column:similarity"`
}

// SearchSimilar ranks rows by 1 - cosine distance inside the tenant.
func (s *PostgresStore) SearchSimilar(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	if opts.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	qv := pgvector.NewVector(vector)

	q := s.db.WithContext(ctx).
		Table("ai_embeddings").
		Select("*, 1 - (embedding <=> ?) AS similarity", qv).
		Where("tenant_id = ?", opts.TenantID).
		Where("1 - (embedding <=> ?) > ?", qv, opts.Threshold)
	if opts.EntityType != "" {
		q = q.Where("entity_type = ?", string(opts.EntityType))
	}
	if opts.BusinessIdentityID != "" {
		q = q.Where("business_identity_id = ?", opts.BusinessIdentityID)
	}
	q = q.Order("similarity DESC").Order("updated_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var rows []scoredEmbedding
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(rows))
	for _, r := range rows {
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			if str, ok := v.(string); ok {
				meta[k] = str
			}
		}
		hits = append(hits, domain.SearchHit{
			EntityID:   r.EntityID,
			EntityType: domain.EntityType(r.EntityType),
			TenantID:   r.TenantID,
			Similarity: r.Similarity,
			Content:    r.Content,
			Metadata:   meta,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return domain.RankHits(hits, opts.Threshold, opts.Limit), nil
}
