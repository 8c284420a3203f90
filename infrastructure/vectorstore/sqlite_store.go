package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/logging"
)

// SQLiteStore keeps entity embeddings in an ai_embeddings table. When the
// sqlite-vec extension is loaded, similarity is computed in SQL with
// vec_distance_cosine; otherwise rows are scored in Go.
type SQLiteStore struct {
	db     *sql.DB
	hasVec bool
	logger *zap.Logger
}

// NewSQLiteStore creates the schema on db and checks for sqlite-vec.
func NewSQLiteStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, logger: logging.OrNop(logger)}
	if err := s.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version); err == nil {
		s.hasVec = true
		s.logger.Info("sqlite-vec available", zap.String("version", version))
	} else {
		s.logger.Debug("sqlite-vec not available, scoring in process", zap.Error(err))
	}
	return s, nil
}

func (s *SQLiteStore) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ai_embeddings (
		entity_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		business_identity_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (entity_id, entity_type)
	);
	CREATE INDEX IF NOT EXISTS idx_ai_embeddings_tenant ON ai_embeddings(tenant_id, entity_type);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Upsert writes the record, replacing any previous one for the entity.
func (s *SQLiteStore) Upsert(ctx context.Context, record domain.EmbeddingRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	meta, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	updated := record.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_embeddings (entity_id, entity_type, tenant_id, business_identity_id, content, metadata, embedding, dimensions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, entity_type) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			business_identity_id = excluded.business_identity_id,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at
	`, record.EntityID, string(record.EntityType), record.TenantID, record.BusinessIdentityID,
		record.Content, string(meta), record.Vector.Blob(), len(record.Vector), updated.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding %s/%s: %w", record.EntityType, record.EntityID, err)
	}
	return nil
}

// Delete removes the record of an entity.
func (s *SQLiteStore) Delete(ctx context.Context, entityID string, entityType domain.EntityType) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM ai_embeddings WHERE entity_id = ? AND entity_type = ?",
		entityID, string(entityType))
	if err != nil {
		return fmt.Errorf("failed to delete embedding %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

// SearchSimilar returns tenant hits above the threshold, best first.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	if opts.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}

	where := []string{"tenant_id = ?", "dimensions = ?"}
	args := []any{opts.TenantID, len(vector)}
	if opts.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(opts.EntityType))
	}
	if opts.BusinessIdentityID != "" {
		where = append(where, "business_identity_id = ?")
		args = append(args, opts.BusinessIdentityID)
	}

	if s.hasVec {
		return s.searchVec(ctx, vector, opts, where, args)
	}
	return s.searchScan(ctx, vector, opts, where, args)
}

func (s *SQLiteStore) searchVec(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions, where []string, args []any) ([]domain.SearchHit, error) {
	query := `
		SELECT entity_id, entity_type, tenant_id, business_identity_id, content, metadata, updated_at,
			1 - vec_distance_cosine(embedding, ?) AS similarity
		FROM ai_embeddings
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY similarity DESC, updated_at DESC`
	args = append([]any{vector.Blob()}, args...)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var (
			r          domain.EmbeddingRecord
			typ, meta  string
			similarity float64
		)
		if err := rows.Scan(&r.EntityID, &typ, &r.TenantID, &r.BusinessIdentityID, &r.Content, &meta, &r.UpdatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		r.EntityType = domain.EntityType(typ)
		r.Metadata = decodeMetadata(meta)
		hits = append(hits, toHit(r, similarity))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.RankHits(hits, opts.Threshold, opts.Limit), nil
}

func (s *SQLiteStore) searchScan(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions, where []string, args []any) ([]domain.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_type, tenant_id, business_identity_id, content, metadata, embedding, updated_at
		FROM ai_embeddings
		WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var (
			r         domain.EmbeddingRecord
			typ, meta string
			blob      []byte
		)
		if err := rows.Scan(&r.EntityID, &typ, &r.TenantID, &r.BusinessIdentityID, &r.Content, &meta, &blob, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		stored, err := domain.EmbeddingFromBlob(blob)
		if err != nil {
			s.logger.Warn("skipping corrupt embedding", zap.String("entity_id", r.EntityID), zap.Error(err))
			continue
		}
		r.EntityType = domain.EntityType(typ)
		r.Metadata = decodeMetadata(meta)
		hits = append(hits, toHit(r, domain.CosineSimilarity(vector, stored)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.RankHits(hits, opts.Threshold, opts.Limit), nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
