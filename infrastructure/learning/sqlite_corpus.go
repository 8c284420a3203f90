package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/logging"
)

// SQLiteCorpus persists examples in a query_examples table. A trigger
// rejects every UPDATE, so rows can only be inserted.
type SQLiteCorpus struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteCorpus creates the schema on db.
func NewSQLiteCorpus(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteCorpus, error) {
	c := &SQLiteCorpus{db: db, logger: logging.OrNop(logger)}
	if err := c.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize learning schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCorpus) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_examples (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_query TEXT NOT NULL,
		intent TEXT NOT NULL,
		action TEXT NOT NULL DEFAULT '',
		entity TEXT NOT NULL DEFAULT '',
		filters TEXT NOT NULL DEFAULT '{}',
		response TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_examples_tenant ON query_examples(tenant_id);
	CREATE TRIGGER IF NOT EXISTS query_examples_append_only
	BEFORE UPDATE ON query_examples
	BEGIN
		SELECT RAISE(ABORT, 'query_examples is append-only');
	END;
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Append inserts a new example.
func (c *SQLiteCorpus) Append(ctx context.Context, example domain.QueryExample) error {
	ex, err := prepare(example)
	if err != nil {
		return err
	}
	filters, err := json.Marshal(ex.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	var blob []byte
	if len(ex.Embedding) > 0 {
		blob = ex.Embedding.Blob()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO query_examples (id, tenant_id, user_query, intent, action, entity, filters, response, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ex.ID, ex.TenantID, ex.UserQuery, string(ex.Intent), ex.Action, string(ex.Entity),
		string(filters), ex.Response, blob, ex.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append example: %w", err)
	}
	return nil
}

// Similar scores every embedded example of the tenant.
func (c *SQLiteCorpus) Similar(ctx context.Context, tenantID string, vector domain.Embedding, limit int) ([]domain.ScoredExample, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_query, intent, action, entity, filters, response, embedding, created_at
		FROM query_examples
		WHERE tenant_id = ? AND embedding IS NOT NULL
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	var scored []domain.ScoredExample
	for rows.Next() {
		var (
			ex                     domain.QueryExample
			intent, entity, filter string
			blob                   []byte
		)
		if err := rows.Scan(&ex.ID, &ex.TenantID, &ex.UserQuery, &intent, &ex.Action, &entity, &filter, &ex.Response, &blob, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan example: %w", err)
		}
		ex.Intent = domain.IntentType(intent)
		ex.Entity = domain.EntityType(entity)
		if err := json.Unmarshal([]byte(filter), &ex.Filters); err != nil {
			c.logger.Warn("ignoring malformed filters", zap.String("example_id", ex.ID), zap.Error(err))
		}
		ex.Embedding, err = domain.EmbeddingFromBlob(blob)
		if err != nil {
			c.logger.Warn("skipping corrupt example embedding", zap.String("example_id", ex.ID), zap.Error(err))
			continue
		}
		scored = append(scored, domain.ScoredExample{
			QueryExample: ex,
			Similarity:   domain.CosineSimilarity(vector, ex.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankExamples(scored, limit), nil
}

// Stats counts the tenant's examples by intent and entity.
func (c *SQLiteCorpus) Stats(ctx context.Context, tenantID string) (domain.LearningStats, error) {
	if tenantID == "" {
		return domain.LearningStats{}, domain.ErrMissingTenant
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT intent, entity, COUNT(*)
		FROM query_examples
		WHERE tenant_id = ?
		GROUP BY intent, entity
	`, tenantID)
	if err != nil {
		return domain.LearningStats{}, fmt.Errorf("failed to compute learning stats: %w", err)
	}
	defer rows.Close()

	sb := statsBuilder{newStats()}
	for rows.Next() {
		var (
			intent, entity string
			n              int
		)
		if err := rows.Scan(&intent, &entity, &n); err != nil {
			return domain.LearningStats{}, err
		}
		sb.add(domain.IntentType(intent), domain.EntityType(entity), n)
	}
	return sb.LearningStats, rows.Err()
}
