package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

const (
	defaultListLimit    = 10
	defaultSearchLimit  = 10
	defaultGeneralLimit = 15
)

var searchableEntities = []domain.EntityType{domain.EntityEvent, domain.EntityClient, domain.EntityQuote, domain.EntityProduct}

type queryEmbeddingKey struct{}

type queryEmbedding struct {
	query  string
	vector domain.Embedding
}

// withQueryEmbedding attaches the embedding already computed for query so
// semantic search does not ask the provider again.
func withQueryEmbedding(ctx context.Context, query string, vector domain.Embedding) context.Context {
	if len(vector) == 0 {
		return ctx
	}
	return context.WithValue(ctx, queryEmbeddingKey{}, queryEmbedding{query: query, vector: vector})
}

// queryEmbeddingFrom returns the attached embedding when it was computed
// for exactly query.
func queryEmbeddingFrom(ctx context.Context, query string) (domain.Embedding, bool) {
	qe, ok := ctx.Value(queryEmbeddingKey{}).(queryEmbedding)
	if !ok || qe.query != query {
		return nil, false
	}
	return qe.vector, true
}

// HandlerConfig tunes the built-in query handlers. Zero values take the
// defaults.
type HandlerConfig struct {
	SimilarityThreshold float64
	ListLimit           int
	SearchLimit         int
	GeneralLimit        int
}

// QueryHandlers implements the read side of the agent over a repository and,
// when configured, a vector store.
type QueryHandlers struct {
	repo     domain.EntityReader
	store    domain.VectorStore
	embedder Embedder
	cfg      HandlerConfig
	logger   *zap.Logger
}

// NewQueryHandlers creates the handler set. store and embedder may be nil,
// in which case every search is traditional.
func NewQueryHandlers(repo domain.EntityReader, store domain.VectorStore, embedder Embedder, cfg HandlerConfig, logger *zap.Logger) *QueryHandlers {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = domain.DefaultSimilarityThreshold
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaultListLimit
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.GeneralLimit <= 0 {
		cfg.GeneralLimit = defaultGeneralLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandlers{repo: repo, store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// Register installs every supported combination on d.
func (h *QueryHandlers) Register(d *Dispatcher) {
	for _, et := range searchableEntities {
		d.Register(domain.IntentCount, et, h.count)
		d.Register(domain.IntentList, et, h.list)
		d.Register(domain.IntentSearch, et, h.search)
		d.Register(domain.IntentGeneral, et, h.search)
	}
	d.Register(domain.IntentGet, domain.EntityClient, h.get)
	d.Register(domain.IntentGet, domain.EntityEvent, h.get)
	d.Register(domain.IntentGeneral, "", h.general)
	d.Register(domain.IntentSearch, "", h.general)
}

func (h *QueryHandlers) count(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error) {
	n, err := h.repo.Count(ctx, scope, intent.Entity)
	if err != nil {
		return HandlerResult{}, &domain.RepositoryError{Op: "count " + string(intent.Entity), Err: err}
	}
	return HandlerResult{Count: &n}, nil
}

// get returns the first or last entity by creation time. Without an action
// the most recent one is returned.
func (h *QueryHandlers) get(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error) {
	order := domain.NewestFirst
	if intent.Action == domain.ActionGetFirst {
		order = domain.OldestFirst
	}
	recs, err := h.repo.List(ctx, scope, domain.ListQuery{
		Entity:     intent.Entity,
		Order:      order,
		Limit:      1,
		ByCreation: true,
	})
	if err != nil {
		return HandlerResult{}, &domain.RepositoryError{Op: "get " + string(intent.Entity), Err: err}
	}
	return HandlerResult{Records: recs, Limit: 1}, nil
}

func (h *QueryHandlers) list(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error) {
	limit := limitOr(intent.Params.Limit, h.cfg.ListLimit)
	recs, err := h.repo.List(ctx, scope, domain.ListQuery{
		Entity: intent.Entity,
		Order:  domain.NewestFirst,
		Limit:  limit,
	})
	if err != nil {
		return HandlerResult{}, &domain.RepositoryError{Op: "list " + string(intent.Entity), Err: err}
	}
	return HandlerResult{Records: recs, Limit: limit}, nil
}

func (h *QueryHandlers) search(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error) {
	limit := limitOr(intent.Params.Limit, h.cfg.SearchLimit)
	if recs := h.semantic(ctx, intent.Params.Query, intent.Entity, scope, limit); len(recs) > 0 {
		return HandlerResult{Records: recs, SearchMode: SearchSemantic, Limit: limit}, nil
	}

	recs, err := h.repo.List(ctx, scope, domain.ListQuery{
		Entity: intent.Entity,
		Order:  domain.NewestFirst,
		Limit:  limit,
		Text:   intent.Params.Query,
	})
	if err != nil {
		return HandlerResult{}, &domain.RepositoryError{Op: "search " + string(intent.Entity), Err: err}
	}
	return HandlerResult{Records: recs, SearchMode: SearchTraditional, Limit: limit}, nil
}

// general searches every entity type at once.
func (h *QueryHandlers) general(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error) {
	limit := limitOr(intent.Params.Limit, h.cfg.GeneralLimit)
	if recs := h.semantic(ctx, intent.Params.Query, "", scope, limit); len(recs) > 0 {
		return HandlerResult{Records: recs, SearchMode: SearchSemantic, Limit: limit}, nil
	}

	perType := (limit + len(searchableEntities) - 1) / len(searchableEntities)
	var recs []domain.Record
	for _, et := range searchableEntities {
		found, err := h.repo.List(ctx, scope, domain.ListQuery{
			Entity: et,
			Order:  domain.NewestFirst,
			Limit:  perType,
			Text:   intent.Params.Query,
		})
		if err != nil {
			return HandlerResult{}, &domain.RepositoryError{Op: "search " + string(et), Err: err}
		}
		recs = append(recs, found...)
	}
	return HandlerResult{Records: recs, SearchMode: SearchTraditional, Limit: limit}, nil
}

// semantic returns live entities matching query by embedding similarity.
// Any failure is logged and reported as no hits so the caller falls back to
// substring search.
func (h *QueryHandlers) semantic(ctx context.Context, query string, entity domain.EntityType, scope domain.Scope, limit int) []domain.Record {
	if h.store == nil || h.embedder == nil || query == "" {
		return nil
	}

	vector, ok := queryEmbeddingFrom(ctx, query)
	if !ok {
		var err error
		vector, err = h.embedder.Embed(ctx, query)
		if err != nil {
			h.logger.Warn("semantic search unavailable, falling back to traditional search", zap.Error(err))
			return nil
		}
	}

	hits, err := h.store.SearchSimilar(ctx, vector, domain.SearchOptions{
		EntityType:         entity,
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Limit:              limit,
		Threshold:          h.cfg.SimilarityThreshold,
	})
	if err != nil {
		h.logger.Warn("vector search failed, falling back to traditional search", zap.Error(err))
		return nil
	}

	recs := make([]domain.Record, 0, len(hits))
	for _, hit := range hits {
		rec, err := h.repo.Get(ctx, scope, hit.EntityType, hit.EntityID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.logger.Debug("dropping stale embedding",
				zap.String("id", hit.EntityID),
				zap.String("type", string(hit.EntityType)))
			continue
		case err != nil:
			h.logger.Warn("could not load search hit", zap.String("id", hit.EntityID), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}

	h.logger.Debug("semantic search",
		zap.String("entity", string(entity)),
		zap.Int("hits", len(hits)),
		zap.Int("live", len(recs)),
		zap.Float64("threshold", h.cfg.SimilarityThreshold))
	return recs
}

func limitOr(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}
