package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crm-ai-agent/domain"
)

const (
	embeddingBatchSize        = 100
	defaultReindexConcurrency = 4
)

// ReindexStats reports how many entities of each type were indexed.
type ReindexStats struct {
	Clients  int `json:"clients"`
	Events   int `json:"events"`
	Quotes   int `json:"quotes"`
	Products int `json:"products"`
}

// Total is the number of embeddings written.
func (s ReindexStats) Total() int { return s.Clients + s.Events + s.Quotes + s.Products }

// IndexingService keeps the vector store in step with the business
// entities: it builds a descriptive text per entity, embeds it and upserts
// the result.
type IndexingService struct {
	repo        domain.EntityReader
	embedder    domain.EmbeddingClient
	vectorStore domain.VectorStore
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

// NewIndexingService creates a new IndexingService. A non-positive
// concurrency uses 4 parallel batches.
func NewIndexingService(repo domain.EntityReader, embedder domain.EmbeddingClient, vectorStore domain.VectorStore, concurrency int, logger *zap.Logger) *IndexingService {
	if concurrency <= 0 {
		concurrency = defaultReindexConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexingService{
		repo:        repo,
		embedder:    embedder,
		vectorStore: vectorStore,
		concurrency: concurrency,
		now:         time.Now,
		logger:      logger,
	}
}

// Index embeds one entity and replaces its stored vector.
func (s *IndexingService) Index(ctx context.Context, rec domain.Record) error {
	if rec == nil {
		return nil
	}
	scope := domain.Scope{TenantID: rec.RecordTenant()}
	if scope.TenantID == "" {
		return domain.ErrMissingTenant
	}

	names := newNameCache(s.repo, scope)
	content, ok := s.content(ctx, rec, names)
	if !ok {
		return fmt.Errorf("index %s: %w", rec.RecordType(), errUnindexable)
	}
	return s.embedAndStore(ctx, []domain.Record{rec}, []string{content})
}

// Remove drops the stored vector of an entity.
func (s *IndexingService) Remove(ctx context.Context, entityID string, entityType domain.EntityType) error {
	if err := s.vectorStore.Delete(ctx, entityID, entityType); err != nil {
		return fmt.Errorf("remove embedding %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

var errUnindexable = errors.New("entity type is not indexed")

// ReindexTenant rebuilds the embeddings of every client, event, quote and
// product of a tenant. Batches are embedded concurrently; the first failing batch
// cancels the rest.
func (s *IndexingService) ReindexTenant(ctx context.Context, tenantID string) (ReindexStats, error) {
	var stats ReindexStats
	if tenantID == "" {
		return stats, domain.ErrMissingTenant
	}
	scope := domain.Scope{TenantID: tenantID}
	names := newNameCache(s.repo, scope)

	var (
		recs     []domain.Record
		contents []string
	)
	for _, et := range []domain.EntityType{domain.EntityClient, domain.EntityEvent, domain.EntityQuote, domain.EntityProduct} {
		found, err := s.repo.List(ctx, scope, domain.ListQuery{Entity: et, Order: domain.OldestFirst, ByCreation: true})
		if err != nil {
			return stats, fmt.Errorf("list %s: %w", strings.ToLower(string(et)), err)
		}
		for _, rec := range found {
			names.remember(rec)
			if content, ok := s.content(ctx, rec, names); ok {
				recs = append(recs, rec)
				contents = append(contents, content)
			}
		}
		switch et {
		case domain.EntityClient:
			stats.Clients = len(found)
		case domain.EntityEvent:
			stats.Events = len(found)
		case domain.EntityQuote:
			stats.Quotes = len(found)
		case domain.EntityProduct:
			stats.Products = len(found)
		}
	}

	if len(recs) == 0 {
		s.logger.Info("nothing to index", zap.String("tenant", tenantID))
		return stats, nil
	}

	batches := (len(recs) + embeddingBatchSize - 1) / embeddingBatchSize
	s.logger.Info("reindexing tenant",
		zap.String("tenant", tenantID),
		zap.Int("entities", len(recs)),
		zap.Int("batches", batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := 0; i < len(recs); i += embeddingBatchSize {
		end := min(i+embeddingBatchSize, len(recs))
		batch := i/embeddingBatchSize + 1
		g.Go(func() error {
			if err := s.embedAndStore(gctx, recs[i:end], contents[i:end]); err != nil {
				return fmt.Errorf("batch %d/%d: %w", batch, batches, err)
			}
			s.logger.Debug("batch indexed", zap.Int("batch", batch), zap.Int("size", end-i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	s.logger.Info("reindex complete",
		zap.String("tenant", tenantID),
		zap.Int("clients", stats.Clients),
		zap.Int("events", stats.Events),
		zap.Int("quotes", stats.Quotes),
		zap.Int("products", stats.Products))
	return stats, nil
}

func (s *IndexingService) embedAndStore(ctx context.Context, recs []domain.Record, contents []string) error {
	vectors, err := s.embedder.GenerateEmbeddings(ctx, contents)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(contents) {
		return fmt.Errorf("mismatch between number of texts (%d) and embeddings (%d)", len(contents), len(vectors))
	}

	now := s.now()
	for i, rec := range recs {
		err := s.vectorStore.Upsert(ctx, domain.EmbeddingRecord{
			EntityID:           rec.RecordID(),
			EntityType:         rec.RecordType(),
			TenantID:           rec.RecordTenant(),
			BusinessIdentityID: rec.RecordBusinessIdentity(),
			Vector:             vectors[i],
			Content:            contents[i],
			Metadata:           metadataFor(rec),
			UpdatedAt:          now,
		})
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", rec.RecordType(), rec.RecordID(), err)
		}
	}
	return nil
}

// content builds the descriptive text an entity is embedded from.
func (s *IndexingService) content(ctx context.Context, rec domain.Record, names *nameCache) (string, bool) {
	var lines []string
	add := func(label, value, empty string) {
		if strings.TrimSpace(value) == "" {
			value = empty
		}
		lines = append(lines, label+": "+value)
	}

	switch v := rec.(type) {
	case *domain.Client:
		add("Cliente", v.Name, "")
		add("Email", v.Email, "Sin email")
		add("Teléfono", v.Phone, "Sin teléfono")
		add("Tipo", v.Type, "N/A")
		add("Notas", v.Notes, "Sin notas")
	case *domain.Event:
		client := names.client(ctx, v.ClientID)
		add("Evento", v.Title, "")
		add("Estado", v.Status, "N/A")
		add("Fecha", v.StartDate.Format(time.DateOnly), "")
		add("Cliente", client.name, "Sin cliente")
		add("Tipo de cliente", client.kind, "N/A")
		add("Sala", names.room(ctx, v.RoomID), "Sin sala")
		add("Notas", v.Notes, "Sin notas")
	case *domain.Quote:
		client := names.client(ctx, v.ClientID)
		validUntil := ""
		if v.ValidUntil != nil {
			validUntil = v.ValidUntil.Format(time.DateOnly)
		}
		add("Cotización", v.Number, "")
		add("Estado", v.Status, "N/A")
		add("Cliente", client.name, "Sin cliente")
		add("Tipo de cliente", client.kind, "N/A")
		add("Total", "$"+strconv.FormatFloat(v.Total, 'f', 2, 64), "")
		add("Válida hasta", validUntil, "Sin fecha")
		add("Notas", v.Notes, "Sin notas")
	case *domain.Product:
		status, price := "Inactivo", ""
		if v.IsActive {
			status = "Activo"
		}
		if v.Price != nil {
			price = "$" + strconv.FormatFloat(*v.Price, 'f', 2, 64)
		}
		add("Producto", v.Name, "")
		add("Tipo", v.ItemType, "N/A")
		add("Categoría", v.Category, "Sin categoría")
		add("Descripción", v.Description, "Sin descripción")
		add("Unidad", v.Unit, "N/A")
		add("Estado", status, "")
		add("SKU", v.SKU, "Sin SKU")
		add("Precio", price, "Sin precio")
	default:
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func metadataFor(rec domain.Record) map[string]string {
	switch v := rec.(type) {
	case *domain.Client:
		return map[string]string{"name": v.Name, "email": v.Email, "type": v.Type}
	case *domain.Event:
		return map[string]string{"title": v.Title, "status": v.Status, "clientId": v.ClientID}
	case *domain.Quote:
		return map[string]string{"number": v.Number, "status": v.Status, "clientId": v.ClientID}
	case *domain.Product:
		return map[string]string{"name": v.Name, "itemType": v.ItemType, "unit": v.Unit, "isActive": strconv.FormatBool(v.IsActive)}
	}
	return nil
}

type clientInfo struct {
	name, kind string
}

// nameCache resolves client and room names for content building, hitting
// the repository at most once per id.
type nameCache struct {
	repo    domain.EntityReader
	scope   domain.Scope
	clients map[string]clientInfo
	rooms   map[string]string
}

func newNameCache(repo domain.EntityReader, scope domain.Scope) *nameCache {
	return &nameCache{repo: repo, scope: scope, clients: map[string]clientInfo{}, rooms: map[string]string{}}
}

func (c *nameCache) remember(rec domain.Record) {
	if cl, ok := rec.(*domain.Client); ok {
		c.clients[cl.ID] = clientInfo{name: cl.Name, kind: cl.Type}
	}
}

func (c *nameCache) client(ctx context.Context, id string) clientInfo {
	if id == "" {
		return clientInfo{}
	}
	if info, ok := c.clients[id]; ok {
		return info
	}
	var info clientInfo
	if rec, err := c.repo.Get(ctx, c.scope, domain.EntityClient, id); err == nil {
		if cl, ok := rec.(*domain.Client); ok {
			info = clientInfo{name: cl.Name, kind: cl.Type}
		}
	}
	c.clients[id] = info
	return info
}

func (c *nameCache) room(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	if name, ok := c.rooms[id]; ok {
		return name
	}
	var name string
	if rec, err := c.repo.Get(ctx, c.scope, domain.EntityRoom, id); err == nil {
		if rm, ok := rec.(*domain.Room); ok {
			name = rm.Name
		}
	}
	c.rooms[id] = name
	return name
}
