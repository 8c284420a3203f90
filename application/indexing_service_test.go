package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/repository"
)

type capturingStore struct {
	mu      sync.Mutex
	records map[string]domain.EmbeddingRecord
	deleted []string
}

func newCapturingStore() *capturingStore {
	return &capturingStore{records: make(map[string]domain.EmbeddingRecord)}
}

func (s *capturingStore) Upsert(ctx context.Context, rec domain.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[string(rec.EntityType)+"/"+rec.EntityID] = rec
	return nil
}

func (s *capturingStore) Delete(ctx context.Context, entityID string, entityType domain.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(entityType) + "/" + entityID
	delete(s.records, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *capturingStore) SearchSimilar(ctx context.Context, vector domain.Embedding, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	return nil, nil
}

func (s *capturingStore) get(et domain.EntityType, id string) (domain.EmbeddingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[string(et)+"/"+id]
	return rec, ok
}

func TestIndexingService_ReindexTenant(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	scope := domain.Scope{TenantID: "t1"}

	ana, err := repo.CreateClient(ctx, scope, domain.ClientInput{Name: "Ana", Email: "ana@x.com", Type: "VIP"})
	require.NoError(t, err)
	_, err = repo.CreateClient(ctx, scope, domain.ClientInput{Name: "Beto"})
	require.NoError(t, err)
	room, err := repo.CreateRoom(ctx, scope, "Salón Jardín", 80)
	require.NoError(t, err)
	ev, err := repo.CreateEvent(ctx, scope, domain.EventInput{
		ClientID: ana.ID, RoomID: room.ID, Title: "Boda", StartDate: time.Date(2026, 12, 25, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	q, err := repo.CreateQuote(ctx, scope, domain.QuoteInput{ClientID: ana.ID, Number: "COT-2026-001", Total: 1500.5, Status: "DRAFT"})
	require.NoError(t, err)
	price := 250.0
	p, err := repo.CreateProduct(ctx, scope, domain.ProductInput{Name: "Silla Tiffany", Category: "Mobiliario", SKU: "MOB-12", Price: &price})
	require.NoError(t, err)
	_, err = repo.CreateClient(ctx, domain.Scope{TenantID: "t2"}, domain.ClientInput{Name: "Ajeno"})
	require.NoError(t, err)

	store := newCapturingStore()
	svc := NewIndexingService(repo, &hashEmbedder{}, store, 2, nil)

	stats, err := svc.ReindexTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{Clients: 2, Events: 1, Quotes: 1, Products: 1}, stats)
	assert.Equal(t, 5, stats.Total())
	assert.Len(t, store.records, 5)

	evRec, ok := store.get(domain.EntityEvent, ev.ID)
	require.True(t, ok)
	assert.Equal(t, "t1", evRec.TenantID)
	assert.Equal(t, "Evento: Boda\nEstado: RESERVED\nFecha: 2026-12-25\nCliente: Ana\nTipo de cliente: VIP\nSala: Salón Jardín\nNotas: Sin notas", evRec.Content)
	assert.Equal(t, hashVector(evRec.Content), evRec.Vector)

	qRec, ok := store.get(domain.EntityQuote, q.ID)
	require.True(t, ok)
	assert.Contains(t, qRec.Content, "Cotización: COT-2026-001\nEstado: DRAFT\nCliente: Ana")
	assert.Contains(t, qRec.Content, "Total: $1500.50")
	assert.Equal(t, "COT-2026-001", qRec.Metadata["number"])

	pRec, ok := store.get(domain.EntityProduct, p.ID)
	require.True(t, ok)
	assert.Equal(t, "Producto: Silla Tiffany\nTipo: PRODUCT\nCategoría: Mobiliario\nDescripción: Sin descripción\nUnidad: unidad\nEstado: Activo\nSKU: MOB-12\nPrecio: $250.00", pRec.Content)
	assert.Equal(t, "true", pRec.Metadata["isActive"])
}

func TestIndexingService_BatchesEmbeddings(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	for i := range 250 {
		_, err := repo.CreateClient(ctx, domain.Scope{TenantID: "t1"}, domain.ClientInput{Name: fmt.Sprintf("Cliente %d", i)})
		require.NoError(t, err)
	}
	emb := &hashEmbedder{}
	store := newCapturingStore()

	stats, err := NewIndexingService(repo, emb, store, 0, nil).ReindexTenant(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 250, stats.Clients)
	assert.EqualValues(t, 3, emb.calls.Load())
	assert.Len(t, store.records, 250)
}

func TestIndexingService_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	_, err := repo.CreateClient(ctx, domain.Scope{TenantID: "t1"}, domain.ClientInput{Name: "Ana"})
	require.NoError(t, err)

	svc := NewIndexingService(repo, &hashEmbedder{err: domain.ErrEmbeddingUnavailable}, newCapturingStore(), 0, nil)

	_, err = svc.ReindexTenant(ctx, "t1")
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestIndexingService_IndexAndRemove(t *testing.T) {
	ctx := context.Background()
	store := newCapturingStore()
	svc := NewIndexingService(repository.NewMemoryRepository(), &hashEmbedder{}, store, 0, nil)
	c := &domain.Client{ID: "c1", TenantID: "t1", BusinessIdentityID: "b1", Name: "Ana"}

	require.NoError(t, svc.Index(ctx, c))
	rec, ok := store.get(domain.EntityClient, "c1")
	require.True(t, ok)
	assert.Equal(t, "b1", rec.BusinessIdentityID)
	assert.Equal(t, "Cliente: Ana\nEmail: Sin email\nTeléfono: Sin teléfono\nTipo: N/A\nNotas: Sin notas", rec.Content)

	require.NoError(t, svc.Remove(ctx, "c1", domain.EntityClient))
	_, ok = store.get(domain.EntityClient, "c1")
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Index(ctx, &domain.Room{ID: "r1", TenantID: "t1"}), errUnindexable)
	assert.ErrorIs(t, svc.Index(ctx, &domain.Client{ID: "c2"}), domain.ErrMissingTenant)
}

func TestIndexingService_MissingTenant(t *testing.T) {
	svc := NewIndexingService(repository.NewMemoryRepository(), &hashEmbedder{}, newCapturingStore(), 0, nil)

	_, err := svc.ReindexTenant(context.Background(), "")

	require.ErrorIs(t, err, domain.ErrMissingTenant)
}
