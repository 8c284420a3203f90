package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/repository"
	"crm-ai-agent/infrastructure/vectorstore"
)

type handlerFixture struct {
	repo     *repository.MemoryRepository
	store    *vectorstore.MemoryStore
	embedder *hashEmbedder
	disp     *Dispatcher
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		repo:     repository.NewMemoryRepository(repository.WithClock(tickingClock())),
		store:    vectorstore.NewMemoryStore(),
		embedder: &hashEmbedder{},
		disp:     NewDispatcher(nil),
	}
	NewQueryHandlers(f.repo, f.store, f.embedder, HandlerConfig{}, nil).Register(f.disp)
	return f
}

// pin stores a vector equal to the embedding of text for rec, so a query
// for text scores 1.
func (f *handlerFixture) pin(t *testing.T, rec domain.Record, text string) {
	t.Helper()
	require.NoError(t, f.store.Upsert(context.Background(), domain.EmbeddingRecord{
		EntityID:   rec.RecordID(),
		EntityType: rec.RecordType(),
		TenantID:   rec.RecordTenant(),
		Vector:     hashVector(text),
		Content:    text,
		UpdatedAt:  time.Now(),
	}))
}

func (f *handlerFixture) event(t *testing.T, tenant, title string, start time.Time) *domain.Event {
	t.Helper()
	ev, err := f.repo.CreateEvent(context.Background(), domain.Scope{TenantID: tenant}, domain.EventInput{Title: title, StartDate: start})
	require.NoError(t, err)
	return ev
}

func search(entity domain.EntityType, query string) domain.IntentDescriptor {
	return domain.IntentDescriptor{Type: domain.IntentSearch, Entity: entity, Params: domain.IntentParams{Query: query}}
}

func TestSearch_SemanticValidatesLiveEntities(t *testing.T) {
	f := newHandlerFixture(t)
	boda := f.event(t, "t1", "Boda García", time.Now())
	f.pin(t, boda, "boda jardin")
	f.pin(t, &domain.Event{ID: "deleted", TenantID: "t1"}, "boda jardin")

	res, err := f.disp.Dispatch(context.Background(), search(domain.EntityEvent, "boda jardin"), t1)
	require.NoError(t, err)

	assert.True(t, res.Supported)
	assert.Equal(t, SearchSemantic, res.SearchMode)
	require.Len(t, res.Records, 1)
	assert.Equal(t, boda.ID, res.Records[0].RecordID())
}

func TestSearch_FallsBackWhenEmbeddingFails(t *testing.T) {
	f := newHandlerFixture(t)
	boda := f.event(t, "t1", "Boda García", time.Now())
	f.pin(t, boda, "boda")
	f.embedder.err = domain.ErrEmbeddingUnavailable

	res, err := f.disp.Dispatch(context.Background(), search(domain.EntityEvent, "GARCÍA"), t1)
	require.NoError(t, err)

	assert.Equal(t, SearchTraditional, res.SearchMode)
	require.Len(t, res.Records, 1)
	assert.Equal(t, boda.ID, res.Records[0].RecordID())
}

func TestSearch_ReusesQueryEmbeddingFromContext(t *testing.T) {
	f := newHandlerFixture(t)
	boda := f.event(t, "t1", "Boda García", time.Now())
	f.pin(t, boda, "boda jardin")
	f.embedder.err = domain.ErrEmbeddingUnavailable
	ctx := withQueryEmbedding(context.Background(), "boda jardin", hashVector("boda jardin"))

	res, err := f.disp.Dispatch(ctx, search(domain.EntityEvent, "boda jardin"), t1)
	require.NoError(t, err)
	assert.Equal(t, SearchSemantic, res.SearchMode)
	require.Len(t, res.Records, 1)
	assert.Zero(t, f.embedder.calls.Load())

	res, err = f.disp.Dispatch(ctx, search(domain.EntityEvent, "boda"), t1)
	require.NoError(t, err)
	assert.Equal(t, SearchTraditional, res.SearchMode, "an embedding for another query is not reused")
	assert.EqualValues(t, 1, f.embedder.calls.Load())
}

func TestSearch_FallsBackOnZeroHits(t *testing.T) {
	f := newHandlerFixture(t)
	f.event(t, "t1", "Boda García", time.Now())

	res, err := f.disp.Dispatch(context.Background(), search(domain.EntityEvent, "garcía"), t1)
	require.NoError(t, err)

	assert.Equal(t, SearchTraditional, res.SearchMode)
	assert.Len(t, res.Records, 1)
}

func TestSearch_SemanticHitsStayInTenant(t *testing.T) {
	f := newHandlerFixture(t)
	foreign := f.event(t, "t2", "Boda Ajena", time.Now())
	f.pin(t, foreign, "boda")

	res, err := f.disp.Dispatch(context.Background(), search(domain.EntityEvent, "boda"), t1)
	require.NoError(t, err)

	assert.Empty(t, res.Records)
}

func TestGeneral_SearchesEveryType(t *testing.T) {
	f := newHandlerFixture(t)
	scope := domain.Scope{TenantID: "t1"}
	c, err := f.repo.CreateClient(context.Background(), scope, domain.ClientInput{Name: "Ana Jardín", Email: "ana@x.com"})
	require.NoError(t, err)
	f.event(t, "t1", "Cena en el jardín", time.Now())
	_, err = f.repo.CreateQuote(context.Background(), scope, domain.QuoteInput{ClientID: c.ID, Number: "COT-2026-001", Notes: "decoración jardín"})
	require.NoError(t, err)
	_, err = f.repo.CreateProduct(context.Background(), scope, domain.ProductInput{Name: "Carpa", Category: "Mobiliario de jardín"})
	require.NoError(t, err)

	res, err := f.disp.Dispatch(context.Background(), domain.IntentDescriptor{
		Type:   domain.IntentGeneral,
		Params: domain.IntentParams{Query: "jardín"},
	}, t1)
	require.NoError(t, err)

	assert.Equal(t, SearchTraditional, res.SearchMode)
	types := map[domain.EntityType]int{}
	for _, r := range res.Records {
		types[r.RecordType()]++
	}
	assert.Equal(t, map[domain.EntityType]int{domain.EntityClient: 1, domain.EntityEvent: 1, domain.EntityQuote: 1, domain.EntityProduct: 1}, types)
}

func TestList_DefaultLimitAndOrder(t *testing.T) {
	f := newHandlerFixture(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 12 {
		f.event(t, "t1", "Evento", base.AddDate(0, 0, i))
	}

	res, err := f.disp.Dispatch(context.Background(), domain.IntentDescriptor{Type: domain.IntentList, Entity: domain.EntityEvent}, t1)
	require.NoError(t, err)

	require.Len(t, res.Records, defaultListLimit)
	first := res.Records[0].(*domain.Event)
	assert.Equal(t, base.AddDate(0, 0, 11), first.StartDate, "events list by start date, newest first")
}

func TestGet_LastByCreation(t *testing.T) {
	f := newHandlerFixture(t)
	late := f.event(t, "t1", "Creado primero", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	early := f.event(t, "t1", "Creado después", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	res, err := f.disp.Dispatch(context.Background(), domain.IntentDescriptor{Type: domain.IntentGet, Entity: domain.EntityEvent, Action: domain.ActionGetLast}, t1)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, early.ID, res.Records[0].RecordID())

	res, err = f.disp.Dispatch(context.Background(), domain.IntentDescriptor{Type: domain.IntentGet, Entity: domain.EntityEvent, Action: domain.ActionGetFirst}, t1)
	require.NoError(t, err)
	assert.Equal(t, late.ID, res.Records[0].RecordID())
}

func TestDispatcher_UnknownCombination(t *testing.T) {
	f := newHandlerFixture(t)

	res, err := f.disp.Dispatch(context.Background(), domain.IntentDescriptor{Type: domain.IntentGet, Entity: domain.EntityQuote}, t1)

	require.NoError(t, err)
	assert.False(t, res.Supported)
	assert.False(t, f.disp.Supports(domain.IntentCount, domain.EntityRoom))
	assert.True(t, f.disp.Supports(domain.IntentCount, domain.EntityQuote))
	assert.True(t, f.disp.Supports(domain.IntentSearch, domain.EntityProduct))
}

func TestDispatcher_DropsRecordsOutsideScope(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(domain.IntentList, domain.EntityClient, func(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error) {
		return HandlerResult{Records: []domain.Record{
			&domain.Client{ID: "mine", TenantID: "t1", BusinessIdentityID: "b1"},
			&domain.Client{ID: "other-tenant", TenantID: "t2"},
			&domain.Client{ID: "other-identity", TenantID: "t1", BusinessIdentityID: "b2"},
			nil,
		}}, nil
	})

	res, err := d.Dispatch(context.Background(), domain.IntentDescriptor{Type: domain.IntentList, Entity: domain.EntityClient},
		domain.RequestContext{TenantID: "t1", BusinessIdentityID: "b1"})
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "mine", res.Records[0].RecordID())
}

func TestDispatcher_MissingTenant(t *testing.T) {
	f := newHandlerFixture(t)

	_, err := f.disp.Dispatch(context.Background(), domain.IntentDescriptor{Type: domain.IntentCount, Entity: domain.EntityClient}, domain.RequestContext{})

	require.ErrorIs(t, err, domain.ErrMissingTenant)
}
