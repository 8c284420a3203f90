package application

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crm-ai-agent/domain"
)

func count(et domain.EntityType, n int) (domain.IntentDescriptor, HandlerResult) {
	return domain.IntentDescriptor{Type: domain.IntentCount, Entity: et},
		HandlerResult{Supported: true, Count: &n}
}

func TestRender_Count(t *testing.T) {
	g := NewResponseGenerator(nil, "es", 0, nil)

	tests := []struct {
		entity domain.EntityType
		n      int
		want   string
	}{
		{domain.EntityClient, 7, "Tienes 7 clientes registrados."},
		{domain.EntityClient, 1, "Tienes 1 cliente registrado."},
		{domain.EntityEvent, 0, "No tienes eventos registrados."},
		{domain.EntityQuote, 1, "Tienes 1 cotización registrada."},
		{domain.EntityQuote, 3, "Tienes 3 cotizaciones registradas."},
	}
	for _, tt := range tests {
		intent, res := count(tt.entity, tt.n)
		assert.Equal(t, tt.want, g.Render(context.Background(), "q", intent, res))
	}
}

func TestRender_Get(t *testing.T) {
	g := NewResponseGenerator(nil, "es", 0, nil)
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ana := &domain.Client{ID: "c1", TenantID: "t1", Name: "Ana", Email: "ana@x.com", Type: "VIP", CreatedAt: created}

	intent := domain.IntentDescriptor{Type: domain.IntentGet, Entity: domain.EntityClient, Action: domain.ActionGetFirst}
	got := g.Render(context.Background(), "q", intent, HandlerResult{Supported: true, Records: []domain.Record{ana}})
	assert.Equal(t, "El primer cliente registrado es Ana (ana@x.com) - VIP, creado el 02/03/2026.", got)

	got = g.Render(context.Background(), "q", intent, HandlerResult{Supported: true})
	assert.Equal(t, "No encontré ningún cliente registrado.", got)
}

func TestRender_ListIsNumberedAndCapped(t *testing.T) {
	g := NewResponseGenerator(nil, "es", 0, nil)
	var recs []domain.Record
	for i := range 4 {
		recs = append(recs, &domain.Client{ID: fmt.Sprint(i), Name: fmt.Sprintf("Cliente %d", i)})
	}

	got := g.Render(context.Background(), "q",
		domain.IntentDescriptor{Type: domain.IntentList, Entity: domain.EntityClient},
		HandlerResult{Supported: true, Records: recs, Limit: 3})

	assert.Equal(t, "Estos son tus clientes (3):\n1. Cliente 0\n2. Cliente 1\n3. Cliente 2", got)
}

func searchResult(n int) HandlerResult {
	var recs []domain.Record
	for i := range n {
		recs = append(recs, &domain.Client{ID: fmt.Sprint(i), Name: fmt.Sprintf("Cliente %d", i)})
	}
	recs = append(recs, &domain.Quote{ID: "q1", Number: "COT-2026-001", Total: 1500, Status: "DRAFT"})
	return HandlerResult{Supported: true, Records: recs}
}

func TestRender_SearchUsesSummary(t *testing.T) {
	llm := &scriptedLLM{summary: "  Tienes cinco clientes y una cotización en borrador.  "}
	g := NewResponseGenerator(llm, "es", time.Second, nil)

	got := g.Render(context.Background(), "busca todo", domain.IntentDescriptor{Type: domain.IntentSearch}, searchResult(5))

	assert.Equal(t, "Tienes cinco clientes y una cotización en borrador.", got)
	assert.Contains(t, llm.lastPrompt(), "COT-2026-001")
	assert.Contains(t, llm.lastPrompt(), "150 palabras")
}

func TestRender_SearchFallbackListing(t *testing.T) {
	for name, llm := range map[string]*scriptedLLM{
		"provider error": {summaryErr: errProviderDown},
		"json reply":     {summary: `{"clientes": 5}`},
		"empty reply":    {summary: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			g := NewResponseGenerator(llm, "es", time.Second, nil)

			got := g.Render(context.Background(), "busca todo", domain.IntentDescriptor{Type: domain.IntentGeneral}, searchResult(5))

			assert.True(t, strings.HasPrefix(got, "Encontré 6 resultado(s):"), got)
			assert.Contains(t, got, "**Clientes (5):**\n- Cliente 0\n- Cliente 1\n- Cliente 2\n")
			assert.NotContains(t, got, "Cliente 3")
			assert.Contains(t, got, "**Cotizaciones (1):**\n- COT-2026-001")
			assert.False(t, looksLikeJSON(got))
		})
	}
}

func TestRender_FallbackListingCountsOnlyListedTypes(t *testing.T) {
	g := NewResponseGenerator(nil, "es", 0, nil)
	res := searchResult(1)
	res.Records = append(res.Records,
		&domain.Room{ID: "r1", TenantID: "t1", Name: "Salón Jardín"},
		&domain.Product{ID: "p1", TenantID: "t1", Name: "Carpa", ItemType: "SERVICE"})

	got := g.Render(context.Background(), "jardín", domain.IntentDescriptor{Type: domain.IntentGeneral}, res)

	assert.True(t, strings.HasPrefix(got, "Encontré 3 resultado(s):"), got)
	assert.Contains(t, got, "**Productos (1):**\n- Carpa (SERVICE)")
	assert.NotContains(t, got, "Salón Jardín")
}

func TestRender_NoResultsAndUnsupported(t *testing.T) {
	g := NewResponseGenerator(nil, "es", 0, nil)
	search := domain.IntentDescriptor{Type: domain.IntentSearch, Entity: domain.EntityEvent}

	assert.Equal(t,
		`No encontré resultados para "bodas en marte". Intenta con términos más específicos como nombres de clientes, números de cotización, o tipos de eventos.`,
		g.Render(context.Background(), "bodas en marte", search, HandlerResult{Supported: true}))
	assert.Equal(t, msgUnsupported, g.Render(context.Background(), "q", search, HandlerResult{}))
	assert.Equal(t, msgQueryFailed, g.RenderError(errProviderDown))
}

func TestRenderMutation(t *testing.T) {
	g := NewResponseGenerator(nil, "es", 0, nil)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation",
			err: &domain.ValidationError{Fields: []domain.FieldError{
				{Field: "email", Message: "must be a valid email address"},
				{Field: "type", Message: "must be one of GENERAL, VIP"},
			}},
			want: "No pude completar la operación porque hay datos faltantes o inválidos:\n- email: debe ser un email válido\n- type: debe ser uno de GENERAL, VIP",
		},
		{name: "reference", err: &domain.ReferenceError{Entity: domain.EntityQuote, ID: "q9"}, want: "No encontré la cotización con id q9."},
		{name: "duplicate", err: &domain.RepositoryError{Op: "create client", Err: fmt.Errorf("email: %w", domain.ErrDuplicate)}, want: msgMutationDuplicate},
		{name: "unsupported", err: &domain.UnsupportedOperationError{Name: ""}, want: msgMutationUnsupported},
		{name: "repository", err: &domain.RepositoryError{Op: "create event", Err: errProviderDown}, want: msgMutationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.RenderMutation(nil, tt.err))
		})
	}

	ok := &domain.MutationResult{Success: true, Message: "Cliente Ana (ana@x.com) creado correctamente."}
	assert.Equal(t, ok.Message, g.RenderMutation(ok, nil))
}
