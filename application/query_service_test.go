package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure/repository"
)

func TestProcessQuery_CountClients(t *testing.T) {
	h := newHarness(t)
	for i := range 7 {
		h.client(t, "t1", fmt.Sprintf("Cliente %d", i), fmt.Sprintf("c%d@x.com", i))
	}
	h.client(t, "t2", "Otro", "otro@x.com")
	h.llm.classify = `{"type":"count","entity":"clientes","confidence":0.95}`

	res := h.ask(t, "t1", "¿Cuántos clientes tengo?")

	assert.Equal(t, domain.IntentCount, res.Intent.Type)
	assert.Equal(t, domain.EntityClient, res.Intent.Entity)
	assert.Equal(t, 7, res.Results)
	assert.Contains(t, res.Response, "7")
	assert.Equal(t, "Tienes 7 clientes registrados.", res.Response)

	stats, err := h.learning.Stats(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExamples)
	assert.Equal(t, 1, stats.ByIntent["count"])
}

func TestProcessQuery_FirstClient(t *testing.T) {
	h := newHarness(t)
	h.client(t, "t1", "Ana", "ana@x.com")
	h.client(t, "t1", "Beto", "beto@x.com")
	h.llm.classify = "Claro. " + `{"type":"get","entity":"CLIENT","action":"getFirst"}`

	res := h.ask(t, "t1", "¿Quién fue mi primer cliente?")

	assert.Equal(t, domain.ActionGetFirst, res.Intent.Action)
	assert.Contains(t, res.Response, "Ana")
	assert.NotContains(t, res.Response, "Beto")
	recs, ok := res.Results.([]domain.Record)
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ana", recs[0].(*domain.Client).Name)
}

func TestProcessQuery_NoResults(t *testing.T) {
	h := newHarness(t)
	h.client(t, "t1", "Ana", "ana@x.com")
	h.llm.classify = `{"type":"search","entity":"EVENT","params":{"query":"zzz inexistente"}}`

	query := "Busca eventos zzz inexistente"
	res := h.ask(t, "t1", query)

	assert.Equal(t, noResults(query), res.Response)
	assert.Nil(t, res.Results)
	assert.Zero(t, h.corpus.Len(), "empty results are not learned")
}

func TestProcessQuery_CreateClientThenDuplicate(t *testing.T) {
	h := newHarness(t, repository.WithUniqueClientEmail(true))
	h.llm.extract = `{"name":"Ana","email":"ana@x.com"}`
	query := "Crea un cliente llamado Ana con email ana@x.com"

	res := h.ask(t, "t1", query)
	assert.Equal(t, domain.IntentMutation, res.Intent.Type)
	assert.Equal(t, "createClient", res.Intent.Action)
	assert.Equal(t, "Cliente Ana (ana@x.com) creado correctamente.", res.Response)
	mr, ok := res.Results.(*domain.MutationResult)
	require.True(t, ok)
	assert.True(t, mr.Success)
	assert.Equal(t, 1, h.store.Len(), "new client is indexed")

	res = h.ask(t, "t1", query)
	assert.Equal(t, msgMutationDuplicate, res.Response)
	assert.Nil(t, res.Results)

	n, err := h.repo.Count(context.Background(), domain.Scope{TenantID: "t1"}, domain.EntityClient)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.corpus.Len(), "only the successful write is learned")
}

func TestProcessQuery_CreateClientWithoutExtractionModel(t *testing.T) {
	h := newHarness(t)
	h.llm.extractErr = errProviderDown

	res := h.ask(t, "t1", "Créame un cliente llamada Lucía Gómez con correo lucia@x.com")

	assert.Equal(t, "Cliente Lucía Gómez (lucia@x.com) creado correctamente.", res.Response)
}

func TestProcessQuery_CreateClientMissingEmail(t *testing.T) {
	h := newHarness(t)
	h.llm.extract = `{"name":"Ana"}`

	res := h.ask(t, "t1", "Crea un cliente llamado Ana")

	assert.Contains(t, res.Response, "email: es obligatorio")
	assert.Zero(t, h.corpus.Len())
}

func TestProcessQuery_UnparseableClassifierReply(t *testing.T) {
	h := newHarness(t)
	h.llm.classify = "Lo siento, no entiendo la pregunta."

	query := "¿Qué pasa con lo de mañana?"
	res := h.ask(t, "t1", query)

	assert.Equal(t, domain.IntentGeneral, res.Intent.Type)
	assert.Equal(t, domain.DefaultIntentConfidence, res.Intent.Confidence)
	assert.Equal(t, query, res.Intent.Params.Query)
	assert.Equal(t, noResults(query), res.Response)
	assert.False(t, looksLikeJSON(res.Response))
}

func TestProcessQuery_ClassifierFailureStillAnswers(t *testing.T) {
	h := newHarness(t)
	h.client(t, "t1", "Ana", "ana@x.com")
	h.llm.classErr = errProviderDown
	h.llm.summaryErr = errProviderDown

	res := h.ask(t, "t1", "ana")

	assert.Equal(t, domain.IntentGeneral, res.Intent.Type)
	assert.Contains(t, res.Response, "Encontré 1 resultado(s):")
	assert.Contains(t, res.Response, "Ana (ana@x.com)")
}

func TestProcessQuery_TenantIsolation(t *testing.T) {
	h := newHarness(t)
	h.client(t, "t1", "Ana", "ana@x.com")
	h.client(t, "t2", "Bruno", "bruno@x.com")
	h.client(t, "t2", "Carla", "carla@x.com")

	h.llm.classify = `{"type":"search","entity":"CLIENT","params":{"query":"Ana"}}`
	res := h.ask(t, "t2", "Busca a Ana")
	assert.Equal(t, noResults("Busca a Ana"), res.Response)

	h.llm.classify = `{"type":"count","entity":"CLIENT"}`
	res = h.ask(t, "t2", "¿Cuántos clientes tengo?")
	assert.Equal(t, 2, res.Results)

	stats, err := h.learning.Stats(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalExamples)
}

func TestProcessQuery_LearnedContextReachesClassifier(t *testing.T) {
	h := newHarness(t)
	h.client(t, "t1", "Ana", "ana@x.com")
	h.llm.classify = `{"type":"count","entity":"CLIENT"}`

	h.ask(t, "t1", "¿Cuántos clientes tengo?")
	h.ask(t, "t1", "¿Cuántos clientes tengo ahora?")

	assert.Contains(t, h.llm.lastPrompt(), `Usuario preguntó: "¿Cuántos clientes tengo?"`)
}

func TestProcessQuery_EmbedsQueryOnce(t *testing.T) {
	h := newHarness(t)
	h.client(t, "t1", "Ana", "ana@x.com")
	h.llm.classify = `{"type":"search","params":{"query":"ana"}}`

	res := h.ask(t, "t1", "ana")

	assert.Len(t, res.Results, 1)
	assert.EqualValues(t, 1, h.embedder.calls.Load(), "context lookup, semantic search and recording share one embedding")
}

func TestProcessQuery_UnsupportedCombination(t *testing.T) {
	h := newHarness(t)
	h.llm.classify = `{"type":"count","entity":"ROOM"}`

	res := h.ask(t, "t1", "¿Cuántas salas hay?")

	assert.Equal(t, msgUnsupported, res.Response)
	assert.Zero(t, h.corpus.Len())
}

func TestProcessQuery_EmptyQuery(t *testing.T) {
	h := newHarness(t)

	res := h.ask(t, "t1", "   ")

	assert.Equal(t, msgEmptyQuery, res.Response)
	assert.Empty(t, h.llm.prompts)
}

func TestProcessQuery_MissingTenant(t *testing.T) {
	h := newHarness(t)

	res, err := h.service.ProcessQuery(context.Background(), "¿Cuántos clientes tengo?", domain.RequestContext{})

	require.ErrorIs(t, err, domain.ErrMissingTenant)
	assert.Nil(t, res)
}

func TestProcessQuery_MutationIntentFromClassifier(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, "t1", "Ana", "ana@x.com")
	h.llm.classify = `{"type":"mutation","entity":"CLIENT","action":"updateClient"}`
	h.llm.extract = fmt.Sprintf(`{"clientId":%q,"type":"VIP"}`, c.ID)

	res := h.ask(t, "t1", "Pon a Ana como cliente VIP")

	assert.Equal(t, "Cliente Ana actualizado correctamente.", res.Response)
	rec, err := h.repo.Get(context.Background(), domain.Scope{TenantID: "t1"}, domain.EntityClient, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "VIP", rec.(*domain.Client).Type)
}
