package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	v := []float32{0.3, -1.2, 4}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	assert.InDelta(t, 0.0, CosineDistance(v, v), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestRankHits(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	hits := []SearchHit{
		{EntityID: "low", Similarity: 0.7},
		{EntityID: "a", Similarity: 0.9, UpdatedAt: older},
		{EntityID: "b", Similarity: 0.9, UpdatedAt: newer},
		{EntityID: "c", Similarity: 0.95},
		{EntityID: "d", Similarity: 0.71},
	}

	got := RankHits(hits, 0.7, 0)
	ids := make([]string, len(got))
	for i, h := range got {
		ids[i] = h.EntityID
	}
	assert.Equal(t, []string{"c", "b", "a", "d"}, ids)

	assert.Len(t, RankHits(hits, 0.7, 2), 2)
	assert.Empty(t, RankHits(nil, 0.7, 5))
}

func TestFoldAndWords(t *testing.T) {
	assert.Equal(t, "cotizacion", Fold("Cotización"))
	assert.Equal(t, "anade un cliente", Fold("Añade un Cliente"))
	assert.Equal(t, []string{"cuantos", "clientes", "tengo"}, Words("¿Cuántos clientes tengo?"))
	assert.Equal(t, []string{"ana", "x", "com"}, Words("ana@x.com"))
}

func TestParseEntityType(t *testing.T) {
	cases := map[string]EntityType{
		"clientes":     EntityClient,
		"Client":       EntityClient,
		"CLIENT":       EntityClient,
		"eventos":      EntityEvent,
		"Cotizaciones": EntityQuote,
		"quote":        EntityQuote,
		"sala":         EntityRoom,
		"PRODUCT":      EntityProduct,
	}
	for in, want := range cases {
		got, ok := ParseEntityType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseEntityType("facturas")
	assert.False(t, ok)
	_, ok = ParseEntityType("  ")
	assert.False(t, ok)
}

func TestIntentType_Valid(t *testing.T) {
	assert.True(t, IntentCount.Valid())
	assert.True(t, IntentGeneral.Valid())
	assert.False(t, IntentType("delete").Valid())
}

func TestDefaultIntent(t *testing.T) {
	d := DefaultIntent("hola")
	assert.Equal(t, IntentGeneral, d.Type)
	assert.Equal(t, "hola", d.Params.Query)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	v := Embedding{0, 1.5, -2.25, 3.4028235e38}
	got, err := EmbeddingFromBlob(v.Blob())
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = EmbeddingFromBlob([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestScopeAllows(t *testing.T) {
	c := &Client{ID: "c1", TenantID: "t1", BusinessIdentityID: "b1"}

	assert.True(t, Scope{TenantID: "t1"}.Allows(c))
	assert.True(t, Scope{TenantID: "t1", BusinessIdentityID: "b1"}.Allows(c))
	assert.False(t, Scope{TenantID: "t1", BusinessIdentityID: "b2"}.Allows(c))
	assert.False(t, Scope{TenantID: "t2"}.Allows(c))
	assert.False(t, Scope{}.Allows(c))
	assert.False(t, Scope{TenantID: "t1"}.Allows(nil))

	rc := RequestContext{TenantID: "t1", BusinessIdentityID: "b1", UserRole: "ADMIN"}
	assert.Equal(t, Scope{TenantID: "t1", BusinessIdentityID: "b1"}, rc.Scope())
}

func TestErrors(t *testing.T) {
	verr := &ValidationError{Fields: []FieldError{
		{Field: "email", Message: "is required"},
		{Field: "name", Message: "must be a string"},
	}}
	assert.True(t, verr.Has("email"))
	assert.False(t, verr.Has("phone"))
	assert.Contains(t, verr.Error(), "email: is required")
	assert.Contains(t, verr.Error(), "name: must be a string")

	var err error = &ReferenceError{Entity: EntityClient, ID: "c9"}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `client "c9" not found`, err.Error())

	cause := errors.New("no json")
	err = &ClassificationError{Reason: "unparseable reply", Err: cause}
	assert.ErrorIs(t, err, cause)

	err = &RepositoryError{Op: "create client", Err: ErrDuplicate}
	assert.ErrorIs(t, err, ErrDuplicate)
}
