package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
)

func TestMutationGate_Detect(t *testing.T) {
	g := NewMutationGate(nil, 0, nil)

	tests := []struct {
		query    string
		detected bool
		function string
	}{
		{"Crea un cliente llamado Ana", true, "createClient"},
		{"Créame un evento para el sábado", true, "createEvent"},
		{"ACTUALIZA la cotización COT-2026-001", true, "updateQuote"},
		{"registrar nuevo cliente", true, "createClient"},
		{"Añade una reserva para Ana", true, "createEvent"},
		{"modifica el email del cliente", true, "updateClient"},
		{"agrega algo", true, ""},
		{"Registra un producto", true, ""},
		{"¿Cuántos clientes tengo?", false, ""},
		{"Lista los clientes creados este mes", false, ""},
		{"nuevo cliente", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req, ok := g.Detect(tt.query)
			assert.Equal(t, tt.detected, ok)
			assert.Equal(t, tt.function, req.Function)
		})
	}
}

func TestMutationGate_ExtractHeuristics(t *testing.T) {
	e, _ := newExecutor(t)
	def, _ := e.FindFunctionByName("createClient")
	g := NewMutationGate(nil, 0, nil)

	args := g.Extract(context.Background(), "Crea un cliente llamado Ana López con email ana@x.com y teléfono +34 600 123 456", def)

	assert.Equal(t, map[string]any{
		"name":  "Ana López",
		"email": "ana@x.com",
		"phone": "+34 600 123 456",
	}, args)
}

func TestMutationGate_ExtractTitleForEvents(t *testing.T) {
	e, _ := newExecutor(t)
	def, _ := e.FindFunctionByName("createEvent")
	g := NewMutationGate(nil, 0, nil)

	args := g.Extract(context.Background(), "crea un evento titulado Boda García, el 2026-12-25", def)

	assert.Equal(t, "Boda García", args["title"])
	assert.NotContains(t, args, "name")
}

func TestMutationGate_ExtractUpdateID(t *testing.T) {
	e, _ := newExecutor(t)
	def, _ := e.FindFunctionByName("updateClient")
	g := NewMutationGate(nil, 0, nil)

	id := "3f2a1b4c-1234-4abc-8def-1234567890ab"
	args := g.Extract(context.Background(), "Actualiza el cliente "+id+" con email nuevo@x.com", def)

	assert.Equal(t, map[string]any{"clientId": id, "email": "nuevo@x.com"}, args)
}

func TestMutationGate_ModelAnswerWinsOverHeuristics(t *testing.T) {
	e, _ := newExecutor(t)
	def, _ := e.FindFunctionByName("createClient")
	llm := &scriptedLLM{extract: "```json\n{\"name\":\"Ana María\",\"type\":\"VIP\",\"notes\":null}\n```"}
	g := NewMutationGate(llm, 0, nil)

	args := g.Extract(context.Background(), "Crea un cliente VIP llamado Ana con email ana@x.com", def)

	assert.Equal(t, map[string]any{"name": "Ana María", "type": "VIP", "email": "ana@x.com"}, args)
	require.NotEmpty(t, llm.prompts)
	assert.Contains(t, llm.prompts[0], `"email"`, "the schema is part of the prompt")
}

func TestMutationGate_UnusableModelAnswer(t *testing.T) {
	e, _ := newExecutor(t)
	def, _ := e.FindFunctionByName("createClient")
	g := NewMutationGate(&scriptedLLM{extract: "No puedo ayudarte con eso."}, 0, nil)

	args := g.Extract(context.Background(), "Crea un cliente llamado Ana con email ana@x.com", def)

	assert.Equal(t, map[string]any{"name": "Ana", "email": "ana@x.com"}, args)
}

func TestMutationGate_ExtractedArgsValidate(t *testing.T) {
	e, _ := newExecutor(t)
	def, _ := e.FindFunctionByName("createClient")
	g := NewMutationGate(nil, 0, nil)

	args := g.Extract(context.Background(), "Crea un cliente llamado Ana", def)
	_, err := e.Execute(context.Background(), def.Name, args, domain.RequestContext{TenantID: "t1"})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []domain.FieldError{{Field: "email", Message: "is required"}}, verr.Fields)
}
