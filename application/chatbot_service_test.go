package application

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
)

type scriptedMessages struct {
	lines []string
}

func (s *scriptedMessages) GetUserMessage() (string, bool) {
	if len(s.lines) == 0 {
		return "", false
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, true
}

type echoProcessor struct {
	seen []domain.RequestContext
}

func (p *echoProcessor) ProcessQuery(ctx context.Context, query string, rc domain.RequestContext) (*domain.QueryResult, error) {
	if rc.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	p.seen = append(p.seen, rc)
	return &domain.QueryResult{Query: query, Response: "eco: " + query}, nil
}

func TestChatbotService_AnswersUntilExit(t *testing.T) {
	var out bytes.Buffer
	proc := &echoProcessor{}
	rc := domain.RequestContext{TenantID: "t1", UserRole: "ADMIN"}
	input := &scriptedMessages{lines: []string{"  ", "¿Cuántos clientes tengo?", "SALIR", "no se lee"}}

	err := NewChatbotService(proc, input, &out, rc, nil).StartChatbot(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "eco: ¿Cuántos clientes tengo?")
	assert.NotContains(t, out.String(), "no se lee")
	assert.Equal(t, []domain.RequestContext{rc}, proc.seen)
	assert.Equal(t, []string{"no se lee"}, input.lines)
}

func TestChatbotService_StopsAtEndOfInput(t *testing.T) {
	var out bytes.Buffer
	input := &scriptedMessages{lines: []string{"hola"}}

	err := NewChatbotService(&echoProcessor{}, input, &out, domain.RequestContext{TenantID: "t1"}, nil).StartChatbot(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "eco: hola")
}

func TestChatbotService_MissingTenant(t *testing.T) {
	var out bytes.Buffer
	input := &scriptedMessages{lines: []string{"hola"}}

	err := NewChatbotService(&echoProcessor{}, input, &out, domain.RequestContext{}, nil).StartChatbot(context.Background())

	require.ErrorIs(t, err, domain.ErrMissingTenant)
}

func TestChatbotService_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewChatbotService(&echoProcessor{}, &scriptedMessages{lines: []string{"hola"}}, &bytes.Buffer{}, domain.RequestContext{TenantID: "t1"}, nil).StartChatbot(ctx)

	require.ErrorIs(t, err, context.Canceled)
}
