package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-ai-agent/domain"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  domain.IntentDescriptor
	}{
		{
			name:  "plain object",
			reply: `{"type":"count","entity":"CLIENT","confidence":0.9}`,
			want: domain.IntentDescriptor{
				Type: domain.IntentCount, Entity: domain.EntityClient, Confidence: 0.9,
				Params: domain.IntentParams{Query: "q"},
			},
		},
		{
			name:  "prose and code fence",
			reply: "Aquí está:\n```json\n{\"type\":\"get\",\"entity\":\"clientes\",\"action\":\"getLast\"}\n```",
			want: domain.IntentDescriptor{
				Type: domain.IntentGet, Entity: domain.EntityClient, Action: domain.ActionGetLast,
				Confidence: domain.DefaultIntentConfidence, Params: domain.IntentParams{Query: "q"},
			},
		},
		{
			name:  "skips objects without a valid type",
			reply: `{"note":"x"} {"type":"unknown"} {"type":"SEARCH","entity":"event","params":{"query":"boda {civil}","limit":5}}`,
			want: domain.IntentDescriptor{
				Type: domain.IntentSearch, Entity: domain.EntityEvent,
				Confidence: domain.DefaultIntentConfidence, Params: domain.IntentParams{Query: "boda {civil}", Limit: 5},
			},
		},
		{
			name:  "clamps confidence and ignores unknown entity",
			reply: `{"type":"list","entity":"planeta","confidence":7}`,
			want: domain.IntentDescriptor{
				Type: domain.IntentList, Confidence: 1, Params: domain.IntentParams{Query: "q"},
			},
		},
		{
			name:  "confidence as string",
			reply: `{"type":"count","entity":"CLIENT","confidence":"0.9"}`,
			want: domain.IntentDescriptor{
				Type: domain.IntentCount, Entity: domain.EntityClient, Confidence: 0.9,
				Params: domain.IntentParams{Query: "q"},
			},
		},
		{
			name:  "limit as string",
			reply: `{"type":"list","entity":"EVENT","params":{"limit":" 5 "}}`,
			want: domain.IntentDescriptor{
				Type: domain.IntentList, Entity: domain.EntityEvent,
				Confidence: domain.DefaultIntentConfidence, Params: domain.IntentParams{Query: "q", Limit: 5},
			},
		},
		{
			name:  "unreadable numbers fall back to defaults",
			reply: `{"type":"list","entity":"QUOTE","params":{"limit":"muchos"},"confidence":{"v":1}}`,
			want: domain.IntentDescriptor{
				Type: domain.IntentList, Entity: domain.EntityQuote,
				Confidence: domain.DefaultIntentConfidence, Params: domain.IntentParams{Query: "q"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntent("q", tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIntent_Unusable(t *testing.T) {
	for _, reply := range []string{"", "no sé", `{"type":`, `{"type":"delete"}`} {
		_, err := parseIntent("q", reply)
		var cerr *domain.ClassificationError
		assert.ErrorAs(t, err, &cerr, reply)
	}
}

func TestIntentClassifier_FallsBackToDefault(t *testing.T) {
	c := NewIntentClassifier(&scriptedLLM{classErr: errProviderDown}, time.Second, nil)

	got := c.Classify(context.Background(), "hola", ClassifyInput{})

	assert.Equal(t, domain.DefaultIntent("hola"), got)
}

type blockingLLM struct{}

func (blockingLLM) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestIntentClassifier_Timeout(t *testing.T) {
	c := NewIntentClassifier(blockingLLM{}, 20*time.Millisecond, nil)

	start := time.Now()
	got := c.Classify(context.Background(), "hola", ClassifyInput{})

	assert.Equal(t, domain.IntentGeneral, got.Type)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestIntentClassifier_PromptCarriesGrounding(t *testing.T) {
	llm := &scriptedLLM{classify: `{"type":"count","entity":"QUOTE"}`}
	c := NewIntentClassifier(llm, time.Second, nil)
	s := NewSchemaIntrospector()

	got := c.Classify(context.Background(), "¿Cuántas cotizaciones hay?", ClassifyInput{
		SchemaText:     s.DescribeSchema(),
		ExamplesText:   s.DescribeQueryExamples(),
		LearnedContext: "Ejemplo 1: contexto aprendido",
	})

	assert.Equal(t, domain.EntityQuote, got.Entity)
	prompt := llm.lastPrompt()
	assert.Contains(t, prompt, "Quote (QUOTE)")
	assert.Contains(t, prompt, "Dame el primer cliente")
	assert.Contains(t, prompt, "Ejemplo 1: contexto aprendido")
	assert.Contains(t, prompt, `"¿Cuántas cotizaciones hay?"`)
}

func TestFindJSONCandidates(t *testing.T) {
	text := "antes } {\"a\":\"}{\"} medio {\"b\":{\"c\":\"\\\"}\"}} fin {sin cerrar"

	assert.Equal(t, []string{`{"a":"}{"}`, `{"b":{"c":"\"}"}}`}, findJSONCandidates(text))
}

func TestLooksLikeJSON(t *testing.T) {
	assert.True(t, looksLikeJSON(`Resultado: {"total": 3}`))
	assert.True(t, looksLikeJSON(`  [1, 2]`))
	assert.False(t, looksLikeJSON("Tienes 3 eventos {confirmados} este mes."))
	assert.False(t, looksLikeJSON("Encontré 2 clientes."))
}
