package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

const defaultClassifierTimeout = 15 * time.Second

// ClassifyInput is the grounding text sent along with the query.
type ClassifyInput struct {
	SchemaText     string
	ExamplesText   string
	LearnedContext string
}

// IntentClassifier turns a free-text query into an IntentDescriptor with a
// single LLM call.
type IntentClassifier struct {
	llm     domain.TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

// NewIntentClassifier creates an IntentClassifier. A non-positive timeout
// uses 15s.
func NewIntentClassifier(llm domain.TextGenerator, timeout time.Duration, logger *zap.Logger) *IntentClassifier {
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentClassifier{llm: llm, timeout: timeout, logger: logger}
}

// Classify never fails: any provider error, timeout or unusable reply
// yields domain.DefaultIntent.
func (c *IntentClassifier) Classify(ctx context.Context, query string, in ClassifyInput) domain.IntentDescriptor {
	intent, err := c.classify(ctx, query, in)
	if err != nil {
		c.logger.Warn("intent classification failed, using default intent",
			zap.String("query", query),
			zap.Error(err))
		return domain.DefaultIntent(query)
	}
	c.logger.Debug("intent classified",
		zap.String("type", string(intent.Type)),
		zap.String("entity", string(intent.Entity)),
		zap.String("action", intent.Action),
		zap.Float64("confidence", intent.Confidence))
	return intent
}

func (c *IntentClassifier) classify(ctx context.Context, query string, in ClassifyInput) (domain.IntentDescriptor, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.llm.Generate(cctx, buildClassifierPrompt(query, in))
	if err != nil {
		return domain.IntentDescriptor{}, &domain.ClassificationError{Reason: "provider call failed", Err: err}
	}
	return parseIntent(query, reply)
}

// classifierReply is the loose shape the model is asked to return.
type classifierReply struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	Params struct {
		Query   string         `json:"query"`
		Limit   looseNumber    `json:"limit"`
		Filters map[string]any `json:"filters"`
	} `json:"params"`
	Confidence looseNumber `json:"confidence"`
}

// looseNumber accepts a JSON number or a numeric string. Anything else
// leaves it unset instead of failing the whole reply.
type looseNumber struct {
	value float64
	set   bool
}

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	*n = looseNumber{}
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = looseNumber{value: f, set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*n = looseNumber{value: f, set: true}
	}
	return nil
}

// parseIntent reads the first JSON object in reply that carries a known
// type.
func parseIntent(query, reply string) (domain.IntentDescriptor, error) {
	r, ok := firstJSONObject(reply, func(r classifierReply) bool {
		return domain.IntentType(strings.ToLower(strings.TrimSpace(r.Type))).Valid()
	})
	if !ok {
		return domain.IntentDescriptor{}, &domain.ClassificationError{Reason: "no JSON object with a valid type in reply"}
	}

	intent := domain.IntentDescriptor{
		Type:       domain.IntentType(strings.ToLower(strings.TrimSpace(r.Type))),
		Action:     strings.TrimSpace(r.Action),
		Confidence: domain.DefaultIntentConfidence,
		Params: domain.IntentParams{
			Query:   strings.TrimSpace(r.Params.Query),
			Limit:   int(r.Params.Limit.value),
			Filters: r.Params.Filters,
		},
	}
	if et, ok := domain.ParseEntityType(r.Entity); ok {
		intent.Entity = et
	}
	if r.Confidence.set {
		intent.Confidence = min(max(r.Confidence.value, 0), 1)
	}
	if intent.Params.Query == "" {
		intent.Params.Query = query
	}
	if intent.Params.Limit < 0 {
		intent.Params.Limit = 0
	}
	return intent, nil
}

func buildClassifierPrompt(query string, in ClassifyInput) string {
	var b strings.Builder
	b.WriteString("Eres el clasificador de consultas de un CRM de eventos. ")
	b.WriteString("Clasifica la consulta del usuario y responde SOLO con un objeto JSON.\n\n")

	b.WriteString(in.SchemaText)
	b.WriteString("\nEstructura de la respuesta:\n")
	b.WriteString(`{"type":"count|get|list|search|general","entity":"CLIENT|EVENT|QUOTE|ROOM|PRODUCT","action":"getFirst|getLast","params":{"query":"texto","limit":10,"filters":{}},"confidence":0.0}`)
	b.WriteString("\n\nReglas:\n")
	b.WriteString("- \"cuántos\", \"total\", \"número de\" -> type count\n")
	b.WriteString("- \"primer\" -> type get, action getFirst; \"último\" -> type get, action getLast\n")
	b.WriteString("- \"lista\", \"muestra todos\" -> type list\n")
	b.WriteString("- \"busca\", \"encuentra\" o texto libre sobre una entidad -> type search con params.query\n")
	b.WriteString("- cualquier otra consulta -> type general\n\n")

	b.WriteString(in.ExamplesText)
	if in.LearnedContext != "" {
		b.WriteString("\n")
		b.WriteString(in.LearnedContext)
	}
	fmt.Fprintf(&b, "\nConsulta: %q\nRespuesta JSON:", query)
	return b.String()
}
