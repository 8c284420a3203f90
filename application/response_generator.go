package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

const (
	defaultSummaryTimeout = 20 * time.Second
	fallbackItemsPerType  = 3
)

// User-facing sentences shared by the pipeline.
const (
	msgUnsupported = "Todavía no puedo responder ese tipo de consulta. Prueba a preguntar por tus clientes, eventos, cotizaciones o productos."
	msgQueryFailed = "Lo siento, ocurrió un error al procesar tu consulta. Inténtalo de nuevo en unos momentos."

	msgMutationUnsupported = "No puedo realizar esa operación. Puedo crear o actualizar clientes, eventos y cotizaciones."
	msgMutationDuplicate   = "Ya existe un registro con esos datos. Si es un cliente, revisa que el email no esté registrado."
	msgMutationFailed      = "No pude guardar los cambios por un error interno. Inténtalo de nuevo en unos momentos."
)

type entityNoun struct {
	singular, plural string
	feminine         bool
}

var entityNouns = map[domain.EntityType]entityNoun{
	domain.EntityClient:  {"cliente", "clientes", false},
	domain.EntityEvent:   {"evento", "eventos", false},
	domain.EntityQuote:   {"cotización", "cotizaciones", true},
	domain.EntityRoom:    {"sala", "salas", true},
	domain.EntityProduct: {"producto", "productos", false},
}

func nounFor(et domain.EntityType) entityNoun {
	if n, ok := entityNouns[et]; ok {
		return n
	}
	return entityNoun{"registro", "registros", false}
}

// ResponseGenerator turns handler and mutation results into user-facing
// text. Only search summaries use the LLM; everything else is
// deterministic.
type ResponseGenerator struct {
	llm     domain.TextGenerator
	format  *localeFormatter
	timeout time.Duration
	logger  *zap.Logger
}

// NewResponseGenerator creates a ResponseGenerator. llm may be nil, in which
// case search results always use the deterministic listing.
func NewResponseGenerator(llm domain.TextGenerator, locale string, timeout time.Duration, logger *zap.Logger) *ResponseGenerator {
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseGenerator{llm: llm, format: newLocaleFormatter(locale), timeout: timeout, logger: logger}
}

// Render produces the answer for a dispatched query. It never returns raw
// JSON.
func (g *ResponseGenerator) Render(ctx context.Context, query string, intent domain.IntentDescriptor, res HandlerResult) string {
	if !res.Supported {
		return msgUnsupported
	}

	switch intent.Type {
	case domain.IntentCount:
		if res.Count != nil {
			return g.renderCount(intent.Entity, *res.Count)
		}
	case domain.IntentGet:
		return g.renderGet(intent, res.Records)
	case domain.IntentList:
		if len(res.Records) > 0 {
			return g.renderList(intent.Entity, res.Records, res.Limit)
		}
	case domain.IntentSearch, domain.IntentGeneral:
		if len(res.Records) > 0 {
			return g.renderSearch(ctx, query, res.Records)
		}
	}
	return noResults(query)
}

// RenderError is the answer for a query whose handler failed.
func (g *ResponseGenerator) RenderError(err error) string {
	g.logger.Debug("rendering query failure", zap.Error(err))
	return msgQueryFailed
}

func noResults(query string) string {
	return fmt.Sprintf("No encontré resultados para %q. Intenta con términos más específicos como nombres de clientes, números de cotización, o tipos de eventos.", query)
}

func (g *ResponseGenerator) renderCount(et domain.EntityType, n int) string {
	noun := nounFor(et)
	registered := "registrado"
	if noun.feminine {
		registered = "registrada"
	}
	switch n {
	case 0:
		return fmt.Sprintf("No tienes %s %ss.", noun.plural, registered)
	case 1:
		return fmt.Sprintf("Tienes 1 %s %s.", noun.singular, registered)
	}
	return fmt.Sprintf("Tienes %d %s %ss.", n, noun.plural, registered)
}

func (g *ResponseGenerator) renderGet(intent domain.IntentDescriptor, recs []domain.Record) string {
	noun := nounFor(intent.Entity)
	if len(recs) == 0 {
		if noun.feminine {
			return fmt.Sprintf("No encontré ninguna %s registrada.", noun.singular)
		}
		return fmt.Sprintf("No encontré ningún %s registrado.", noun.singular)
	}

	position := "último"
	if intent.Action == domain.ActionGetFirst {
		position = "primer"
	}
	article := "El"
	if noun.feminine {
		article = "La"
		if position == "primer" {
			position = "primera"
		} else {
			position = "última"
		}
	}
	registered, created := "registrado", "creado"
	if noun.feminine {
		registered, created = "registrada", "creada"
	}
	rec := recs[0]
	return fmt.Sprintf("%s %s %s %s es %s, %s el %s.",
		article, position, noun.singular, registered, g.describe(rec), created, g.format.Date(rec.Created()))
}

func (g *ResponseGenerator) renderList(et domain.EntityType, recs []domain.Record, limit int) string {
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Estos son tus %s (%d):\n", nounFor(et).plural, len(recs))
	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, g.describe(r))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderSearch asks the LLM for a short summary and falls back to a
// grouped listing when it fails or answers with structured data.
func (g *ResponseGenerator) renderSearch(ctx context.Context, query string, recs []domain.Record) string {
	if g.llm != nil {
		summary, err := g.summarize(ctx, query, recs)
		switch {
		case err != nil:
			g.logger.Warn("summary generation failed, using fallback listing", zap.Error(err))
		case strings.TrimSpace(summary) == "":
			g.logger.Warn("empty summary, using fallback listing")
		case looksLikeJSON(summary):
			g.logger.Warn("summary looked like JSON, using fallback listing")
		default:
			return strings.TrimSpace(summary)
		}
	}
	return g.fallbackListing(recs)
}

func (g *ResponseGenerator) summarize(ctx context.Context, query string, recs []domain.Record) (string, error) {
	var data strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&data, "- [%s] %s\n", nounFor(r.RecordType()).singular, g.describe(r))
	}

	prompt := fmt.Sprintf(`Eres un asistente de CRM para un negocio de eventos.
El usuario preguntó: %q

Resultados encontrados:
%s
Responde en el mismo idioma que el usuario, en texto natural y en un máximo de 150 palabras.
Resume los resultados más relevantes, usa las fechas y los importes tal como aparecen.
No respondas con JSON ni con bloques de código.`, query, data.String())

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.llm.Generate(cctx, prompt)
}

// fallbackListing groups recs by searchable type. Records of other types
// are neither listed nor counted.
func (g *ResponseGenerator) fallbackListing(recs []domain.Record) string {
	grouped := make(map[domain.EntityType][]domain.Record)
	shown := 0
	for _, r := range recs {
		if !slices.Contains(searchableEntities, r.RecordType()) {
			continue
		}
		grouped[r.RecordType()] = append(grouped[r.RecordType()], r)
		shown++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Encontré %d resultado(s):\n", shown)
	for _, et := range searchableEntities {
		items := grouped[et]
		if len(items) == 0 {
			continue
		}
		noun := nounFor(et)
		fmt.Fprintf(&b, "\n**%s (%d):**\n", strings.ToUpper(noun.plural[:1])+noun.plural[1:], len(items))
		for _, r := range items[:min(len(items), fallbackItemsPerType)] {
			fmt.Fprintf(&b, "- %s\n", g.describe(r))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// describe renders one record on a single line.
func (g *ResponseGenerator) describe(r domain.Record) string {
	switch v := r.(type) {
	case *domain.Client:
		s := v.Name
		if v.Email != "" {
			s += " (" + v.Email + ")"
		}
		if v.Type != "" {
			s += " - " + v.Type
		}
		return s
	case *domain.Event:
		s := fmt.Sprintf("%s - %s", v.Title, g.format.DateTime(v.StartDate))
		if v.Status != "" {
			s += " (" + v.Status + ")"
		}
		return s
	case *domain.Quote:
		s := fmt.Sprintf("%s - %s", v.Number, g.format.Money(v.Total))
		if v.Status != "" {
			s += " (" + v.Status + ")"
		}
		return s
	case *domain.Product:
		s := v.Name
		if v.Price != nil {
			s += " - " + g.format.Money(*v.Price)
		}
		if v.ItemType != "" {
			s += " (" + v.ItemType + ")"
		}
		return s
	case *domain.Room:
		if v.Capacity > 0 {
			return fmt.Sprintf("%s (capacidad %d)", v.Name, v.Capacity)
		}
		return v.Name
	}
	return r.RecordID()
}

// RenderMutation produces the answer for a write command.
func (g *ResponseGenerator) RenderMutation(result *domain.MutationResult, err error) string {
	if err == nil && result != nil {
		return result.Message
	}

	var (
		validation  *domain.ValidationError
		reference   *domain.ReferenceError
		unsupported *domain.UnsupportedOperationError
	)
	switch {
	case errors.As(err, &validation):
		var b strings.Builder
		b.WriteString("No pude completar la operación porque hay datos faltantes o inválidos:")
		for _, f := range validation.Fields {
			fmt.Fprintf(&b, "\n- %s: %s", f.Field, fieldMessage(f.Message))
		}
		return b.String()
	case errors.As(err, &reference):
		noun := nounFor(reference.Entity)
		article := "el"
		if noun.feminine {
			article = "la"
		}
		return fmt.Sprintf("No encontré %s %s con id %s.", article, noun.singular, reference.ID)
	case errors.As(err, &unsupported):
		return msgMutationUnsupported
	case errors.Is(err, domain.ErrDuplicate):
		return msgMutationDuplicate
	case errors.Is(err, domain.ErrNotFound):
		return "No encontré el registro que quieres modificar."
	}
	return msgMutationFailed
}

var fieldMessages = map[string]string{
	"is required":                   "es obligatorio",
	"is not a known field":          "no es un campo válido",
	"must be a string":              "debe ser un texto",
	"must be a number":              "debe ser un número",
	"must be an integer":            "debe ser un número entero",
	"must be a boolean":             "debe ser verdadero o falso",
	"must be a valid email address": "debe ser un email válido",
	"must be an ISO-8601 date-time": "debe ser una fecha ISO-8601",
	"must be after startDate":       "debe ser posterior a startDate",
	"must not be negative":          "no puede ser negativo",
}

func fieldMessage(msg string) string {
	if es, ok := fieldMessages[msg]; ok {
		return es
	}
	if rest, ok := strings.CutPrefix(msg, "must be one of "); ok {
		return "debe ser uno de " + rest
	}
	return msg
}
