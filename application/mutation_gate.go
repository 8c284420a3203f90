package application

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

const defaultExtractTimeout = 15 * time.Second

var (
	createVerbs = map[string]bool{
		"crea": true, "crear": true, "creame": true, "registra": true, "registrar": true,
		"agrega": true, "agregar": true, "anade": true, "anadir": true, "create": true, "add": true,
	}
	updateVerbs = map[string]bool{
		"actualiza": true, "actualizar": true, "modifica": true, "modificar": true,
		"cambia": true, "cambiar": true, "edita": true, "editar": true, "update": true,
	}
	mutableEntities = map[domain.EntityType]string{
		domain.EntityClient: "Client",
		domain.EntityEvent:  "Event",
		domain.EntityQuote:  "Quote",
	}
)

// MutationRequest is what the keyword gate recognised in a query. Function
// is empty when a write verb was found but no writable entity was named.
type MutationRequest struct {
	Operation domain.MutationOperation
	Entity    domain.EntityType
	Function  string
}

// MutationGate detects write commands before classification and extracts
// their arguments.
type MutationGate struct {
	llm     domain.TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

// NewMutationGate creates a MutationGate. llm may be nil, in which case
// only the deterministic extractor runs.
func NewMutationGate(llm domain.TextGenerator, timeout time.Duration, logger *zap.Logger) *MutationGate {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationGate{llm: llm, timeout: timeout, logger: logger}
}

// Detect reports whether query is a write command. Matching is on whole
// words, accent and case insensitive, so "Créame un cliente" and
// "crea un cliente" are equivalent.
func (g *MutationGate) Detect(query string) (MutationRequest, bool) {
	var req MutationRequest
	for _, w := range domain.Words(query) {
		switch {
		case req.Operation == "" && createVerbs[w]:
			req.Operation = domain.OperationCreate
		case req.Operation == "" && updateVerbs[w]:
			req.Operation = domain.OperationUpdate
		case req.Entity == "":
			if et, ok := domain.ParseEntityType(w); ok {
				if _, writable := mutableEntities[et]; writable {
					req.Entity = et
				}
			}
		}
	}
	if req.Operation == "" {
		return MutationRequest{}, false
	}
	if req.Entity != "" {
		req.Function = string(req.Operation) + mutableEntities[req.Entity]
	}
	return req, true
}

// Extract builds the raw arguments for def from the query. The LLM is asked
// first; fields it leaves out are filled by the deterministic extractor.
func (g *MutationGate) Extract(ctx context.Context, query string, def domain.FunctionDefinition) map[string]any {
	args := make(map[string]any)
	if g.llm != nil {
		if extracted, err := g.extractWithLLM(ctx, query, def); err != nil {
			g.logger.Warn("argument extraction failed, using heuristics",
				zap.String("function", def.Name),
				zap.Error(err))
		} else {
			args = extracted
		}
	}
	for k, v := range heuristicArgs(query, def) {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}
	return args
}

func (g *MutationGate) extractWithLLM(ctx context.Context, query string, def domain.FunctionDefinition) (map[string]any, error) {
	schema, err := json.Marshal(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	prompt := fmt.Sprintf(`Extrae los argumentos de la función %s (%s) a partir del mensaje del usuario.
Esquema JSON de los argumentos:
%s

Reglas:
- Responde SOLO con un objeto JSON que cumpla el esquema.
- Omite los campos que el usuario no menciona; no inventes valores.
- Fechas en ISO-8601 (2025-12-25T18:00:00Z).
- Hoy es %s.

Mensaje: %q
JSON:`, def.Name, def.Description, schema, time.Now().Format("2006-01-02"), query)

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.llm.Generate(cctx, prompt)
	if err != nil {
		return nil, err
	}
	args, ok := firstJSONObject[map[string]any](reply, nil)
	if !ok {
		return nil, &domain.ClassificationError{Reason: "no JSON arguments in reply"}
	}
	for k, v := range args {
		if v == nil || v == "" {
			delete(args, k)
		}
	}
	return args, nil
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-]{6,}\d`)
	uuidPattern  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	namePattern  = regexp.MustCompile(`(?i)\b(?:llamad[oa]|de nombre|titulad[oa]|named|called)\s+(.+?)(?:\s+(?:con|with|y|and|para|email|correo|tel[eé]fono)\b|[,;:.]\s|[,;:]|$)`)
)

// heuristicArgs extracts what plain patterns can find: email, phone, a
// quoted or introduced name, and an entity id for updates.
func heuristicArgs(query string, def domain.FunctionDefinition) map[string]any {
	has := func(field string) bool {
		if def.InputSchema == nil || def.InputSchema.Properties == nil {
			return false
		}
		_, ok := def.InputSchema.Properties.Get(field)
		return ok
	}

	args := make(map[string]any)
	if email := emailPattern.FindString(query); email != "" && has("email") {
		args["email"] = email
	}
	rest := uuidPattern.ReplaceAllString(emailPattern.ReplaceAllString(query, ""), "")
	if phone := phonePattern.FindString(rest); phone != "" && has("phone") {
		args["phone"] = strings.TrimSpace(phone)
	}

	if m := namePattern.FindStringSubmatch(rest); m != nil {
		name := strings.Trim(strings.TrimSpace(m[1]), `"'`)
		switch {
		case name == "":
		case has("name"):
			args["name"] = name
		case has("title"):
			args["title"] = name
		}
	}

	if def.Operation == domain.OperationUpdate {
		idField := strings.ToLower(string(def.Entity)) + "Id"
		if id := uuidPattern.FindString(query); id != "" && has(idField) {
			args[idField] = id
		}
	}
	return args
}
