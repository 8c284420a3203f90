package application

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

// EntityIndexer refreshes the embedding of a written entity.
type EntityIndexer interface {
	Index(ctx context.Context, rec domain.Record) error
}

// MutationExecutor validates extracted arguments against the registered
// function schemas and performs tenant-scoped writes.
type MutationExecutor struct {
	repo        domain.Repository
	indexer     EntityIndexer
	quotePrefix string
	format      *localeFormatter
	now         func() time.Time
	logger      *zap.Logger
	registry    map[string]mutationFunction
	order       []string
}

// MutationOption configures a MutationExecutor.
type MutationOption func(*MutationExecutor)

// WithIndexer refreshes embeddings after every successful write.
func WithIndexer(indexer EntityIndexer) MutationOption {
	return func(e *MutationExecutor) { e.indexer = indexer }
}

// WithQuotePrefix sets the PREFIX of generated quote numbers.
func WithQuotePrefix(prefix string) MutationOption {
	return func(e *MutationExecutor) {
		if prefix != "" {
			e.quotePrefix = prefix
		}
	}
}

// WithMutationClock overrides the clock used for quote numbering.
func WithMutationClock(now func() time.Time) MutationOption {
	return func(e *MutationExecutor) { e.now = now }
}

// WithMutationLocale sets the locale amounts are formatted in.
func WithMutationLocale(locale string) MutationOption {
	return func(e *MutationExecutor) { e.format = newLocaleFormatter(locale) }
}

// NewMutationExecutor creates an executor with the six CRM functions registered.
func NewMutationExecutor(repo domain.Repository, logger *zap.Logger, opts ...MutationOption) *MutationExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &MutationExecutor{
		repo:        repo,
		quotePrefix: "COT",
		format:      newLocaleFormatter(""),
		now:         time.Now,
		logger:      logger,
		registry:    make(map[string]mutationFunction),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, fn := range e.functions() {
		e.registry[fn.def.Name] = fn
		e.order = append(e.order, fn.def.Name)
	}
	return e
}

// GetAllFunctions returns the registered definitions in registration order.
func (e *MutationExecutor) GetAllFunctions() []domain.FunctionDefinition {
	out := make([]domain.FunctionDefinition, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.registry[name].def)
	}
	return out
}

// FindFunctionByName looks a function up by its exact name.
func (e *MutationExecutor) FindFunctionByName(name string) (domain.FunctionDefinition, bool) {
	fn, ok := e.registry[name]
	return fn.def, ok
}

// Execute runs a registered function.
//
// Steps: registry lookup, schema validation reporting every violation,
// reference checks inside the tenant, the repository write, and a best-effort
// embedding refresh. Errors are *domain.UnsupportedOperationError,
// *domain.ValidationError, *domain.ReferenceError or *domain.RepositoryError.
func (e *MutationExecutor) Execute(ctx context.Context, name string, rawArgs map[string]any, rc domain.RequestContext) (*domain.MutationResult, error) {
	if rc.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	fn, ok := e.registry[name]
	if !ok {
		return nil, &domain.UnsupportedOperationError{Name: name}
	}

	args := normalizeArgs(rawArgs)
	violations := validateArgs(fn.def.InputSchema, args)
	if fn.check != nil && len(violations) == 0 {
		violations = append(violations, fn.check(args)...)
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Fields: violations}
	}

	input, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", name, err)
	}

	result, err := fn.def.Function(ctx, input, rc)
	if err != nil {
		e.logger.Warn("mutation failed",
			zap.String("function", name),
			zap.String("tenant", rc.TenantID),
			zap.Error(err))
		return nil, err
	}
	result.Success = true
	result.Function = name
	result.Entity = fn.def.Entity

	e.logger.Info("mutation executed",
		zap.String("function", name),
		zap.String("tenant", rc.TenantID),
		zap.String("id", result.Record.RecordID()))

	if e.indexer != nil {
		if err := e.indexer.Index(ctx, result.Record); err != nil {
			e.logger.Warn("embedding refresh failed", zap.String("id", result.Record.RecordID()), zap.Error(err))
		}
	}
	return result, nil
}

func (e *MutationExecutor) formatMoney(v float64) string {
	return e.format.Money(v)
}

// normalizeArgs trims strings and drops nulls and blank strings, which
// count as absent.
func normalizeArgs(raw map[string]any) map[string]any {
	args := make(map[string]any, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t = strings.TrimSpace(t); t != "" {
				args[k] = t
			}
		default:
			args[k] = v
		}
	}
	return args
}

// validateArgs checks args against schema and returns every violation:
// missing required fields first, then per-field problems in name order.
func validateArgs(schema *jsonschema.Schema, args map[string]any) []domain.FieldError {
	var out []domain.FieldError

	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			out = append(out, domain.FieldError{Field: name, Message: "is required"})
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		value := args[name]
		prop, ok := schema.Properties.Get(name)
		if !ok {
			out = append(out, domain.FieldError{Field: name, Message: "is not a known field"})
			continue
		}
		if msg := checkType(prop.Type, value); msg != "" {
			out = append(out, domain.FieldError{Field: name, Message: msg})
			continue
		}
		if s, ok := value.(string); ok {
			if msg := checkFormat(prop.Format, s); msg != "" {
				out = append(out, domain.FieldError{Field: name, Message: msg})
			}
		}
		if len(prop.Enum) > 0 && !slices.Contains(prop.Enum, value) {
			allowed := make([]string, len(prop.Enum))
			for i, v := range prop.Enum {
				allowed[i] = fmt.Sprint(v)
			}
			out = append(out, domain.FieldError{Field: name, Message: "must be one of " + strings.Join(allowed, ", ")})
		}
	}
	return out
}

// checkType verifies a decoded JSON value against a schema type without
// coercion: "100" is not a number.
func checkType(typ string, v any) string {
	switch typ {
	case "string":
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case "number":
		if _, ok := asFloat(v); !ok {
			return "must be a number"
		}
	case "integer":
		f, ok := asFloat(v)
		if !ok || f != math.Trunc(f) {
			return "must be an integer"
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return "must be a boolean"
		}
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func checkFormat(format, s string) string {
	switch format {
	case "email":
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@")+1:], ".") {
			return "must be a valid email address"
		}
	case "date-time":
		if _, err := parseDateTime(s); err != nil {
			return "must be an ISO-8601 date-time"
		}
	}
	return ""
}
