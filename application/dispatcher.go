package application

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

// Search modes reported in HandlerResult.SearchMode.
const (
	SearchSemantic    = "semantic"
	SearchTraditional = "traditional"
)

// HandlerResult is what a query handler produced. Count is set only by
// count handlers; Records holds everything else.
type HandlerResult struct {
	Type       domain.IntentType `json:"type"`
	Entity     domain.EntityType `json:"entity,omitempty"`
	Action     string            `json:"action,omitempty"`
	Supported  bool              `json:"supported"`
	Count      *int              `json:"count,omitempty"`
	Records    []domain.Record   `json:"records,omitempty"`
	SearchMode string            `json:"searchMode,omitempty"`
	Limit      int               `json:"-"`
}

// Empty reports whether the handler found nothing worth showing. An
// explicit count, even zero, is a result.
func (r HandlerResult) Empty() bool {
	return r.Count == nil && len(r.Records) == 0
}

// QueryHandler answers one (intent type, entity type) combination.
type QueryHandler func(ctx context.Context, intent domain.IntentDescriptor, scope domain.Scope) (HandlerResult, error)

type handlerKey struct {
	intent domain.IntentType
	entity domain.EntityType
}

// Dispatcher routes classified intents to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[handlerKey]QueryHandler
	logger   *zap.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[handlerKey]QueryHandler), logger: logger}
}

// Register binds h to (intent, entity). Use an empty entity for handlers
// that span every type. A later registration replaces an earlier one.
func (d *Dispatcher) Register(intent domain.IntentType, entity domain.EntityType, h QueryHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[handlerKey{intent, entity}] = h
}

// Supports reports whether a handler exists for the combination.
func (d *Dispatcher) Supports(intent domain.IntentType, entity domain.EntityType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[handlerKey{intent, entity}]
	return ok
}

// Dispatch runs the handler for intent. Unknown combinations return a
// result with Supported false and no error. Records outside the request
// scope are dropped whatever the handler returned.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.IntentDescriptor, rc domain.RequestContext) (HandlerResult, error) {
	if rc.TenantID == "" {
		return HandlerResult{}, domain.ErrMissingTenant
	}

	d.mu.RLock()
	h, ok := d.handlers[handlerKey{intent.Type, intent.Entity}]
	d.mu.RUnlock()

	base := HandlerResult{Type: intent.Type, Entity: intent.Entity, Action: intent.Action}
	if !ok {
		d.logger.Info("no handler for intent",
			zap.String("type", string(intent.Type)),
			zap.String("entity", string(intent.Entity)))
		return base, nil
	}

	scope := rc.Scope()
	res, err := h(ctx, intent, scope)
	if err != nil {
		return base, err
	}
	res.Type, res.Entity, res.Action, res.Supported = intent.Type, intent.Entity, intent.Action, true

	kept := res.Records[:0]
	for _, r := range res.Records {
		if r == nil {
			continue
		}
		if scope.Allows(r) {
			kept = append(kept, r)
			continue
		}
		d.logger.Error("handler returned a record outside the request scope",
			zap.String("tenant", scope.TenantID),
			zap.String("id", r.RecordID()))
	}
	res.Records = kept
	return res, nil
}
