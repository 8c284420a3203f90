package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"crm-ai-agent/domain"
)

// GenerateSchema creates a JSON schema for the specified type T.
// Fields without omitempty are required and unknown properties are
// rejected.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// CreateClientInput defines the arguments of createClient.
type CreateClientInput struct {
	Name  string `json:"name" jsonschema_description:"Nombre completo del cliente"`
	Email string `json:"email" jsonschema:"format=email" jsonschema_description:"Email del cliente"`
	Phone string `json:"phone,omitempty" jsonschema_description:"Teléfono del cliente"`
	Type  string `json:"type,omitempty" jsonschema:"enum=GENERAL,enum=VIP,enum=CORPORATE,enum=RECURRING" jsonschema_description:"Tipo de cliente"`
	Notes string `json:"notes,omitempty" jsonschema_description:"Notas adicionales"`
}

// UpdateClientInput defines the arguments of updateClient.
type UpdateClientInput struct {
	ClientID string  `json:"clientId" jsonschema_description:"ID del cliente a actualizar"`
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty" jsonschema:"format=email"`
	Phone    *string `json:"phone,omitempty"`
	Type     *string `json:"type,omitempty" jsonschema:"enum=GENERAL,enum=VIP,enum=CORPORATE,enum=RECURRING"`
	Notes    *string `json:"notes,omitempty"`
}

// CreateEventInput defines the arguments of createEvent.
type CreateEventInput struct {
	ClientID  string `json:"clientId" jsonschema_description:"ID del cliente asociado al evento"`
	Title     string `json:"title" jsonschema_description:"Título del evento"`
	StartDate string `json:"startDate" jsonschema:"format=date-time" jsonschema_description:"Inicio en ISO-8601"`
	EndDate   string `json:"endDate,omitempty" jsonschema:"format=date-time" jsonschema_description:"Fin en ISO-8601"`
	RoomID    string `json:"roomId,omitempty" jsonschema_description:"ID de la sala reservada"`
	Status    string `json:"status,omitempty" jsonschema:"enum=RESERVED,enum=CONFIRMED,enum=IN_PROGRESS,enum=COMPLETED,enum=CANCELLED"`
	Notes     string `json:"notes,omitempty"`
}

// UpdateEventInput defines the arguments of updateEvent.
type UpdateEventInput struct {
	EventID   string  `json:"eventId" jsonschema_description:"ID del evento a actualizar"`
	ClientID  *string `json:"clientId,omitempty"`
	Title     *string `json:"title,omitempty"`
	StartDate *string `json:"startDate,omitempty" jsonschema:"format=date-time"`
	EndDate   *string `json:"endDate,omitempty" jsonschema:"format=date-time"`
	RoomID    *string `json:"roomId,omitempty"`
	Status    *string `json:"status,omitempty" jsonschema:"enum=RESERVED,enum=CONFIRMED,enum=IN_PROGRESS,enum=COMPLETED,enum=CANCELLED"`
	Notes     *string `json:"notes,omitempty"`
}

// CreateQuoteInput defines the arguments of createQuote.
type CreateQuoteInput struct {
	ClientID   string  `json:"clientId" jsonschema_description:"ID del cliente para la cotización"`
	Total      float64 `json:"total" jsonschema_description:"Total de la cotización"`
	ValidUntil string  `json:"validUntil,omitempty" jsonschema:"format=date-time" jsonschema_description:"Fecha de validez"`
	Status     string  `json:"status,omitempty" jsonschema:"enum=DRAFT,enum=SENT,enum=VIEWED,enum=ACCEPTED,enum=REJECTED,enum=EXPIRED"`
	Notes      string  `json:"notes,omitempty"`
}

// UpdateQuoteInput defines the arguments of updateQuote.
type UpdateQuoteInput struct {
	QuoteID    string   `json:"quoteId" jsonschema_description:"ID de la cotización a actualizar"`
	ClientID   *string  `json:"clientId,omitempty"`
	Total      *float64 `json:"total,omitempty"`
	ValidUntil *string  `json:"validUntil,omitempty" jsonschema:"format=date-time"`
	Status     *string  `json:"status,omitempty" jsonschema:"enum=DRAFT,enum=SENT,enum=VIEWED,enum=ACCEPTED,enum=REJECTED,enum=EXPIRED"`
	Notes      *string  `json:"notes,omitempty"`
}

// mutationFunction is a registry entry: the public definition plus
// cross-field rules the schema cannot express.
type mutationFunction struct {
	def   domain.FunctionDefinition
	check func(args map[string]any) []domain.FieldError
}

func (e *MutationExecutor) functions() []mutationFunction {
	return []mutationFunction{
		{def: domain.FunctionDefinition{
			Name:        "createClient",
			Description: "Crea un nuevo cliente en el CRM",
			Entity:      domain.EntityClient,
			Operation:   domain.OperationCreate,
			InputSchema: GenerateSchema[CreateClientInput](),
			Function:    e.createClient,
		}},
		{def: domain.FunctionDefinition{
			Name:        "updateClient",
			Description: "Actualiza la información de un cliente existente",
			Entity:      domain.EntityClient,
			Operation:   domain.OperationUpdate,
			InputSchema: GenerateSchema[UpdateClientInput](),
			Function:    e.updateClient,
		}},
		{def: domain.FunctionDefinition{
			Name:        "createEvent",
			Description: "Crea un nuevo evento y lo marca como reservado",
			Entity:      domain.EntityEvent,
			Operation:   domain.OperationCreate,
			InputSchema: GenerateSchema[CreateEventInput](),
			Function:    e.createEvent,
		}, check: checkEventDates},
		{def: domain.FunctionDefinition{
			Name:        "updateEvent",
			Description: "Actualiza la información de un evento existente",
			Entity:      domain.EntityEvent,
			Operation:   domain.OperationUpdate,
			InputSchema: GenerateSchema[UpdateEventInput](),
			Function:    e.updateEvent,
		}, check: checkEventDates},
		{def: domain.FunctionDefinition{
			Name:        "createQuote",
			Description: "Crea una nueva cotización para un cliente",
			Entity:      domain.EntityQuote,
			Operation:   domain.OperationCreate,
			InputSchema: GenerateSchema[CreateQuoteInput](),
			Function:    e.createQuote,
		}, check: checkQuoteTotal},
		{def: domain.FunctionDefinition{
			Name:        "updateQuote",
			Description: "Actualiza una cotización existente",
			Entity:      domain.EntityQuote,
			Operation:   domain.OperationUpdate,
			InputSchema: GenerateSchema[UpdateQuoteInput](),
			Function:    e.updateQuote,
		}, check: checkQuoteTotal},
	}
}

// dateLayouts are the ISO-8601 shapes accepted for date-time fields.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 date-time", s)
}

func checkEventDates(args map[string]any) []domain.FieldError {
	start, ok1 := args["startDate"].(string)
	end, ok2 := args["endDate"].(string)
	if !ok1 || !ok2 {
		return nil
	}
	s, err1 := parseDateTime(start)
	e, err2 := parseDateTime(end)
	if err1 != nil || err2 != nil || e.After(s) {
		return nil
	}
	return []domain.FieldError{{Field: "endDate", Message: "must be after startDate"}}
}

func checkQuoteTotal(args map[string]any) []domain.FieldError {
	if total, ok := args["total"].(float64); ok && total < 0 {
		return []domain.FieldError{{Field: "total", Message: "must not be negative"}}
	}
	return nil
}

func decodeInput[T any](input json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(input, &v); err != nil {
		return v, &domain.ValidationError{Fields: []domain.FieldError{{Field: "(arguments)", Message: err.Error()}}}
	}
	return v, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDateTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// requireEntity turns a missing or foreign entity into a ReferenceError.
func (e *MutationExecutor) requireEntity(ctx context.Context, scope domain.Scope, entity domain.EntityType, id string) (domain.Record, error) {
	rec, err := e.repo.Get(ctx, scope, entity, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.ReferenceError{Entity: entity, ID: id}
	}
	if err != nil {
		return nil, &domain.RepositoryError{Op: "get " + strings.ToLower(string(entity)), Err: err}
	}
	return rec, nil
}

func (e *MutationExecutor) createClient(ctx context.Context, input json.RawMessage, rc domain.RequestContext) (*domain.MutationResult, error) {
	in, err := decodeInput[CreateClientInput](input)
	if err != nil {
		return nil, err
	}
	c, err := e.repo.CreateClient(ctx, rc.Scope(), domain.ClientInput{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
		Phone: in.Phone,
		Type:  in.Type,
		Notes: in.Notes,
	})
	if err != nil {
		return nil, &domain.RepositoryError{Op: "create client", Err: err}
	}
	return &domain.MutationResult{
		Success: true,
		Record:  c,
		Message: fmt.Sprintf("Cliente %s (%s) creado correctamente.", c.Name, c.Email),
	}, nil
}

func (e *MutationExecutor) updateClient(ctx context.Context, input json.RawMessage, rc domain.RequestContext) (*domain.MutationResult, error) {
	in, err := decodeInput[UpdateClientInput](input)
	if err != nil {
		return nil, err
	}
	scope := rc.Scope()
	if _, err := e.requireEntity(ctx, scope, domain.EntityClient, in.ClientID); err != nil {
		return nil, err
	}
	c, err := e.repo.UpdateClient(ctx, scope, in.ClientID, domain.ClientPatch{
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		Type:  in.Type,
		Notes: in.Notes,
	})
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update client", Err: err}
	}
	return &domain.MutationResult{
		Success: true,
		Record:  c,
		Message: fmt.Sprintf("Cliente %s actualizado correctamente.", c.Name),
	}, nil
}

func (e *MutationExecutor) createEvent(ctx context.Context, input json.RawMessage, rc domain.RequestContext) (*domain.MutationResult, error) {
	in, err := decodeInput[CreateEventInput](input)
	if err != nil {
		return nil, err
	}
	start, err := parseDateTime(in.StartDate)
	if err != nil {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "startDate", Message: err.Error()}}}
	}
	end, err := optionalDate(in.EndDate)
	if err != nil {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "endDate", Message: err.Error()}}}
	}

	scope := rc.Scope()
	if _, err := e.requireEntity(ctx, scope, domain.EntityClient, in.ClientID); err != nil {
		return nil, err
	}
	if in.RoomID != "" {
		if _, err := e.requireEntity(ctx, scope, domain.EntityRoom, in.RoomID); err != nil {
			return nil, err
		}
	}

	ev, err := e.repo.CreateEvent(ctx, scope, domain.EventInput{
		ClientID:  in.ClientID,
		Title:     strings.TrimSpace(in.Title),
		StartDate: start,
		EndDate:   end,
		RoomID:    in.RoomID,
		Status:    in.Status,
		Notes:     in.Notes,
	})
	if err != nil {
		return nil, &domain.RepositoryError{Op: "create event", Err: err}
	}
	return &domain.MutationResult{
		Success: true,
		Record:  ev,
		Message: fmt.Sprintf("Evento %q creado para el %s (estado %s).", ev.Title, e.format.DateTime(ev.StartDate), ev.Status),
	}, nil
}

func (e *MutationExecutor) updateEvent(ctx context.Context, input json.RawMessage, rc domain.RequestContext) (*domain.MutationResult, error) {
	in, err := decodeInput[UpdateEventInput](input)
	if err != nil {
		return nil, err
	}
	scope := rc.Scope()
	rec, err := e.requireEntity(ctx, scope, domain.EntityEvent, in.EventID)
	if err != nil {
		return nil, err
	}
	current := rec.(*domain.Event)

	patch := domain.EventPatch{
		ClientID: in.ClientID,
		Title:    in.Title,
		RoomID:   in.RoomID,
		Status:   in.Status,
		Notes:    in.Notes,
	}
	start := current.StartDate
	if in.StartDate != nil {
		if start, err = parseDateTime(*in.StartDate); err != nil {
			return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "startDate", Message: err.Error()}}}
		}
		patch.StartDate = &start
	}
	end := current.EndDate
	if in.EndDate != nil {
		t, err := parseDateTime(*in.EndDate)
		if err != nil {
			return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "endDate", Message: err.Error()}}}
		}
		end, patch.EndDate = &t, &t
	}
	if end != nil && !end.After(start) {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "endDate", Message: "must be after startDate"}}}
	}

	if in.ClientID != nil {
		if _, err := e.requireEntity(ctx, scope, domain.EntityClient, *in.ClientID); err != nil {
			return nil, err
		}
	}
	if in.RoomID != nil && *in.RoomID != "" {
		if _, err := e.requireEntity(ctx, scope, domain.EntityRoom, *in.RoomID); err != nil {
			return nil, err
		}
	}

	ev, err := e.repo.UpdateEvent(ctx, scope, in.EventID, patch)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update event", Err: err}
	}
	return &domain.MutationResult{
		Success: true,
		Record:  ev,
		Message: fmt.Sprintf("Evento %q actualizado correctamente.", ev.Title),
	}, nil
}

// maxQuoteNumberAttempts bounds retries when a concurrent write took the
// number we computed.
const maxQuoteNumberAttempts = 3

func (e *MutationExecutor) createQuote(ctx context.Context, input json.RawMessage, rc domain.RequestContext) (*domain.MutationResult, error) {
	in, err := decodeInput[CreateQuoteInput](input)
	if err != nil {
		return nil, err
	}
	validUntil, err := optionalDate(in.ValidUntil)
	if err != nil {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "validUntil", Message: err.Error()}}}
	}

	scope := rc.Scope()
	if _, err := e.requireEntity(ctx, scope, domain.EntityClient, in.ClientID); err != nil {
		return nil, err
	}

	var q *domain.Quote
	for attempt := 1; ; attempt++ {
		number, err := e.nextQuoteNumber(ctx, scope)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "next quote number", Err: err}
		}
		q, err = e.repo.CreateQuote(ctx, scope, domain.QuoteInput{
			ClientID:   in.ClientID,
			Number:     number,
			Total:      in.Total,
			ValidUntil: validUntil,
			Status:     in.Status,
			Notes:      in.Notes,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicate) || attempt == maxQuoteNumberAttempts {
			return nil, &domain.RepositoryError{Op: "create quote", Err: err}
		}
	}
	return &domain.MutationResult{
		Success: true,
		Record:  q,
		Message: fmt.Sprintf("Cotización %s creada por %s.", q.Number, e.formatMoney(q.Total)),
	}, nil
}

func (e *MutationExecutor) updateQuote(ctx context.Context, input json.RawMessage, rc domain.RequestContext) (*domain.MutationResult, error) {
	in, err := decodeInput[UpdateQuoteInput](input)
	if err != nil {
		return nil, err
	}
	patch := domain.QuotePatch{
		ClientID: in.ClientID,
		Total:    in.Total,
		Status:   in.Status,
		Notes:    in.Notes,
	}
	if in.ValidUntil != nil {
		t, err := parseDateTime(*in.ValidUntil)
		if err != nil {
			return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "validUntil", Message: err.Error()}}}
		}
		patch.ValidUntil = &t
	}

	scope := rc.Scope()
	if _, err := e.requireEntity(ctx, scope, domain.EntityQuote, in.QuoteID); err != nil {
		return nil, err
	}
	if in.ClientID != nil {
		if _, err := e.requireEntity(ctx, scope, domain.EntityClient, *in.ClientID); err != nil {
			return nil, err
		}
	}

	q, err := e.repo.UpdateQuote(ctx, scope, in.QuoteID, patch)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "update quote", Err: err}
	}
	return &domain.MutationResult{
		Success: true,
		Record:  q,
		Message: fmt.Sprintf("Cotización %s actualizada correctamente.", q.Number),
	}, nil
}

// nextQuoteNumber returns PREFIX-YEAR-NNN one past the tenant's latest
// number for the current year.
func (e *MutationExecutor) nextQuoteNumber(ctx context.Context, scope domain.Scope) (string, error) {
	base := fmt.Sprintf("%s-%d-", e.quotePrefix, e.now().Year())
	latest, err := e.repo.LatestQuoteNumber(ctx, scope, base)
	if err != nil {
		return "", err
	}
	seq := 0
	if latest != "" {
		if n, err := strconv.Atoi(strings.TrimPrefix(latest, base)); err == nil {
			seq = n
		}
	}
	return fmt.Sprintf("%s%03d", base, seq+1), nil
}
