// Package repository provides the business entity stores the agent reads
// and writes through domain.Repository.
package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crm-ai-agent/domain"
)

// MemoryRepository keeps entities in process. It is used by tests and by
// the CLI when no database is configured.
type MemoryRepository struct {
	mu          sync.RWMutex
	clients     map[string]*domain.Client
	events      map[string]*domain.Event
	quotes      map[string]*domain.Quote
	rooms       map[string]*domain.Room
	products    map[string]*domain.Product
	uniqueEmail bool
	now         func() time.Time
}

// Option configures a MemoryRepository.
type Option func(*MemoryRepository)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *MemoryRepository) { r.now = now }
}

// WithUniqueClientEmail makes client emails unique per tenant.
func WithUniqueClientEmail(unique bool) Option {
	return func(r *MemoryRepository) { r.uniqueEmail = unique }
}

func NewMemoryRepository(opts ...Option) *MemoryRepository {
	r := &MemoryRepository{
		clients:  make(map[string]*domain.Client),
		events:   make(map[string]*domain.Event),
		quotes:   make(map[string]*domain.Quote),
		rooms:    make(map[string]*domain.Room),
		products: make(map[string]*domain.Product),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// snapshot copies every visible record of one type.
func (r *MemoryRepository) snapshot(scope domain.Scope, entity domain.EntityType) ([]domain.Record, error) {
	var out []domain.Record
	switch entity {
	case domain.EntityClient:
		for _, c := range r.clients {
			cp := *c
			out = append(out, &cp)
		}
	case domain.EntityEvent:
		for _, e := range r.events {
			cp := *e
			out = append(out, &cp)
		}
	case domain.EntityQuote:
		for _, q := range r.quotes {
			cp := *q
			out = append(out, &cp)
		}
	case domain.EntityRoom:
		for _, rm := range r.rooms {
			cp := *rm
			out = append(out, &cp)
		}
	case domain.EntityProduct:
		for _, p := range r.products {
			cp := *p
			out = append(out, &cp)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported entity %q", errUnsupportedEntity, entity)
	}
	return slices.DeleteFunc(out, func(rec domain.Record) bool { return !scope.Allows(rec) }), nil
}

func (r *MemoryRepository) Count(ctx context.Context, scope domain.Scope, entity domain.EntityType) (int, error) {
	if scope.TenantID == "" {
		return 0, domain.ErrMissingTenant
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs, err := r.snapshot(scope, entity)
	return len(recs), err
}

func (r *MemoryRepository) List(ctx context.Context, scope domain.Scope, q domain.ListQuery) ([]domain.Record, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.RLock()
	recs, err := r.snapshot(scope, q.Entity)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if needle := domain.Fold(strings.TrimSpace(q.Text)); needle != "" {
		recs = slices.DeleteFunc(recs, func(rec domain.Record) bool {
			for _, field := range searchableFields(rec) {
				if strings.Contains(domain.Fold(field), needle) {
					return false
				}
			}
			return true
		})
	}

	slices.SortStableFunc(recs, func(a, b domain.Record) int {
		c := cmp.Compare(sortKey(a, q).UnixNano(), sortKey(b, q).UnixNano())
		if c == 0 {
			c = cmp.Compare(a.RecordID(), b.RecordID())
		}
		if q.Order == domain.NewestFirst {
			return -c
		}
		return c
	})

	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	return recs, nil
}

func (r *MemoryRepository) Get(ctx context.Context, scope domain.Scope, entity domain.EntityType, id string) (domain.Record, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rec domain.Record
	switch entity {
	case domain.EntityClient:
		if c, ok := r.clients[id]; ok {
			cp := *c
			rec = &cp
		}
	case domain.EntityEvent:
		if e, ok := r.events[id]; ok {
			cp := *e
			rec = &cp
		}
	case domain.EntityQuote:
		if q, ok := r.quotes[id]; ok {
			cp := *q
			rec = &cp
		}
	case domain.EntityRoom:
		if rm, ok := r.rooms[id]; ok {
			cp := *rm
			rec = &cp
		}
	case domain.EntityProduct:
		if p, ok := r.products[id]; ok {
			cp := *p
			rec = &cp
		}
	default:
		return nil, fmt.Errorf("%w: unsupported entity %q", errUnsupportedEntity, entity)
	}
	if rec == nil || !scope.Allows(rec) {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) LatestQuoteNumber(ctx context.Context, scope domain.Scope, prefix string) (string, error) {
	if scope.TenantID == "" {
		return "", domain.ErrMissingTenant
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := ""
	for _, q := range r.quotes {
		if q.TenantID != scope.TenantID || !strings.HasPrefix(q.Number, prefix) {
			continue
		}
		if compareQuoteNumbers(q.Number, latest) > 0 {
			latest = q.Number
		}
	}
	return latest, nil
}

func (r *MemoryRepository) emailTaken(tenantID, email, exceptID string) bool {
	if !r.uniqueEmail || email == "" {
		return false
	}
	for _, c := range r.clients {
		if c.TenantID == tenantID && c.ID != exceptID && strings.EqualFold(c.Email, email) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) CreateClient(ctx context.Context, scope domain.Scope, in domain.ClientInput) (*domain.Client, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTaken(scope.TenantID, in.Email, "") {
		return nil, fmt.Errorf("client email %q: %w", in.Email, domain.ErrDuplicate)
	}
	now := r.now()
	c := &domain.Client{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		Type:               cmp.Or(in.Type, "GENERAL"),
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.clients[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) UpdateClient(ctx context.Context, scope domain.Scope, id string, p domain.ClientPatch) (*domain.Client, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok || !scope.Allows(c) {
		return nil, domain.ErrNotFound
	}
	if p.Email != nil && r.emailTaken(scope.TenantID, *p.Email, id) {
		return nil, fmt.Errorf("client email %q: %w", *p.Email, domain.ErrDuplicate)
	}
	setIf(&c.Name, p.Name)
	setIf(&c.Email, p.Email)
	setIf(&c.Phone, p.Phone)
	setIf(&c.Type, p.Type)
	setIf(&c.Notes, p.Notes)
	c.UpdatedAt = r.now()
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) CreateEvent(ctx context.Context, scope domain.Scope, in domain.EventInput) (*domain.Event, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e := &domain.Event{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		ClientID:           in.ClientID,
		RoomID:             in.RoomID,
		Title:              in.Title,
		Status:             cmp.Or(in.Status, "RESERVED"),
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.events[e.ID] = e
	cp := *e
	return &cp, nil
}

func (r *MemoryRepository) UpdateEvent(ctx context.Context, scope domain.Scope, id string, p domain.EventPatch) (*domain.Event, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok || !scope.Allows(e) {
		return nil, domain.ErrNotFound
	}
	setIf(&e.ClientID, p.ClientID)
	setIf(&e.Title, p.Title)
	setIf(&e.RoomID, p.RoomID)
	setIf(&e.Status, p.Status)
	setIf(&e.Notes, p.Notes)
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		end := *p.EndDate
		e.EndDate = &end
	}
	e.UpdatedAt = r.now()
	cp := *e
	return &cp, nil
}

func (r *MemoryRepository) CreateQuote(ctx context.Context, scope domain.Scope, in domain.QuoteInput) (*domain.Quote, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, q := range r.quotes {
		if q.TenantID == scope.TenantID && q.Number == in.Number {
			return nil, fmt.Errorf("quote number %q: %w", in.Number, domain.ErrDuplicate)
		}
	}
	now := r.now()
	q := &domain.Quote{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		ClientID:           in.ClientID,
		Number:             in.Number,
		Status:             cmp.Or(in.Status, "DRAFT"),
		Total:              in.Total,
		ValidUntil:         in.ValidUntil,
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.quotes[q.ID] = q
	cp := *q
	return &cp, nil
}

func (r *MemoryRepository) UpdateQuote(ctx context.Context, scope domain.Scope, id string, p domain.QuotePatch) (*domain.Quote, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotes[id]
	if !ok || !scope.Allows(q) {
		return nil, domain.ErrNotFound
	}
	setIf(&q.ClientID, p.ClientID)
	setIf(&q.Status, p.Status)
	setIf(&q.Notes, p.Notes)
	if p.Total != nil {
		q.Total = *p.Total
	}
	if p.ValidUntil != nil {
		v := *p.ValidUntil
		q.ValidUntil = &v
	}
	q.UpdatedAt = r.now()
	cp := *q
	return &cp, nil
}

// CreateRoom adds a bookable room. Rooms are not mutated by the agent.
func (r *MemoryRepository) CreateRoom(ctx context.Context, scope domain.Scope, name string, capacity int) (*domain.Room, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := &domain.Room{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Name:               name,
		Capacity:           capacity,
		CreatedAt:          r.now(),
	}
	r.rooms[rm.ID] = rm
	cp := *rm
	return &cp, nil
}

// CreateProduct adds a catalogue item. Products are not mutated by the agent.
func (r *MemoryRepository) CreateProduct(ctx context.Context, scope domain.Scope, in domain.ProductInput) (*domain.Product, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p := &domain.Product{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Name:               in.Name,
		ItemType:           cmp.Or(in.ItemType, "PRODUCT"),
		Category:           in.Category,
		Description:        in.Description,
		Unit:               cmp.Or(in.Unit, "unidad"),
		SKU:                in.SKU,
		Price:              in.Price,
		IsActive:           !in.Inactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.products[p.ID] = p
	cp := *p
	return &cp, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
