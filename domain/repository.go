package domain

import (
	"context"
	"time"
)

// Scope is the tenant predicate every repository call applies.
type Scope struct {
	TenantID           string
	BusinessIdentityID string // Optional
}

// Allows reports whether r is visible inside the scope.
func (s Scope) Allows(r Record) bool {
	if r == nil || s.TenantID == "" || r.RecordTenant() != s.TenantID {
		return false
	}
	return s.BusinessIdentityID == "" || r.RecordBusinessIdentity() == s.BusinessIdentityID
}

// Order selects the sort direction of a list query.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// ListQuery describes a tenant-scoped list or substring search.
// Events sort by start date, everything else by creation time.
type ListQuery struct {
	Entity EntityType
	Order  Order
	Limit  int    // Non-positive means no limit
	Text   string // Accent- and case-insensitive substring over name/email/title/notes/number/description/sku
	// ByCreation forces creation-time ordering for events.
	ByCreation bool
}

// ClientInput holds the fields of a new client.
type ClientInput struct {
	Name  string
	Email string
	Phone string
	Type  string
	Notes string
}

// ClientPatch holds optional client changes; nil means unchanged.
type ClientPatch struct {
	Name  *string
	Email *string
	Phone *string
	Type  *string
	Notes *string
}

// EventInput holds the fields of a new event.
type EventInput struct {
	ClientID  string
	Title     string
	StartDate time.Time
	EndDate   *time.Time
	RoomID    string
	Status    string
	Notes     string
}

// EventPatch holds optional event changes.
type EventPatch struct {
	ClientID  *string
	Title     *string
	StartDate *time.Time
	EndDate   *time.Time
	RoomID    *string
	Status    *string
	Notes     *string
}

// QuoteInput holds the fields of a new quote. Number is assigned by the
// caller.
type QuoteInput struct {
	ClientID   string
	Number     string
	Total      float64
	ValidUntil *time.Time
	Status     string
	Notes      string
}

// QuotePatch holds optional quote changes.
type QuotePatch struct {
	ClientID   *string
	Total      *float64
	ValidUntil *time.Time
	Status     *string
	Notes      *string
}

// ProductInput holds the fields of a new catalogue item. Inactive is the
// inverse of Product.IsActive so the zero value is an active product.
type ProductInput struct {
	Name        string
	ItemType    string
	Category    string
	Description string
	Unit        string
	SKU         string
	Price       *float64
	Inactive    bool
}

// EntityReader is the read side of the entity repository.
type EntityReader interface {
	Count(ctx context.Context, scope Scope, entity EntityType) (int, error)
	List(ctx context.Context, scope Scope, q ListQuery) ([]Record, error)
	// Get returns ErrNotFound when the entity does not exist in the scope.
	Get(ctx context.Context, scope Scope, entity EntityType, id string) (Record, error)
	// LatestQuoteNumber returns the highest quote number starting with
	// prefix, or "" when there is none.
	LatestQuoteNumber(ctx context.Context, scope Scope, prefix string) (string, error)
}

// EntityWriter is the write side. Each call is a single-entity write.
type EntityWriter interface {
	CreateClient(ctx context.Context, scope Scope, in ClientInput) (*Client, error)
	UpdateClient(ctx context.Context, scope Scope, id string, patch ClientPatch) (*Client, error)
	CreateEvent(ctx context.Context, scope Scope, in EventInput) (*Event, error)
	UpdateEvent(ctx context.Context, scope Scope, id string, patch EventPatch) (*Event, error)
	CreateQuote(ctx context.Context, scope Scope, in QuoteInput) (*Quote, error)
	UpdateQuote(ctx context.Context, scope Scope, id string, patch QuotePatch) (*Quote, error)
}

// Repository is the boundary to the externally owned business entities.
type Repository interface {
	EntityReader
	EntityWriter
}
