package domain

import (
	"strings"
	"time"
)

// EntityType identifies a kind of business entity.
type EntityType string

const (
	EntityClient  EntityType = "CLIENT"
	EntityEvent   EntityType = "EVENT"
	EntityQuote   EntityType = "QUOTE"
	EntityProduct EntityType = "PRODUCT"
	EntityRoom    EntityType = "ROOM"
)

// entityAliases maps folded singular/plural names in Spanish and English.
var entityAliases = map[string]EntityType{
	"client": EntityClient, "clients": EntityClient, "cliente": EntityClient, "clientes": EntityClient,
	"event": EntityEvent, "events": EntityEvent, "evento": EntityEvent, "eventos": EntityEvent,
	"reserva": EntityEvent, "reservas": EntityEvent,
	"quote": EntityQuote, "quotes": EntityQuote, "cotizacion": EntityQuote, "cotizaciones": EntityQuote,
	"presupuesto": EntityQuote, "presupuestos": EntityQuote,
	"product": EntityProduct, "products": EntityProduct, "producto": EntityProduct, "productos": EntityProduct,
	"room": EntityRoom, "rooms": EntityRoom, "sala": EntityRoom, "salas": EntityRoom,
}

// ParseEntityType normalizes free-form entity names ("Clientes", "client",
// "QUOTE"). The second result is false when the name is unknown.
func ParseEntityType(s string) (EntityType, bool) {
	key := strings.TrimSpace(Fold(s))
	if key == "" {
		return "", false
	}
	if et, ok := entityAliases[key]; ok {
		return et, true
	}
	switch EntityType(strings.ToUpper(key)) {
	case EntityClient, EntityEvent, EntityQuote, EntityProduct, EntityRoom:
		return EntityType(strings.ToUpper(key)), true
	}
	return "", false
}

// Record is implemented by every entity the repository returns.
type Record interface {
	RecordID() string
	RecordType() EntityType
	RecordTenant() string
	RecordBusinessIdentity() string
	Created() time.Time
}

// Client types accepted by the mutation schemas.
var ClientTypes = []string{"GENERAL", "VIP", "CORPORATE", "RECURRING"}

// Client is a customer of the tenant.
type Client struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenantId"`
	BusinessIdentityID string    `json:"businessIdentityId,omitempty"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone,omitempty"`
	Type               string    `json:"type,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (c *Client) RecordID() string               { return c.ID }
func (c *Client) RecordType() EntityType         { return EntityClient }
func (c *Client) RecordTenant() string           { return c.TenantID }
func (c *Client) RecordBusinessIdentity() string { return c.BusinessIdentityID }
func (c *Client) Created() time.Time             { return c.CreatedAt }

// Event statuses accepted by the mutation schemas.
var EventStatuses = []string{"RESERVED", "CONFIRMED", "IN_PROGRESS", "COMPLETED", "CANCELLED"}

// Event is a booking for a client, optionally in a room.
type Event struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenantId"`
	BusinessIdentityID string     `json:"businessIdentityId,omitempty"`
	ClientID           string     `json:"clientId"`
	RoomID             string     `json:"roomId,omitempty"`
	Title              string     `json:"title"`
	Status             string     `json:"status"`
	StartDate          time.Time  `json:"startDate"`
	EndDate            *time.Time `json:"endDate,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (e *Event) RecordID() string               { return e.ID }
func (e *Event) RecordType() EntityType         { return EntityEvent }
func (e *Event) RecordTenant() string           { return e.TenantID }
func (e *Event) RecordBusinessIdentity() string { return e.BusinessIdentityID }
func (e *Event) Created() time.Time             { return e.CreatedAt }

// Quote statuses accepted by the mutation schemas.
var QuoteStatuses = []string{"DRAFT", "SENT", "VIEWED", "ACCEPTED", "REJECTED", "EXPIRED"}

// Quote is a priced offer to a client.
type Quote struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenantId"`
	BusinessIdentityID string     `json:"businessIdentityId,omitempty"`
	ClientID           string     `json:"clientId"`
	Number             string     `json:"number"`
	Status             string     `json:"status"`
	Total              float64    `json:"total"`
	ValidUntil         *time.Time `json:"validUntil,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (q *Quote) RecordID() string               { return q.ID }
func (q *Quote) RecordType() EntityType         { return EntityQuote }
func (q *Quote) RecordTenant() string           { return q.TenantID }
func (q *Quote) RecordBusinessIdentity() string { return q.BusinessIdentityID }
func (q *Quote) Created() time.Time             { return q.CreatedAt }

// Room is a bookable space.
type Room struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenantId"`
	BusinessIdentityID string    `json:"businessIdentityId,omitempty"`
	Name               string    `json:"name"`
	Capacity           int       `json:"capacity,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

func (r *Room) RecordID() string               { return r.ID }
func (r *Room) RecordType() EntityType         { return EntityRoom }
func (r *Room) RecordTenant() string           { return r.TenantID }
func (r *Room) RecordBusinessIdentity() string { return r.BusinessIdentityID }
func (r *Room) Created() time.Time             { return r.CreatedAt }

// Product item types.
var ProductItemTypes = []string{"PRODUCT", "SERVICE"}

// Product is a catalogue item or service the tenant sells.
type Product struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenantId"`
	BusinessIdentityID string    `json:"businessIdentityId,omitempty"`
	Name               string    `json:"name"`
	ItemType           string    `json:"itemType"`
	Category           string    `json:"category,omitempty"`
	Description        string    `json:"description,omitempty"`
	Unit               string    `json:"unit,omitempty"`
	SKU                string    `json:"sku,omitempty"`
	Price              *float64  `json:"price,omitempty"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (p *Product) RecordID() string               { return p.ID }
func (p *Product) RecordType() EntityType         { return EntityProduct }
func (p *Product) RecordTenant() string           { return p.TenantID }
func (p *Product) RecordBusinessIdentity() string { return p.BusinessIdentityID }
func (p *Product) Created() time.Time             { return p.CreatedAt }
