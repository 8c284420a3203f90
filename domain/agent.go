package domain

import (
	"context"
	"time"
)

// UserMessageProvider is an interface that provides user messages.
// It abstracts the source of user input so the chat loop can read from the
// console or from a test double.
type UserMessageProvider interface {
	GetUserMessage() (string, bool)
}

// RequestContext identifies who is asking. TenantID is required.
type RequestContext struct {
	TenantID           string
	BusinessIdentityID string
	UserRole           string
}

// Scope derives the repository predicate for the request.
func (rc RequestContext) Scope() Scope {
	return Scope{TenantID: rc.TenantID, BusinessIdentityID: rc.BusinessIdentityID}
}

// QueryResult is the outcome of one processed query.
type QueryResult struct {
	Query     string           `json:"query"`
	Intent    IntentDescriptor `json:"intent"`
	Results   any              `json:"results,omitempty"`
	Response  string           `json:"response"`
	Timestamp time.Time        `json:"timestamp"`
}

// QueryProcessor answers a natural-language query for a tenant.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query string, rc RequestContext) (*QueryResult, error)
}
