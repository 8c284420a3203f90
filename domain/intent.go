package domain

// IntentType is the operation kind of a classified query.
type IntentType string

const (
	IntentCount    IntentType = "count"
	IntentGet      IntentType = "get"
	IntentList     IntentType = "list"
	IntentSearch   IntentType = "search"
	IntentMutation IntentType = "mutation"
	IntentGeneral  IntentType = "general"
)

// Valid reports whether t is one of the known intent types.
func (t IntentType) Valid() bool {
	switch t {
	case IntentCount, IntentGet, IntentList, IntentSearch, IntentMutation, IntentGeneral:
		return true
	}
	return false
}

const (
	ActionGetFirst = "getFirst"
	ActionGetLast  = "getLast"
)

// DefaultIntentConfidence is the confidence assigned to the fallback intent.
const DefaultIntentConfidence = 0.5

// IntentParams carries the free-text query and structured filters.
type IntentParams struct {
	Query   string         `json:"query,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
}

// IntentDescriptor is the structured classification of one query. It is
// produced per request and never cached.
type IntentDescriptor struct {
	Type       IntentType   `json:"type"`
	Entity     EntityType   `json:"entity,omitempty"`
	Action     string       `json:"action,omitempty"`
	Params     IntentParams `json:"params"`
	Confidence float64      `json:"confidence"`
}

// DefaultIntent is used whenever classification fails.
func DefaultIntent(query string) IntentDescriptor {
	return IntentDescriptor{
		Type:       IntentGeneral,
		Params:     IntentParams{Query: query},
		Confidence: DefaultIntentConfidence,
	}
}
