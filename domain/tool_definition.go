package domain

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// MutationOperation is the kind of write a function performs.
type MutationOperation string

const (
	OperationCreate MutationOperation = "create"
	OperationUpdate MutationOperation = "update"
)

// FunctionDefinition represents a write the agent can perform.
// It includes the function's name, a description of what it does,
// the schema its arguments must satisfy, and the function to execute
// once the arguments have been validated.
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Entity      EntityType         `json:"entity"`
	Operation   MutationOperation  `json:"operation"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
	Function    func(ctx context.Context, input json.RawMessage, rc RequestContext) (*MutationResult, error)
}

// MutationResult is the outcome of a successful write.
type MutationResult struct {
	Success  bool       `json:"success"`
	Function string     `json:"function"`
	Entity   EntityType `json:"entity"`
	Record   Record     `json:"data,omitempty"`
	Message  string     `json:"message"`
}

// FunctionRepository defines the interface for interacting with mutation
// functions. It provides methods for listing, finding and executing them.
type FunctionRepository interface {
	GetAllFunctions() []FunctionDefinition

	FindFunctionByName(name string) (FunctionDefinition, bool)

	Execute(ctx context.Context, name string, rawArgs map[string]any, rc RequestContext) (*MutationResult, error)
}
