package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmbeddingUnavailable wraps every embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrNotFound is returned by repository lookups outside the scope.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("duplicate")
	// ErrMissingTenant means a request reached the core without a tenant.
	ErrMissingTenant = errors.New("tenant id is required")
)

// ClassificationError reports an unusable classifier answer.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return "classification failed: " + e.Reason
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// UnsupportedOperationError is returned for unknown mutation functions.
type UnsupportedOperationError struct {
	Name string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q", e.Name)
}

// FieldError is one argument violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a set of arguments.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field has at least one violation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ReferenceError is returned when a referenced entity is not visible in
// the tenant.
type ReferenceError struct {
	Entity EntityType
	ID     string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q not found", strings.ToLower(string(e.Entity)), e.ID)
}

func (e *ReferenceError) Unwrap() error { return ErrNotFound }

// RepositoryError wraps a failed repository write.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }
