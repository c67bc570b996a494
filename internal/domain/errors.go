package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError aggregates per-field coercion failures so a client sees
// every invalid field at once instead of only the first one.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func NewValidationError() *ValidationError {
	return &ValidationError{Errors: make(map[string]string)}
}

// Add records a failure for a field. Only the first message per field is kept.
func (e *ValidationError) Add(field, message string) {
	if _, ok := e.Errors[field]; !ok {
		e.Errors[field] = message
	}
}

// Addf records a formatted failure for a field.
func (e *ValidationError) Addf(field, format string, args ...any) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Errors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError is returned when the expected version supplied by a client
// does not match the persisted version. Current carries the persisted state
// so the client can re-read before retrying.
type ConflictError struct {
	Resource        string
	ExpectedVersion int
	CurrentVersion  int
	Current         Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, current is %d",
		e.Resource, e.ExpectedVersion, e.CurrentVersion)
}

// NotFoundError is returned when an identifier, or a version of an
// identifier, does not resolve to an existing record.
type NotFoundError struct {
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Ref)
}

// MalformedRequestError is returned when an identifier or key combination is
// structurally invalid, e.g. an identifier kind the route does not support.
type MalformedRequestError struct {
	Message string
}

func (e *MalformedRequestError) Error() string {
	return e.Message
}

func malformedf(format string, args ...any) *MalformedRequestError {
	return &MalformedRequestError{Message: fmt.Sprintf(format, args...)}
}
