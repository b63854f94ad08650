package domain

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input at the boundary (bad accrual
// window, unknown role). Never stored, never reaches the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError signals an unknown deal, document, entity or snapshot.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFoundError builds a NotFoundError for the given resource and id.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ParseFailure signals that the external parser rejected a document. The
// document status becomes failed and is terminal; a new ingestion must be
// submitted.
type ParseFailure struct {
	DocumentID string
	Reason     string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failed for document %s: %s", e.DocumentID, e.Reason)
}

// IsParseFailure reports whether err wraps a ParseFailure.
func IsParseFailure(err error) bool {
	var pf *ParseFailure
	return errors.As(err, &pf)
}

// ErrConcurrencyConflict is returned when two writers race past the per-deal
// exclusion scope. With the keyed-lock serialization in the service layer
// this should not happen; it exists so storage backends with optimistic
// concurrency can surface the losing writer.
var ErrConcurrencyConflict = errors.New("concurrent modification of deal state")
