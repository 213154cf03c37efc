package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrColumnExists    = errors.New("column already exists")
	ErrNotCalculated   = errors.New("column is not a calculated field")
	ErrTooManyCascades = errors.New("too many cascades in progress, please try again later")
)

// NotFoundError indicates a table or merge does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError indicates the request clashes with existing state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// wrapValidation keeps the cause reachable through errors.Is.
func wrapValidation(err error, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Err: err}
}

// HeaderMismatchError is returned for a dependent whose source headers no
// longer match the headers recorded when the dependent was built.
type HeaderMismatchError struct {
	DerivedID string   `json:"derivedId"`
	SourceID  string   `json:"sourceId"`
	Old       []string `json:"old"`
	New       []string `json:"new"`
	Removed   []string `json:"removed,omitempty"`
	Added     []string `json:"added,omitempty"`
}

func (e *HeaderMismatchError) Error() string {
	msg := fmt.Sprintf("header mismatch: table %s was built from %s with [%s], source now has [%s]",
		e.DerivedID, e.SourceID, strings.Join(e.Old, ", "), strings.Join(e.New, ", "))
	if len(e.Removed) > 0 {
		msg += fmt.Sprintf("; missing %s", strings.Join(quoteAll(e.Removed), ", "))
	}
	if len(e.Added) > 0 {
		msg += fmt.Sprintf("; unexpected %s", strings.Join(quoteAll(e.Added), ", "))
	}
	return msg
}

// CycleError is returned when a merge would make a table depend on itself.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
