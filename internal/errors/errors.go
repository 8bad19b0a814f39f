// Package errors holds the domain error taxonomy shared by services and
// transports. Services return these; transports translate them.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateSwipe = errors.New("already swiped on this user")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrQuotaExceeded  = errors.New("daily limit reached")
	ErrValidation     = errors.New("validation error")
	ErrBanned         = errors.New("account is banned")
)

// FieldError describes a validation problem on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail for 400 responses.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field)
	}
	return fmt.Sprintf("validation: %d errors (%s)", len(e.Fields), strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid creates a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Validator accumulates field errors.
type Validator struct {
	fields []FieldError
}

// Check records message against field when ok is false.
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: message})
	}
}

// Err returns nil when every check passed.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// DeniedError is returned when the access gate refuses an action.
type DeniedError struct {
	Action string
	Reason string
}

func (e *DeniedError) Error() string { return e.Action + ": " + e.Reason }

func (e *DeniedError) Unwrap() error { return ErrForbidden }

// Denied wraps a gate refusal.
func Denied(action, reason string) error {
	return &DeniedError{Action: action, Reason: reason}
}

// Is, As and New mirror the standard library so callers importing this
// package under an alias do not also need the stdlib errors package.
func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func New(text string) error         { return errors.New(text) }
