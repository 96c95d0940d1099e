// Package validate accumulates field-level validation errors so a document
// can be checked in one pass and every problem reported with its field path.
package validate

import (
	"fmt"
	"math"
	"strings"
)

// Error represents a single validation failure.
type Error struct {
	Field   string `json:"field"`           // Dotted field path, e.g. "data.n_ones_in"
	Value   any    `json:"value,omitempty"` // The offending value, if any
	Message string `json:"message"`         // Human-readable error message

	cause error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel this error was recorded with, if any.
func (e Error) Unwrap() error {
	return e.cause
}

// Validator accumulates validation errors and can produce a ValidationError when invalid.
type Validator struct {
	errors []Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []Error
}

// New creates a new validator.
func New() *Validator {
	return &Validator{
		errors: make([]Error, 0),
	}
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// AddCause adds a validation error that wraps a sentinel, so callers can
// match it with errors.Is on the aggregated error.
func (v *Validator) AddCause(field, message string, value any, cause error) {
	v.errors = append(v.errors, Error{
		Field:   field,
		Value:   value,
		Message: message,
		cause:   cause,
	})
}

// Merge appends the errors of another validator, prefixing each field path.
func (v *Validator) Merge(prefix string, other *Validator) {
	for _, e := range other.errors {
		if prefix != "" {
			e.Field = prefix + "." + e.Field
		}
		v.errors = append(v.errors, e)
	}
}

// IsValid returns true if no errors have been accumulated.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated validation errors.
func (v *Validator) Errors() []Error {
	return v.errors
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}

	copied := make([]Error, len(v.errors))
	copy(copied, v.errors)

	return ValidationError{errors: copied}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []Error {
	return e.errors
}

// Unwrap exposes the sentinel causes of the individual errors.
func (e ValidationError) Unwrap() []error {
	var causes []error
	for _, err := range e.errors {
		if err.cause != nil {
			causes = append(causes, err.cause)
		}
	}
	return causes
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}

	if len(e.errors) == 1 {
		return "validation failed: " + e.errors[0].Error()
	}

	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed (%d errors): %s", len(e.errors), strings.Join(msgs, "; "))
}

// Finite rejects NaN and infinities. It reports whether the value was finite.
func (v *Validator) Finite(field string, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		v.AddError(field, "must be a finite number", value)
		return false
	}
	return true
}

// NonNegative validates value >= 0.
func (v *Validator) NonNegative(field string, value float64) {
	if !v.Finite(field, value) {
		return
	}
	if value < 0 {
		v.AddError(field, fmt.Sprintf("must be >= 0, got %g", value), value)
	}
}

// NonNegativeInt validates value >= 0.
func (v *Validator) NonNegativeInt(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("must be >= 0, got %d", value), value)
	}
}

// Positive validates value > 0.
func (v *Validator) Positive(field string, value float64) {
	if !v.Finite(field, value) {
		return
	}
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("must be > 0, got %g", value), value)
	}
}

// PositiveInt validates value >= 1.
func (v *Validator) PositiveInt(field string, value int) {
	if value < 1 {
		v.AddError(field, fmt.Sprintf("must be a positive integer, got %d", value), value)
	}
}

// Probability validates that value lies in [0, 1].
func (v *Validator) Probability(field string, value float64) {
	if !v.Finite(field, value) {
		return
	}
	if value < 0 || value > 1 {
		v.AddError(field, fmt.Sprintf("must be between 0 and 1, got %g", value), value)
	}
}

// AtMost validates value <= limit, naming the limiting field in the message.
func (v *Validator) AtMost(field string, value int, limitField string, limit int) {
	if value > limit {
		v.AddError(field, fmt.Sprintf("must be <= %s (%d), got %d", limitField, limit, value), value)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "cannot be empty", value)
	}
}
