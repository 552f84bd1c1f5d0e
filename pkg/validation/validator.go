// Package validation provides request and graph validation utilities.
// PRINCIPLES:
// - ISP: Validator is a single-method interface
// - DIP: callers depend on the interface, not concrete types
package validation

import (
	"fmt"
	"strings"
)

// Validator is implemented by types that can validate themselves.
type Validator interface {
	Validate() error
}

// ValidationError carries one field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates field-level failures; validation always
// reports the full list, never just the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
