// Package port defines domain-specific errors
package port

import "errors"

// Domain errors - defined once, used everywhere
var (
	// Value errors
	ErrTypeMismatch    = errors.New("value kind does not match port type")
	ErrNotCoercible    = errors.New("value cannot be coerced to port type")
	ErrMissingField    = errors.New("required object field missing")
	ErrUndeclaredField = errors.New("undeclared field on non-mutable object port")
	ErrInvalidValue    = errors.New("invalid port value")
	ErrNoValue         = errors.New("no value bound and no default declared")

	// Schema errors
	ErrInvalidSchemaID  = errors.New("invalid port schema ID")
	ErrInvalidDirection = errors.New("invalid port direction")
	ErrInvalidKind      = errors.New("invalid port value kind")
	ErrInvalidDefault   = errors.New("default value does not match port type")

	// Secret errors
	ErrNilSecret    = errors.New("secret value is nil")
	ErrUnauthorized = errors.New("secret decryption requires a principal")
)
