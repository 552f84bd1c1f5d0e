// Package registry defines domain-specific errors
package registry

import "errors"

// Domain errors - defined once, used everywhere
var (
	ErrNilDescriptor = errors.New("descriptor cannot be nil")
	ErrInvalidType   = errors.New("invalid node type name")
	ErrNilExec       = errors.New("function node requires an exec function")
	ErrDuplicatePort = errors.New("duplicate port ID on descriptor")
	ErrDuplicateType = errors.New("node type already registered")
	ErrUnknownType   = errors.New("node type not registered")
)
