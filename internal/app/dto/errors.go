// Package dto defines request/response shapes and their domain errors.
package dto

import "errors"

// Submission errors
var (
	ErrMissingGraph     = errors.New("graph definition is required")
	ErrMissingNodes     = errors.New("at least one node is required")
	ErrInvalidOverride  = errors.New("invalid port override")
	ErrInvalidDebug     = errors.New("invalid debug configuration")
	ErrMissingPrincipal = errors.New("principal is required for secret-bearing graphs")
)
