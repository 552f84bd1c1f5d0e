// Package event provides event log persistence interfaces
package event

import (
	"context"
)

// Store persists execution event logs within a retention window.
// PRINCIPLES:
// - ISP: interface segregation with ≤5 methods
// - DIP: core domain depends on the interface, not implementations
type Store interface {
	// Append persists one event. Events arrive with strictly increasing
	// sequence numbers per execution and are never rewritten.
	Append(ctx context.Context, ev Event) error

	// Replay returns all retained events of an execution with sequence
	// numbers greater than afterSeq, in ascending order.
	Replay(ctx context.Context, executionID string, afterSeq uint64) ([]Event, error)

	// LastSeq returns the highest retained sequence number of an
	// execution, or 0 when none are retained.
	LastSeq(ctx context.Context, executionID string) (uint64, error)

	// Prune drops all retained events of an execution.
	Prune(ctx context.Context, executionID string) error
}
