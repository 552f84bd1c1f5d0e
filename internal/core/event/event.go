// Package event provides the ordered, resumable execution event stream:
// an append-only per-execution log with strictly increasing sequence
// numbers and a publisher fanning events out to bounded subscribers.
package event

import (
	"time"
)

// Kind classifies execution events.
type Kind string

const (
	// KindNodeStarted is emitted when a node transitions to running
	KindNodeStarted Kind = "nodeStarted"
	// KindNodeCompleted is emitted when a node completes successfully
	KindNodeCompleted Kind = "nodeCompleted"
	// KindNodeFailed is emitted when a node execution errors
	KindNodeFailed Kind = "nodeFailed"
	// KindBreakpointHit is emitted when the run transitions to paused
	KindBreakpointHit Kind = "breakpointHit"
	// KindExecutionCompleted is the terminal event of a successful run
	KindExecutionCompleted Kind = "executionCompleted"
	// KindExecutionFailed is the terminal event of a failed run
	KindExecutionFailed Kind = "executionFailed"
	// KindExecutionCancelled is the terminal event of a cancelled run
	KindExecutionCancelled Kind = "executionCancelled"
	// KindSubscriberOverflow is a per-subscriber disconnect notice; it is
	// never appended to the log. Its Seq echoes the last sequence delivered
	// to that subscriber, so it can seed a fresh Subscribe directly.
	KindSubscriberOverflow Kind = "subscriberOverflow"
)

// Event is one record of an execution's append-only log. Sequence numbers
// start at 1 and are strictly increasing per execution; a record is never
// mutated once written. An event's own sequence number doubles as the
// resumption token for subscribing past it.
type Event struct {
	Seq         uint64         `json:"seq"`
	ExecutionID string         `json:"execution_id"`
	Kind        Kind           `json:"kind"`
	NodeID      string         `json:"node_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Terminal reports whether the event ends its execution's log.
func (e Event) Terminal() bool {
	switch e.Kind {
	case KindExecutionCompleted, KindExecutionFailed, KindExecutionCancelled:
		return true
	}
	return false
}
