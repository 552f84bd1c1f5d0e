// Package run defines domain-specific errors
package run

import "errors"

// Domain errors - defined once, used everywhere
var (
	// ErrInvalidRunState rejects a control command the current run state
	// does not accept (e.g. stepOver while not paused).
	ErrInvalidRunState = errors.New("run state does not accept this command")

	// ErrRunNotStarted rejects operations that need a started run.
	ErrRunNotStarted = errors.New("run has not been started")

	// ErrAlreadyStarted rejects a second Start on the same run.
	ErrAlreadyStarted = errors.New("run already started")

	// ErrStructural rejects a submission whose graph failed validation;
	// the run never starts.
	ErrStructural = errors.New("graph failed structural validation")

	// ErrInternal marks a scheduler invariant violation. It is fatal for
	// the run and reported distinctly from node execution errors so
	// clients can tell "your node failed" from "the engine is broken".
	ErrInternal = errors.New("scheduler invariant violation")

	// ErrNodeTimeout marks a node execution that exceeded the configured
	// per-node timeout; treated identically to an execution failure.
	ErrNodeTimeout = errors.New("node execution timed out")

	// ErrMissingOutput marks a node that completed without producing a
	// value required by one of its outgoing edges.
	ErrMissingOutput = errors.New("node produced no value for connected output port")
)
