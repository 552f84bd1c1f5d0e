// Package run provides the execution scheduler: the state machine that
// drives node execution over a flow graph, propagates values along edges,
// enforces debug control, and emits the ordered event log.
//
// Per-node states: Pending -> Ready -> Running -> {Completed | Failed |
// Skipped}. Run states: Initializing -> Running -> {Completed | Failed |
// Cancelled}, with Running <-> Paused under debug control.
// PRINCIPLES:
// - single-writer-per-run: one dispatcher mutates a run's node state
// - cooperative cancellation, checked at node execution boundaries
package run

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/internal/core/flow"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	imetrics "github.com/chaingraphlabs/chaingraph/internal/infrastructure/metrics"
)

// State represents the execution state of a run.
type State string

const (
	// StateInitializing means the run has been created but not started
	StateInitializing State = "initializing"
	// StateRunning means the scheduler is driving node execution
	StateRunning State = "running"
	// StatePaused means the run stopped at a breakpoint or step boundary
	StatePaused State = "paused"
	// StateCompleted means all reachable work settled without failures
	StateCompleted State = "completed"
	// StateFailed means a node failed or the scheduler hit an invariant
	// violation, and all reachable work has settled
	StateFailed State = "failed"
	// StateCancelled means the run was cancelled before settling
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StepMode selects how execution proceeds after a resume from pause.
type StepMode string

const (
	// StepNone runs freely until the next breakpoint or terminal state
	StepNone StepMode = "none"
	// StepOver runs the paused node, pausing again before the next node
	// at the same nesting depth
	StepOver StepMode = "over"
	// StepInto pauses at the first inner node of a nested sub-graph, or
	// behaves like StepOver on a plain node
	StepInto StepMode = "into"
	// StepOut runs until control returns to the enclosing graph
	StepOut StepMode = "out"
)

const defaultMaxConcurrent = 4

// Config holds per-run scheduler configuration.
type Config struct {
	// MaxConcurrent bounds concurrently in-flight node executions.
	// Defaults to 4 when <= 0.
	MaxConcurrent int
	// NodeTimeout limits each node execution; expiry is treated
	// identically to an execution failure for that node. 0 disables.
	NodeTimeout time.Duration
	// Debug enables breakpoints and stepping.
	Debug bool
	// Breakpoints lists node IDs to pause before, in debug mode.
	Breakpoints []string
	// InitialStep pauses before the first node when set, in debug mode.
	InitialStep StepMode
	// Principal is forwarded to the secret vault on decryption.
	Principal string
	// Decryptor is the secret-vault boundary, may be nil.
	Decryptor port.Decryptor
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Snapshot is a point-in-time summary of a run.
type Snapshot struct {
	ExecutionID string      `json:"execution_id"`
	State       State       `json:"state"`
	Total       int         `json:"total"`
	Completed   int         `json:"completed"`
	Failed      int         `json:"failed"`
	Skipped     int         `json:"skipped"`
	LastSeq     uint64      `json:"last_seq"`
	PausedNode  string      `json:"paused_node,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Run executes one immutable flow graph snapshot, exclusively owning its
// node state and debug controls for the lifetime of the execution.
type Run struct {
	id     string
	graph  *flow.Graph
	log    *event.Log
	cfg    Config
	logger *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	admission chan struct{}
	done      chan struct{}

	mu              sync.Mutex
	cond            *sync.Cond
	state           State
	started         bool
	cancelRequested bool
	pauseRequested  bool
	stepMode        StepMode
	stepDepth       int
	pausedNode      string
	pausedDepth     int
	resumedNode     string
	breakpoints     map[string]struct{}
	counts          struct{ completed, failed, skipped int }
	startedAt       time.Time
	finishedAt      time.Time
}

// New creates a run over the given graph snapshot and event log. The graph
// must be an independent snapshot; the run takes exclusive ownership of its
// node state once started.
func New(id string, g *flow.Graph, log *event.Log, cfg Config) *Run {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	bps := make(map[string]struct{}, len(cfg.Breakpoints))
	for _, id := range cfg.Breakpoints {
		bps[id] = struct{}{}
	}
	r := &Run{
		id:          id,
		graph:       g,
		log:         log,
		cfg:         cfg,
		logger:      cfg.Logger.With(slog.String("execution_id", id)),
		admission:   make(chan struct{}, cfg.MaxConcurrent),
		done:        make(chan struct{}),
		state:       StateInitializing,
		breakpoints: bps,
		stepMode:    StepNone,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// ID returns the execution ID.
func (r *Run) ID() string { return r.id }

// State returns the current run state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done closes when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Snapshot returns a point-in-time status summary.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		ExecutionID: r.id,
		State:       r.state,
		Total:       r.graph.Len(),
		Completed:   r.counts.completed,
		Failed:      r.counts.failed,
		Skipped:     r.counts.skipped,
		LastSeq:     r.log.Seq(),
		StartedAt:   r.startedAt,
	}
	if r.state == StatePaused {
		s.PausedNode = r.pausedNode
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Start validates the graph, locks it for the run's lifetime, and begins
// execution in the background. Structural errors are returned immediately
// and the run never starts.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	if errs := r.graph.Validate(); len(errs) > 0 {
		return &StructuralErrors{Errs: errs}
	}
	if err := r.graph.Lock(); err != nil {
		return err
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	r.mu.Lock()
	r.state = StateRunning
	r.startedAt = time.Now().UTC()
	if r.cfg.Debug && r.cfg.InitialStep != "" && r.cfg.InitialStep != StepNone {
		r.stepMode = r.cfg.InitialStep
		r.stepDepth = 0
	}
	r.mu.Unlock()

	imetrics.IncRunsStarted()
	go r.drive()
	return nil
}

// StructuralErrors aggregates the full list of structural defects found at
// submission.
type StructuralErrors struct {
	Errs []flow.StructuralError
}

func (e *StructuralErrors) Error() string {
	if len(e.Errs) == 1 {
		return "structural validation failed: " + e.Errs[0].Error()
	}
	msg := "structural validation failed:"
	for _, err := range e.Errs {
		msg += "\n  - " + err.Error()
	}
	return msg
}

func (e *StructuralErrors) Unwrap() error { return ErrStructural }

// Pause requests a pause before the next node launch. Valid only while
// Running.
func (r *Run) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return ErrInvalidRunState
	}
	r.pauseRequested = true
	return nil
}

// Resume continues free execution from a pause.
func (r *Run) Resume() error { return r.resumeWith(StepNone) }

// StepOver runs the paused node to completion and pauses again before the
// next node at the same nesting depth.
func (r *Run) StepOver() error { return r.resumeWith(StepOver) }

// StepInto pauses at the first inner node when the paused node is a nested
// sub-graph; otherwise it behaves like StepOver.
func (r *Run) StepInto() error { return r.resumeWith(StepInto) }

// StepOut runs until control returns to the enclosing graph, then pauses.
func (r *Run) StepOut() error { return r.resumeWith(StepOut) }

func (r *Run) resumeWith(mode StepMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return ErrInvalidRunState
	}
	r.stepMode = mode
	r.stepDepth = r.pausedDepth
	r.resumedNode = r.pausedNode
	r.state = StateRunning
	r.cond.Broadcast()
	return nil
}

// Cancel requests cooperative cancellation. All pending and ready nodes
// transition to Skipped and the run ends Cancelled with exactly one
// terminal event. Valid while Running or Paused.
func (r *Run) Cancel() error {
	r.mu.Lock()
	if r.state != StateRunning && r.state != StatePaused {
		r.mu.Unlock()
		return ErrInvalidRunState
	}
	r.cancelRequested = true
	if r.state == StatePaused {
		r.state = StateRunning
	}
	r.cond.Broadcast()
	r.mu.Unlock()
	r.cancel()
	return nil
}

// setNodeStatus transitions one node and maintains top-level counts.
func (r *Run) setNodeStatus(n *flow.NodeInstance, status flow.Status, depth int) {
	n.Status = status
	if depth != 0 {
		return
	}
	r.mu.Lock()
	switch status {
	case flow.StatusCompleted:
		r.counts.completed++
	case flow.StatusFailed:
		r.counts.failed++
	case flow.StatusSkipped:
		r.counts.skipped++
	}
	r.mu.Unlock()
}
