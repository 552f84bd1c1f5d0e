// Package usecases composes the engine's application services.
// PRINCIPLES:
// - SRP: Engine orchestrates submissions and debug control, nothing else
// - DIP: depends on the event.Store interface and the registry catalog
package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chaingraphlabs/chaingraph/internal/app/dto"
	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/internal/core/flow"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
	"github.com/chaingraphlabs/chaingraph/internal/core/run"
)

// EngineConfig holds the engine's dependencies and defaults.
type EngineConfig struct {
	// Store persists event logs; required.
	Store event.Store
	// Decryptor is handed to runs for secret ports; may be nil.
	Decryptor port.Decryptor
	// QueueSize bounds per-subscriber event queues; 0 uses the publisher
	// default.
	QueueSize int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is the application service in front of the scheduler: it turns
// submission requests into runs, fans out their event logs, and routes
// debug commands to the owning run.
type Engine struct {
	registry *registry.Registry
	cfg      EngineConfig
	logger   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*runHandle
}

type runHandle struct {
	run *run.Run
	pub *event.Publisher
}

// NewEngine creates an engine over a node type catalog.
func NewEngine(reg *registry.Registry, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		runs:     make(map[string]*runHandle),
	}
}

// Submit materializes the requested graph, validates it, and starts a run.
// Validation failures (field-level or structural) are returned before any
// event is emitted; accepted submissions are immediately Running (or Paused
// under an initial step).
func (e *Engine) Submit(ctx context.Context, req *dto.SubmitRequest) (*dto.SubmitResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	g, err := e.buildGraph(req)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	pub := event.NewPublisher(executionID, e.cfg.Store, e.cfg.QueueSize, e.logger)
	log := event.NewLog(executionID, e.cfg.Store, pub)

	cfg := run.Config{
		MaxConcurrent: req.MaxConcurrent,
		NodeTimeout:   req.NodeTimeout,
		Principal:     req.Principal,
		Decryptor:     e.cfg.Decryptor,
		Logger:        e.logger,
	}
	if req.Debug != nil {
		cfg.Debug = true
		cfg.Breakpoints = req.Debug.Breakpoints
		cfg.InitialStep = stepMode(req.Debug.InitialStep)
	}

	r := run.New(executionID, g, log, cfg)
	if err := r.Start(ctx); err != nil {
		pub.Close()
		return nil, err
	}

	e.mu.Lock()
	e.runs[executionID] = &runHandle{run: r, pub: pub}
	e.mu.Unlock()

	e.logger.Info("execution submitted",
		slog.String("execution_id", executionID),
		slog.String("graph_id", req.GraphID),
		slog.Int("nodes", len(req.Nodes)))

	return &dto.SubmitResponse{ExecutionID: executionID, State: r.State()}, nil
}

// buildGraph instantiates nodes, applies literal inputs and overrides, and
// wires edges. All construction errors surface before the run exists.
func (e *Engine) buildGraph(req *dto.SubmitRequest) (*flow.Graph, error) {
	g := flow.New(req.GraphID, req.GraphName)

	for _, spec := range req.Nodes {
		n, err := flow.NewNode(e.registry, spec.Type, spec.ID)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
		for portID, v := range spec.Inputs {
			if err := n.Bind(portID, v); err != nil {
				return nil, fmt.Errorf("node %q input %q: %w", spec.ID, portID, err)
			}
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
	}

	for _, es := range req.Edges {
		edge := flow.Edge{
			SourceNode: es.SourceNode, SourcePort: es.SourcePort,
			TargetNode: es.TargetNode, TargetPort: es.TargetPort,
		}
		if err := g.AddEdge(edge); err != nil {
			return nil, fmt.Errorf("edge %s.%s -> %s.%s: %w",
				es.SourceNode, es.SourcePort, es.TargetNode, es.TargetPort, err)
		}
	}

	for _, ov := range req.Overrides {
		n, err := g.Node(ov.NodeID)
		if err != nil {
			return nil, fmt.Errorf("%w: override targets node %q", dto.ErrInvalidOverride, ov.NodeID)
		}
		if err := n.Bind(ov.PortID, ov.Value); err != nil {
			return nil, fmt.Errorf("override %s.%s: %w", ov.NodeID, ov.PortID, err)
		}
	}

	return g, nil
}

// Subscribe attaches to an execution's event stream, replaying everything
// after lastSeen before going live.
func (e *Engine) Subscribe(ctx context.Context, executionID string, lastSeen uint64) (*event.Subscription, error) {
	h, err := e.handle(executionID)
	if err != nil {
		return nil, err
	}
	return h.pub.Subscribe(ctx, lastSeen)
}

// Status returns a point-in-time snapshot of one execution.
func (e *Engine) Status(executionID string) (*dto.StatusResponse, error) {
	h, err := e.handle(executionID)
	if err != nil {
		return nil, err
	}
	return &dto.StatusResponse{Snapshot: h.run.Snapshot()}, nil
}

// List snapshots all known executions.
func (e *Engine) List() []run.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]run.Snapshot, 0, len(e.runs))
	for _, h := range e.runs {
		out = append(out, h.run.Snapshot())
	}
	return out
}

// Debug control. Each command fails with run.ErrInvalidRunState when the
// run's current state does not accept it.

func (e *Engine) Pause(executionID string) error    { return e.control(executionID, (*run.Run).Pause) }
func (e *Engine) Resume(executionID string) error   { return e.control(executionID, (*run.Run).Resume) }
func (e *Engine) StepOver(executionID string) error { return e.control(executionID, (*run.Run).StepOver) }
func (e *Engine) StepInto(executionID string) error { return e.control(executionID, (*run.Run).StepInto) }
func (e *Engine) StepOut(executionID string) error  { return e.control(executionID, (*run.Run).StepOut) }
func (e *Engine) Cancel(executionID string) error   { return e.control(executionID, (*run.Run).Cancel) }

func (e *Engine) control(executionID string, cmd func(*run.Run) error) error {
	h, err := e.handle(executionID)
	if err != nil {
		return err
	}
	return cmd(h.run)
}

// Wait blocks until the execution reaches a terminal state or ctx expires.
func (e *Engine) Wait(ctx context.Context, executionID string) error {
	h, err := e.handle(executionID)
	if err != nil {
		return err
	}
	select {
	case <-h.run.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prune drops a terminal execution and its retained events.
func (e *Engine) Prune(ctx context.Context, executionID string) error {
	h, err := e.handle(executionID)
	if err != nil {
		return err
	}
	if !h.run.State().Terminal() {
		return run.ErrInvalidRunState
	}

	e.mu.Lock()
	delete(e.runs, executionID)
	e.mu.Unlock()

	h.pub.Close()
	return e.cfg.Store.Prune(ctx, executionID)
}

func (e *Engine) handle(executionID string) (*runHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.runs[executionID]
	if !ok {
		return nil, event.ErrExecutionNotFound
	}
	return h, nil
}

func stepMode(s string) run.StepMode {
	switch s {
	case "over":
		return run.StepOver
	case "into":
		return run.StepInto
	case "out":
		return run.StepOut
	default:
		return run.StepNone
	}
}
