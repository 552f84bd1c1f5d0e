// Package chaingraph provides the public façade for submitting and observing
// flow executions without importing internal packages. It re-exports the
// request/response types and exposes a Runtime wired with the built-in node
// catalog and an in-memory event store, suitable for embedding and tests.
package chaingraph

import (
	"context"
	"log/slog"

	"github.com/chaingraphlabs/chaingraph/internal/adapters/eventlog/memory"
	"github.com/chaingraphlabs/chaingraph/internal/app/dto"
	"github.com/chaingraphlabs/chaingraph/internal/app/usecases"
	"github.com/chaingraphlabs/chaingraph/internal/core/event"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
	"github.com/chaingraphlabs/chaingraph/internal/core/run"
	"github.com/chaingraphlabs/chaingraph/pkg/prebuilt"
)

// Re-exported request/response and value types for embedders.
type (
	SubmitRequest  = dto.SubmitRequest
	SubmitResponse = dto.SubmitResponse
	StatusResponse = dto.StatusResponse
	NodeSpec       = dto.NodeSpec
	EdgeSpec       = dto.EdgeSpec
	PortOverride   = dto.PortOverride
	DebugConfig    = dto.DebugConfig
	Value          = port.Value
	Event          = event.Event
	Subscription   = event.Subscription
	Snapshot       = run.Snapshot
	State          = run.State
	Descriptor     = registry.Descriptor
)

// Terminal and in-flight execution states.
const (
	StateRunning   = run.StateRunning
	StatePaused    = run.StatePaused
	StateCompleted = run.StateCompleted
	StateFailed    = run.StateFailed
	StateCancelled = run.StateCancelled
)

// Options configures an embedded runtime. The zero value is usable.
type Options struct {
	// Store overrides the default in-memory event store.
	Store event.Store
	// Decryptor enables secret ports; nil disables them.
	Decryptor port.Decryptor
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Extra descriptors registered alongside the built-in catalog.
	Extra []*registry.Descriptor
}

// Runtime is an embedded execution engine with the built-in node catalog.
type Runtime struct {
	engine   *usecases.Engine
	registry *registry.Registry
}

// NewRuntime builds a runtime from the given options.
func NewRuntime(opts Options) (*Runtime, error) {
	reg := registry.New()
	if err := prebuilt.Register(reg); err != nil {
		return nil, err
	}
	for _, d := range opts.Extra {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		store = memory.Default()
	}

	engine := usecases.NewEngine(reg, usecases.EngineConfig{
		Store:     store,
		Decryptor: opts.Decryptor,
		Logger:    opts.Logger,
	})
	return &Runtime{engine: engine, registry: reg}, nil
}

// NodeTypes lists the registered node type names in registration order.
func (rt *Runtime) NodeTypes() []string { return rt.registry.Types() }

// Submit validates and starts an execution.
func (rt *Runtime) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	return rt.engine.Submit(ctx, req)
}

// Subscribe attaches to an execution's event stream, replaying everything
// after lastSeen before going live.
func (rt *Runtime) Subscribe(ctx context.Context, executionID string, lastSeen uint64) (*Subscription, error) {
	return rt.engine.Subscribe(ctx, executionID, lastSeen)
}

// Status returns a point-in-time snapshot of one execution.
func (rt *Runtime) Status(executionID string) (*StatusResponse, error) {
	return rt.engine.Status(executionID)
}

// List snapshots all known executions.
func (rt *Runtime) List() []Snapshot { return rt.engine.List() }

// Wait blocks until the execution reaches a terminal state or ctx expires.
func (rt *Runtime) Wait(ctx context.Context, executionID string) error {
	return rt.engine.Wait(ctx, executionID)
}

// Debug control.

func (rt *Runtime) Pause(executionID string) error    { return rt.engine.Pause(executionID) }
func (rt *Runtime) Resume(executionID string) error   { return rt.engine.Resume(executionID) }
func (rt *Runtime) StepOver(executionID string) error { return rt.engine.StepOver(executionID) }
func (rt *Runtime) StepInto(executionID string) error { return rt.engine.StepInto(executionID) }
func (rt *Runtime) StepOut(executionID string) error  { return rt.engine.StepOut(executionID) }
func (rt *Runtime) Cancel(executionID string) error   { return rt.engine.Cancel(executionID) }

// Prune drops a terminal execution and its retained events.
func (rt *Runtime) Prune(ctx context.Context, executionID string) error {
	return rt.engine.Prune(ctx, executionID)
}

// Run submits a request, waits for the terminal event, and returns the final
// snapshot. Convenience for embedders that do not stream events.
func (rt *Runtime) Run(ctx context.Context, req *SubmitRequest) (*StatusResponse, error) {
	resp, err := rt.engine.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := rt.engine.Wait(ctx, resp.ExecutionID); err != nil {
		return nil, err
	}
	return rt.engine.Status(resp.ExecutionID)
}
