// Package registry provides the catalog of executable node types.
// Node types are declared as data-only descriptors through an explicit
// registration call; there is no reflective discovery and no package-level
// singleton. Callers construct a Registry at boot and pass it by reference.
// PRINCIPLES:
// - KISS: a guarded map from type name to descriptor
// - SRP: only responsible for the catalog, not graph structure or execution
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
)

// NodeKind distinguishes directly executable nodes from nested sub-graphs.
type NodeKind string

const (
	// NodeKindFunction marks a node executed through its ExecFunc
	NodeKindFunction NodeKind = "function"
	// NodeKindSubgraph marks a node that executes a nested flow graph
	NodeKindSubgraph NodeKind = "subgraph"
)

// ExecContext carries per-run execution facilities into a node.
type ExecContext struct {
	ExecutionID string
	NodeID      string
	Principal   string
	Decryptor   port.Decryptor
	Logger      *slog.Logger
}

// ExecFunc is the node execution contract: validated input port values in,
// output port values or an error out. Implementations must observe ctx
// cancellation during long operations. A node executes at most once per run.
type ExecFunc func(ctx context.Context, ec ExecContext, in map[string]port.Value) (map[string]port.Value, error)

// Descriptor declares an executable node type: a globally unique type name,
// a category for palette grouping, the ordered port schemas, and the
// execution function. Immutable once registered.
type Descriptor struct {
	Type     string
	Category string
	Ports    []port.Schema
	Kind     NodeKind
	Exec     ExecFunc
}

// Validate ensures descriptor integrity before registration.
func (d *Descriptor) Validate() error {
	if d == nil {
		return ErrNilDescriptor
	}
	if d.Type == "" {
		return ErrInvalidType
	}
	if d.Kind == "" {
		d.Kind = NodeKindFunction
	}
	if d.Kind == NodeKindFunction && d.Exec == nil {
		return ErrNilExec
	}
	seen := make(map[string]bool, len(d.Ports))
	for _, p := range d.Ports {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.ID] {
			return ErrDuplicatePort
		}
		seen[p.ID] = true
	}
	return nil
}

// Port returns the schema for the given port ID, if declared.
func (d *Descriptor) Port(id string) (port.Schema, bool) {
	for _, p := range d.Ports {
		if p.ID == id {
			return p, true
		}
	}
	return port.Schema{}, false
}

// Inputs returns the declared input schemas in declaration order.
func (d *Descriptor) Inputs() []port.Schema {
	var in []port.Schema
	for _, p := range d.Ports {
		if p.Direction == port.DirectionInput {
			in = append(in, p)
		}
	}
	return in
}

// Outputs returns the declared output schemas in declaration order.
func (d *Descriptor) Outputs() []port.Schema {
	var out []port.Schema
	for _, p := range d.Ports {
		if p.Direction == port.DirectionOutput {
			out = append(out, p)
		}
	}
	return out
}

// Registry is a read-mostly catalog of node descriptors, safe for concurrent
// use after boot.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]*Descriptor
	order  []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byType: make(map[string]*Descriptor)}
}

// Register adds a descriptor to the catalog. Type names are globally unique;
// a collision fails with ErrDuplicateType.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byType[d.Type]; exists {
		return ErrDuplicateType
	}
	r.byType[d.Type] = d
	r.order = append(r.order, d.Type)
	return nil
}

// Get returns the descriptor for a type name, failing with ErrUnknownType
// when unregistered.
func (r *Registry) Get(typeName string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[typeName]
	if !ok {
		return nil, ErrUnknownType
	}
	return d, nil
}

// Types returns all registered type names in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Clear empties the catalog. It exists only for isolated test setup and is
// never called during normal operation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = make(map[string]*Descriptor)
	r.order = nil
}
