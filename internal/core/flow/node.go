// Package flow provides node instance definitions
package flow

import (
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
)

// Status represents the execution state of a node instance.
type Status string

const (
	// StatusPending means not all required inputs are bound yet
	StatusPending Status = "pending"
	// StatusReady means every required input is bound
	StatusReady Status = "ready"
	// StatusRunning means the node is executing
	StatusRunning Status = "running"
	// StatusCompleted means the node finished and produced outputs
	StatusCompleted Status = "completed"
	// StatusFailed means the node execution returned an error
	StatusFailed Status = "failed"
	// StatusSkipped means the node was never run (failed ancestor or cancel)
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is a settled end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// PortRef addresses one port on one node.
type PortRef struct {
	Node string `json:"node"`
	Port string `json:"port"`
}

// SubgraphSpec describes a nested flow graph embedded in a node:
// the inner graph plus the mapping from the node's own ports onto
// inner node ports.
type SubgraphSpec struct {
	Graph   *Graph
	Inputs  map[string]PortRef
	Outputs map[string]PortRef
}

// NodeInstance is a vertex in a flow graph: a descriptor reference, the
// currently bound port values, and the execution status. Port values are
// mutated only by the scheduler of the run that owns the graph snapshot,
// or by propagation from an upstream edge.
type NodeInstance struct {
	ID         string
	Type       string
	Descriptor *registry.Descriptor
	Values     map[string]port.Value
	Status     Status
	Subgraph   *SubgraphSpec

	// schemas is the instance's view of the descriptor ports, carrying any
	// runtime extensions made on mutable ports between runs.
	schemas map[string]port.Schema
}

// NewNode creates a node instance of a registered type with schema defaults
// applied to its input values. Fails with registry.ErrUnknownType when the
// type is not in the catalog.
func NewNode(r *registry.Registry, typeName, id string) (*NodeInstance, error) {
	if id == "" {
		return nil, ErrInvalidNodeID
	}
	d, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	return newInstance(id, d, nil)
}

// NewSubgraphNode creates a node instance that executes a nested graph.
// The ports are declared per instance; input and output mappings must
// reference ports declared on the inner graph's nodes.
func NewSubgraphNode(id string, ports []port.Schema, spec *SubgraphSpec) (*NodeInstance, error) {
	if id == "" {
		return nil, ErrInvalidNodeID
	}
	if spec == nil || spec.Graph == nil {
		return nil, ErrInvalidSubgraph
	}
	d := &registry.Descriptor{
		Type:     "core.subgraph",
		Category: "core",
		Ports:    ports,
		Kind:     registry.NodeKindSubgraph,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	for portID, ref := range spec.Inputs {
		if _, ok := d.Port(portID); !ok {
			return nil, ErrInvalidSubgraph
		}
		if _, err := spec.Graph.PortSchema(ref.Node, ref.Port); err != nil {
			return nil, ErrInvalidSubgraph
		}
	}
	for portID, ref := range spec.Outputs {
		if _, ok := d.Port(portID); !ok {
			return nil, ErrInvalidSubgraph
		}
		if _, err := spec.Graph.PortSchema(ref.Node, ref.Port); err != nil {
			return nil, ErrInvalidSubgraph
		}
	}
	n, err := newInstance(id, d, spec)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func newInstance(id string, d *registry.Descriptor, spec *SubgraphSpec) (*NodeInstance, error) {
	n := &NodeInstance{
		ID:         id,
		Type:       d.Type,
		Descriptor: d,
		Values:     make(map[string]port.Value),
		Status:     StatusPending,
		Subgraph:   spec,
		schemas:    make(map[string]port.Schema, len(d.Ports)),
	}
	for _, p := range d.Ports {
		n.schemas[p.ID] = p
		if p.Direction == port.DirectionInput && p.Default != nil {
			n.Values[p.ID] = *p.Default
		}
	}
	return n, nil
}

// Validate ensures node instance integrity.
func (n *NodeInstance) Validate() error {
	if n == nil {
		return ErrNilNode
	}
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if n.Descriptor == nil {
		return ErrMissingDescriptor
	}
	if n.Descriptor.Kind == registry.NodeKindSubgraph && (n.Subgraph == nil || n.Subgraph.Graph == nil) {
		return ErrInvalidSubgraph
	}
	return nil
}

// PortSchema returns the instance schema for a port, including any runtime
// extensions on mutable ports.
func (n *NodeInstance) PortSchema(id string) (port.Schema, bool) {
	s, ok := n.schemas[id]
	return s, ok
}

// Bind validates v against the declared input schema and stores it.
func (n *NodeInstance) Bind(portID string, v port.Value) error {
	s, ok := n.schemas[portID]
	if !ok {
		return ErrUnknownPort
	}
	if s.Direction != port.DirectionInput {
		return ErrPortDirection
	}
	validated, err := port.Validate(s, v)
	if err != nil {
		return err
	}
	n.Values[portID] = validated
	return nil
}

// extendPort adds a child schema to a mutable object port. Called through
// Graph.ExtendPort so the run lock is honored.
func (n *NodeInstance) extendPort(portID string, child port.Schema) error {
	s, ok := n.schemas[portID]
	if !ok {
		return ErrUnknownPort
	}
	if s.Type.Kind != port.KindObject || !s.Type.Mutable {
		return ErrPortNotMutable
	}
	if err := child.Validate(); err != nil {
		return err
	}
	for _, f := range s.Type.Fields {
		if f.ID == child.ID {
			return registry.ErrDuplicatePort
		}
	}
	fields := make([]port.Schema, len(s.Type.Fields), len(s.Type.Fields)+1)
	copy(fields, s.Type.Fields)
	s.Type.Fields = append(fields, child)
	n.schemas[portID] = s
	return nil
}

// clone deep-copies the instance for an independent run snapshot.
func (n *NodeInstance) clone() *NodeInstance {
	c := &NodeInstance{
		ID:         n.ID,
		Type:       n.Type,
		Descriptor: n.Descriptor,
		Values:     make(map[string]port.Value, len(n.Values)),
		Status:     n.Status,
		schemas:    make(map[string]port.Schema, len(n.schemas)),
	}
	for k, v := range n.Values {
		c.Values[k] = v
	}
	for k, s := range n.schemas {
		c.schemas[k] = s
	}
	if n.Subgraph != nil {
		c.Subgraph = &SubgraphSpec{
			Graph:   n.Subgraph.Graph.Clone(),
			Inputs:  n.Subgraph.Inputs,
			Outputs: n.Subgraph.Outputs,
		}
	}
	return c
}
