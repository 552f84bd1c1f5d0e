// Package flow provides the directed graph of node instances connected by
// port-to-port edges, with eager structural validation and deterministic
// topological ordering.
// PRINCIPLES:
// - KISS: maps plus an insertion-order slice, no adjacency matrix
// - SRP: only responsible for graph structure, not execution
package flow

import (
	"fmt"
	"sync"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
)

// StructuralError describes one structural defect found during validation.
// It unwraps to a package sentinel error for errors.Is branching.
type StructuralError struct {
	NodeID string
	PortID string
	Err    error
	Detail string
}

func (e StructuralError) Error() string {
	msg := fmt.Sprintf("node %q", e.NodeID)
	if e.PortID != "" {
		msg += fmt.Sprintf(" port %q", e.PortID)
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e StructuralError) Unwrap() error { return e.Err }

// Graph is a finite, acyclic composition of node instances and edges.
// Topology is immutable while a run holds the graph (Lock/Unlock); schema
// extensions on mutable ports are likewise only allowed between runs.
type Graph struct {
	ID   string
	Name string

	mu     sync.RWMutex
	nodes  map[string]*NodeInstance
	order  []string
	edges  []Edge
	locked bool
}

// New creates an empty graph.
func New(id, name string) *Graph {
	return &Graph{ID: id, Name: name, nodes: make(map[string]*NodeInstance)}
}

// AddNode adds a node instance. Duplicate IDs are rejected.
func (g *Graph) AddNode(n *NodeInstance) error {
	if err := n.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return ErrSchemaLocked
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrDuplicateNode
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge adds an edge after checking endpoints, port directions, type
// compatibility, and acyclicity. All checks are eager; a graph assembled
// through AddNode/AddEdge is structurally valid by construction.
func (g *Graph) AddEdge(e Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return ErrSchemaLocked
	}

	src, ok := g.nodes[e.SourceNode]
	if !ok {
		return ErrSourceNodeNotFound
	}
	dst, ok := g.nodes[e.TargetNode]
	if !ok {
		return ErrTargetNodeNotFound
	}
	srcSchema, ok := src.PortSchema(e.SourcePort)
	if !ok {
		return ErrUnknownPort
	}
	dstSchema, ok := dst.PortSchema(e.TargetPort)
	if !ok {
		return ErrUnknownPort
	}
	if srcSchema.Direction != port.DirectionOutput || dstSchema.Direction != port.DirectionInput {
		return ErrPortDirection
	}
	if !port.Compatible(srcSchema.Type, dstSchema.Type) {
		return ErrPortTypeMismatch
	}
	for _, existing := range g.edges {
		if existing == e {
			return ErrDuplicateEdge
		}
	}
	if g.reachable(e.TargetNode, e.SourceNode) {
		return ErrCycle
	}
	g.edges = append(g.edges, e)
	return nil
}

// reachable reports whether `to` can be reached from `from` along edges.
// Callers hold g.mu.
func (g *Graph) reachable(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.edges {
			if e.SourceNode != cur || seen[e.TargetNode] {
				continue
			}
			if e.TargetNode == to {
				return true
			}
			seen[e.TargetNode] = true
			stack = append(stack, e.TargetNode)
		}
	}
	return false
}

// ExtendPort declares a new child schema on a mutable object port. Fails
// with ErrSchemaLocked while a run holds the graph.
func (g *Graph) ExtendPort(nodeID, portID string, child port.Schema) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return ErrSchemaLocked
	}
	n, ok := g.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	return n.extendPort(portID, child)
}

// Lock marks the graph as held by a run. Fails when already held.
func (g *Graph) Lock() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return ErrGraphLocked
	}
	g.locked = true
	return nil
}

// Unlock releases the run hold.
func (g *Graph) Unlock() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.locked {
		return ErrGraphNotLocked
	}
	g.locked = false
	return nil
}

// Node returns a node instance by ID.
func (g *Graph) Node(id string) (*NodeInstance, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// PortSchema resolves the schema of a port on a node.
func (g *Graph) PortSchema(nodeID, portID string) (port.Schema, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return port.Schema{}, ErrNodeNotFound
	}
	s, ok := n.PortSchema(portID)
	if !ok {
		return port.Schema{}, ErrUnknownPort
	}
	return s, nil
}

// Order returns node IDs in insertion order.
func (g *Graph) Order() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// InEdges returns all edges targeting the given node.
func (g *Graph) InEdges(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.TargetNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// OutEdges returns all edges originating from the given node.
func (g *Graph) OutEdges(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.SourceNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Validate returns the full list of structural errors without stopping at
// the first: dangling edge endpoints, port type mismatches, and required
// inputs with neither an incoming edge nor a bound value or default. It is
// intended for graphs assembled from external snapshots where the eager
// AddNode/AddEdge guards may have been bypassed.
func (g *Graph) Validate() []StructuralError {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []StructuralError

	for _, id := range g.order {
		if err := g.nodes[id].Validate(); err != nil {
			errs = append(errs, StructuralError{NodeID: id, Err: err})
		}
	}

	bound := make(map[string]map[string]bool, len(g.nodes))
	for _, e := range g.edges {
		src, ok := g.nodes[e.SourceNode]
		if !ok {
			errs = append(errs, StructuralError{NodeID: e.SourceNode, PortID: e.SourcePort, Err: ErrSourceNodeNotFound})
			continue
		}
		dst, ok := g.nodes[e.TargetNode]
		if !ok {
			errs = append(errs, StructuralError{NodeID: e.TargetNode, PortID: e.TargetPort, Err: ErrTargetNodeNotFound})
			continue
		}
		srcSchema, srcOK := src.PortSchema(e.SourcePort)
		if !srcOK {
			errs = append(errs, StructuralError{NodeID: e.SourceNode, PortID: e.SourcePort, Err: ErrUnknownPort})
			continue
		}
		dstSchema, dstOK := dst.PortSchema(e.TargetPort)
		if !dstOK {
			errs = append(errs, StructuralError{NodeID: e.TargetNode, PortID: e.TargetPort, Err: ErrUnknownPort})
			continue
		}
		if srcSchema.Direction != port.DirectionOutput || dstSchema.Direction != port.DirectionInput {
			errs = append(errs, StructuralError{NodeID: e.TargetNode, PortID: e.TargetPort, Err: ErrPortDirection})
			continue
		}
		if !port.Compatible(srcSchema.Type, dstSchema.Type) {
			errs = append(errs, StructuralError{
				NodeID: e.TargetNode, PortID: e.TargetPort, Err: ErrPortTypeMismatch,
				Detail: fmt.Sprintf("%s/%s -> %s/%s", e.SourceNode, e.SourcePort, e.TargetNode, e.TargetPort),
			})
			continue
		}
		if bound[e.TargetNode] == nil {
			bound[e.TargetNode] = make(map[string]bool)
		}
		bound[e.TargetNode][e.TargetPort] = true
	}

	for _, id := range g.order {
		n := g.nodes[id]
		if n.Descriptor == nil {
			continue
		}
		for _, p := range n.Descriptor.Inputs() {
			if !p.Required {
				continue
			}
			schema, _ := n.PortSchema(p.ID)
			if schema.Default != nil {
				continue
			}
			if _, ok := n.Values[p.ID]; ok {
				continue
			}
			if bound[id][p.ID] {
				continue
			}
			errs = append(errs, StructuralError{NodeID: id, PortID: p.ID, Err: ErrUnmetRequiredInput})
		}
	}

	if _, err := g.topologicalOrder(); err != nil {
		errs = append(errs, StructuralError{Err: ErrCycle})
	}

	return errs
}

// TopologicalOrder yields a deterministic linearization of the graph: each
// edge's source precedes its target, and ties among simultaneously ready
// nodes break by ascending insertion order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topologicalOrder()
}

// topologicalOrder runs Kahn's algorithm with insertion-order tie-breaking.
// Callers hold g.mu.
func (g *Graph) topologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = 0
	}
	for _, e := range g.edges {
		if _, ok := indegree[e.TargetNode]; ok {
			indegree[e.TargetNode]++
		}
	}

	result := make([]string, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(result) < len(g.nodes) {
		progressed := false
		for _, id := range g.order {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			result = append(result, id)
			for _, e := range g.edges {
				if e.SourceNode == id {
					indegree[e.TargetNode]--
				}
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, ErrCycle
		}
	}
	return result, nil
}

// Clone deep-copies the graph into an independent snapshot. Concurrent runs
// over the same flow definition each execute against their own clone and
// share no mutable state.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := New(g.ID, g.Name)
	for _, id := range g.order {
		c.nodes[id] = g.nodes[id].clone()
		c.order = append(c.order, id)
	}
	c.edges = make([]Edge, len(g.edges))
	copy(c.edges, g.edges)
	return c
}
