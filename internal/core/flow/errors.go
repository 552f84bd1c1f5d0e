// Package flow defines domain-specific errors
package flow

import "errors"

// Domain errors - defined once, used everywhere
var (
	// Node errors
	ErrNilNode           = errors.New("node cannot be nil")
	ErrInvalidNodeID     = errors.New("invalid node ID")
	ErrMissingDescriptor = errors.New("node has no descriptor")
	ErrDuplicateNode     = errors.New("duplicate node ID")
	ErrNodeNotFound      = errors.New("node not found")
	ErrInvalidSubgraph   = errors.New("invalid subgraph specification")

	// Edge errors
	ErrInvalidEdge        = errors.New("edge endpoints must be fully specified")
	ErrSelfLoop           = errors.New("self-loops are not allowed")
	ErrDuplicateEdge      = errors.New("duplicate edge")
	ErrSourceNodeNotFound = errors.New("source node not found")
	ErrTargetNodeNotFound = errors.New("target node not found")
	ErrUnknownPort        = errors.New("port not declared on node")
	ErrPortDirection      = errors.New("edge must connect an output port to an input port")
	ErrPortTypeMismatch   = errors.New("source and target port types are incompatible")

	// Graph errors
	ErrCycle              = errors.New("cyclic dependency detected")
	ErrSchemaLocked       = errors.New("graph is locked by a run; schema changes are only allowed between runs")
	ErrGraphLocked        = errors.New("graph is already locked by a run")
	ErrGraphNotLocked     = errors.New("graph is not locked")
	ErrPortNotMutable     = errors.New("port schema is not runtime-extendable")
	ErrUnmetRequiredInput = errors.New("required input has neither an incoming edge nor a default")
)
