package dto

import (
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/run"
	"github.com/chaingraphlabs/chaingraph/pkg/validation"
)

// SubmitRequest describes one execution submission: a graph snapshot by
// reference to registered node types, literal input overrides, scheduler
// limits, and an optional debug configuration.
type SubmitRequest struct {
	GraphID   string         `json:"graph_id" validate:"required,min=1,max=200"`
	GraphName string         `json:"graph_name,omitempty" validate:"omitempty,max=200"`
	Nodes     []NodeSpec     `json:"nodes" validate:"required,min=1,dive"`
	Edges     []EdgeSpec     `json:"edges" validate:"dive"`
	Overrides []PortOverride `json:"overrides,omitempty" validate:"dive"`

	MaxConcurrent int           `json:"max_concurrent,omitempty" validate:"omitempty,min=1,max=1024"`
	NodeTimeout   time.Duration `json:"node_timeout,omitempty" validate:"omitempty,min=0"`
	Principal     string        `json:"principal,omitempty"`
	Debug         *DebugConfig  `json:"debug,omitempty"`
}

// NodeSpec instantiates one registered node type, optionally pre-binding
// literal input values.
type NodeSpec struct {
	ID     string                `json:"id" validate:"required,node_id"`
	Type   string                `json:"type" validate:"required,min=1,max=200"`
	Inputs map[string]port.Value `json:"inputs,omitempty"`
}

// EdgeSpec connects a source output port to a target input port.
type EdgeSpec struct {
	SourceNode string `json:"source_node" validate:"required,node_id"`
	SourcePort string `json:"source_port" validate:"required,port_id"`
	TargetNode string `json:"target_node" validate:"required,node_id"`
	TargetPort string `json:"target_port" validate:"required,port_id"`
}

// PortOverride rebinds one input port after node instantiation; it wins
// over NodeSpec.Inputs.
type PortOverride struct {
	NodeID string     `json:"node_id" validate:"required,node_id"`
	PortID string     `json:"port_id" validate:"required,port_id"`
	Value  port.Value `json:"value"`
}

// DebugConfig enables interactive debugging for the run.
type DebugConfig struct {
	Breakpoints []string `json:"breakpoints,omitempty" validate:"dive,node_id"`
	InitialStep string   `json:"initial_step,omitempty" validate:"omitempty,step_mode"`
}

// SubmitResponse reports the accepted execution.
type SubmitResponse struct {
	ExecutionID string    `json:"execution_id"`
	State       run.State `json:"state"`
}

// StatusResponse is a point-in-time view of one execution.
type StatusResponse struct {
	run.Snapshot
}

// Validate checks the request's field-level constraints.
func (r *SubmitRequest) Validate() error {
	if len(r.Nodes) == 0 {
		return ErrMissingNodes
	}
	return validation.ValidateRequest(r)
}
