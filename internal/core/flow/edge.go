// Package flow provides edge definitions
package flow

// Edge connects an output port on one node to an input port on another.
// PRINCIPLES:
// - KISS: plain value type, four fields
// - SRP: only responsible for edge data
type Edge struct {
	SourceNode string `json:"source_node"`
	SourcePort string `json:"source_port"`
	TargetNode string `json:"target_node"`
	TargetPort string `json:"target_port"`
}

// Validate ensures edge integrity.
func (e Edge) Validate() error {
	if e.SourceNode == "" || e.SourcePort == "" || e.TargetNode == "" || e.TargetPort == "" {
		return ErrInvalidEdge
	}
	if e.SourceNode == e.TargetNode {
		return ErrSelfLoop
	}
	return nil
}
