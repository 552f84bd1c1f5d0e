// Package validation: structural graph validation surfaced as field errors.
package validation

import (
	"github.com/chaingraphlabs/chaingraph/internal/core/flow"
)

// ValidateGraph runs structural validation on a flow graph and converts the
// full defect list into ValidationErrors keyed by node/port location.
// Returns nil when the graph is structurally sound.
func ValidateGraph(g *flow.Graph) error {
	structural := g.Validate()
	if len(structural) == 0 {
		return nil
	}

	errs := make(ValidationErrors, 0, len(structural))
	for _, se := range structural {
		field := se.NodeID
		if se.PortID != "" {
			field += "." + se.PortID
		}
		if field == "" {
			field = "graph"
		}
		msg := se.Err.Error()
		if se.Detail != "" {
			msg += ": " + se.Detail
		}
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}
	return errs
}
