package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraphlabs/chaingraph/internal/core/flow"
	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
)

type submitShape struct {
	GraphID  string `json:"graph_id" validate:"required"`
	NodeID   string `json:"node_id" validate:"required,node_id"`
	PortID   string `json:"port_id" validate:"omitempty,port_id"`
	StepMode string `json:"step_mode" validate:"omitempty,step_mode"`
	Kind     string `json:"kind" validate:"omitempty,value_kind"`
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      submitShape
		wantErr bool
		field   string
	}{
		{"valid", submitShape{GraphID: "g", NodeID: "node-1", StepMode: "over", Kind: "number"}, false, ""},
		{"missing graph id", submitShape{NodeID: "node-1"}, true, "graph_id"},
		{"bad node id", submitShape{GraphID: "g", NodeID: "has space"}, true, "node_id"},
		{"bad step mode", submitShape{GraphID: "g", NodeID: "n", StepMode: "sideways"}, true, "step_mode"},
		{"bad kind", submitShape{GraphID: "g", NodeID: "n", Kind: "integer"}, true, "kind"},
		{"empty optional fields", submitShape{GraphID: "g", NodeID: "n"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.in)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			verrs, ok := err.(ValidationErrors)
			require.True(t, ok)
			require.NotEmpty(t, verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "node_id", Value: "x y", Message: "bad id"},
		{Field: "graph_id", Message: "field is required"},
	}
	msg := errs.Error()
	assert.Contains(t, msg, "node_id")
	assert.Contains(t, msg, "graph_id")

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}

func TestValidateGraph(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(&registry.Descriptor{
		Type: "test.consume",
		Ports: []port.Schema{
			{ID: "value", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindNumber}, Required: true},
		},
		Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return nil, nil
		},
	}))

	g := flow.New("g", "needs input")
	n, err := flow.NewNode(reg, "test.consume", "sink")
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))

	err = ValidateGraph(g)
	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, verrs, 1)
	assert.Equal(t, "sink.value", verrs[0].Field)

	require.NoError(t, n.Bind("value", port.Number(1)))
	assert.NoError(t, ValidateGraph(g))
}
