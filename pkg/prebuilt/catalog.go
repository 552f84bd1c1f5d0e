// Package prebuilt provides the built-in node type catalog: constants,
// small transforms, and flow-control helpers used by the façade runtime,
// the CLI demo, and tests. Register installs them into a registry.
package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/internal/core/registry"
)

// ErrNoDecryptor means a secret-revealing node ran without a vault wired.
var ErrNoDecryptor = errors.New("no decryptor configured for this run")

func numberIn(id string, required bool) port.Schema {
	return port.Schema{ID: id, Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindNumber}, Required: required}
}

func numberOut(id string) port.Schema {
	return port.Schema{ID: id, Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindNumber}}
}

func stringIn(id string, required bool) port.Schema {
	return port.Schema{ID: id, Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindString}, Required: required}
}

func stringOut(id string) port.Schema {
	return port.Schema{ID: id, Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindString}}
}

// passthrough builds the Exec of a constant node: the bound input is the
// node's output.
func passthrough(inID, outID string) registry.ExecFunc {
	return func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
		return map[string]port.Value{outID: in[inID]}, nil
	}
}

// Catalog returns the built-in node descriptors.
func Catalog() []*registry.Descriptor {
	defaultDelay := port.Number(10)
	failMessage := port.String("deliberate failure")

	return []*registry.Descriptor{
		{
			Type:     "core.constant.number",
			Category: "core",
			Ports:    []port.Schema{numberIn("value", true), numberOut("out")},
			Exec:     passthrough("value", "out"),
		},
		{
			Type:     "core.constant.string",
			Category: "core",
			Ports:    []port.Schema{stringIn("value", true), stringOut("out")},
			Exec:     passthrough("value", "out"),
		},
		{
			Type:     "core.constant.boolean",
			Category: "core",
			Ports: []port.Schema{
				{ID: "value", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindBool}, Required: true},
				{ID: "out", Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindBool}},
			},
			Exec: passthrough("value", "out"),
		},
		{
			Type:     "core.constant.array",
			Category: "core",
			Ports: []port.Schema{
				{ID: "value", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindArray}, Required: true},
				{ID: "out", Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindArray}},
			},
			Exec: passthrough("value", "out"),
		},
		{
			Type:     "array.length",
			Category: "array",
			Ports: []port.Schema{
				{ID: "items", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindArray}, Required: true},
				numberOut("length"),
			},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				return map[string]port.Value{"length": port.Number(float64(len(in["items"].Array)))}, nil
			},
		},
		{
			Type:     "string.concat",
			Category: "string",
			Ports:    []port.Schema{stringIn("left", true), stringIn("right", true), stringOut("out")},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				return map[string]port.Value{"out": port.String(in["left"].Str + in["right"].Str)}, nil
			},
		},
		{
			Type:     "math.sum",
			Category: "math",
			Ports:    []port.Schema{numberIn("a", true), numberIn("b", true), numberOut("out")},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				return map[string]port.Value{"out": port.Number(in["a"].Number + in["b"].Number)}, nil
			},
		},
		{
			Type:     "bool.not",
			Category: "bool",
			Ports: []port.Schema{
				{ID: "value", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindBool}, Required: true},
				{ID: "out", Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindBool}},
			},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				return map[string]port.Value{"out": port.Bool(!in["value"].Bool)}, nil
			},
		},
		{
			Type:     "object.pick.string",
			Category: "object",
			Ports: []port.Schema{
				{ID: "source", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindObject, Mutable: true}, Required: true},
				stringIn("key", true),
				stringOut("out"),
			},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				key := in["key"].Str
				field, ok := in["source"].Object[key]
				if !ok {
					return nil, fmt.Errorf("%w: field %q", port.ErrMissingField, key)
				}
				if field.Kind != port.KindString {
					return nil, &port.TypeError{Port: "source", Path: "." + key, Want: port.KindString, Got: field.Kind, Err: port.ErrTypeMismatch}
				}
				return map[string]port.Value{"out": field}, nil
			},
		},
		{
			Type:     "flow.delay",
			Category: "flow",
			Ports: []port.Schema{
				numberIn("value", true),
				{ID: "millis", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindNumber}, Default: &defaultDelay},
				numberOut("out"),
			},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				d := time.Duration(in["millis"].Number) * time.Millisecond
				select {
				case <-time.After(d):
					return map[string]port.Value{"out": in["value"]}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
		{
			Type:     "flow.fail",
			Category: "flow",
			Ports: []port.Schema{
				{ID: "message", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindString}, Default: &failMessage},
				numberOut("out"),
			},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				return nil, errors.New(in["message"].Str)
			},
		},
		{
			Type:     "secret.reveal",
			Category: "secret",
			Ports: []port.Schema{
				{ID: "secret", Direction: port.DirectionInput,
					Type: port.TypeSpec{Kind: port.KindSecret, Payload: port.KindString}, Required: true},
				stringOut("out"),
			},
			Exec: func(ctx context.Context, ec registry.ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
				if ec.Decryptor == nil {
					return nil, ErrNoDecryptor
				}
				plaintext, err := ec.Decryptor.Decrypt(ctx, in["secret"].Secret, ec.Principal)
				if err != nil {
					return nil, err
				}
				return map[string]port.Value{"out": plaintext}, nil
			},
		},
	}
}

// Register installs the built-in catalog into a registry.
func Register(reg *registry.Registry) error {
	for _, d := range Catalog() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("prebuilt %q: %w", d.Type, err)
		}
	}
	return nil
}
