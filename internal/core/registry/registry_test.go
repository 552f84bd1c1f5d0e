package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
)

func echoDescriptor(typeName string) *Descriptor {
	return &Descriptor{
		Type:     typeName,
		Category: "test",
		Ports: []port.Schema{
			{ID: "in", Direction: port.DirectionInput, Type: port.TypeSpec{Kind: port.KindString}, Required: true},
			{ID: "out", Direction: port.DirectionOutput, Type: port.TypeSpec{Kind: port.KindString}},
		},
		Exec: func(ctx context.Context, ec ExecContext, in map[string]port.Value) (map[string]port.Value, error) {
			return map[string]port.Value{"out": in["in"]}, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(echoDescriptor("test.echo")))

	t.Run("duplicate type rejected", func(t *testing.T) {
		err := r.Register(echoDescriptor("test.echo"))
		assert.ErrorIs(t, err, ErrDuplicateType)
	})

	t.Run("invalid descriptors rejected", func(t *testing.T) {
		assert.ErrorIs(t, r.Register(nil), ErrNilDescriptor)
		assert.ErrorIs(t, r.Register(&Descriptor{}), ErrInvalidType)
		assert.ErrorIs(t, r.Register(&Descriptor{Type: "test.noexec"}), ErrNilExec)

		d := echoDescriptor("test.dupport")
		d.Ports = append(d.Ports, d.Ports[0])
		assert.ErrorIs(t, r.Register(d), ErrDuplicatePort)
	})
}

func TestRegistry_Get(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoDescriptor("test.echo")))

	d, err := r.Get("test.echo")
	require.NoError(t, err)
	assert.Equal(t, "test.echo", d.Type)
	assert.Len(t, d.Inputs(), 1)
	assert.Len(t, d.Outputs(), 1)

	_, err = r.Get("test.unknown")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_TypesOrderAndClear(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(echoDescriptor("test.b")))
	require.NoError(t, r.Register(echoDescriptor("test.a")))

	assert.Equal(t, []string{"test.b", "test.a"}, r.Types())

	r.Clear()
	assert.Empty(t, r.Types())
	_, err := r.Get("test.b")
	assert.ErrorIs(t, err, ErrUnknownType)
}
