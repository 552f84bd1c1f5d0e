package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
)

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := NewWithRandomKey()
	require.NoError(t, err)
	v.Grant("svc-worker")
	ctx := context.Background()

	tests := []struct {
		name      string
		plaintext port.Value
	}{
		{"string", port.String("hunter2")},
		{"number", port.Number(42.5)},
		{"boolean", port.Bool(true)},
		{"object", port.Object(map[string]port.Value{"token": port.String("abc")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret, err := v.Encrypt(ctx, tt.plaintext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext.Kind, secret.Payload)
			assert.NotEmpty(t, secret.Ciphertext)

			got, err := v.Decrypt(ctx, secret, "svc-worker")
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestDecryptAuthorization(t *testing.T) {
	v, err := NewWithRandomKey()
	require.NoError(t, err)
	v.Grant("alice")
	ctx := context.Background()

	secret, err := v.Encrypt(ctx, port.String("s3cret"))
	require.NoError(t, err)

	// no principal
	_, err = v.Decrypt(ctx, secret, "")
	assert.ErrorIs(t, err, port.ErrUnauthorized)

	// ungranted principal
	_, err = v.Decrypt(ctx, secret, "mallory")
	assert.ErrorIs(t, err, port.ErrUnauthorized)

	// granted principal
	got, err := v.Decrypt(ctx, secret, "alice")
	require.NoError(t, err)
	assert.Equal(t, port.String("s3cret"), got)

	// revoked principal
	v.Revoke("alice")
	_, err = v.Decrypt(ctx, secret, "alice")
	assert.ErrorIs(t, err, port.ErrUnauthorized)
}

func TestDecryptNilSecret(t *testing.T) {
	v, err := NewWithRandomKey()
	require.NoError(t, err)
	v.Grant("alice")

	_, err = v.Decrypt(context.Background(), nil, "alice")
	assert.ErrorIs(t, err, port.ErrNilSecret)
}

func TestEncryptRejectsInvalidPlaintext(t *testing.T) {
	v, err := NewWithRandomKey()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = v.Encrypt(ctx, port.Value{})
	assert.ErrorIs(t, err, port.ErrNoValue)

	inner, err := v.Encrypt(ctx, port.String("x"))
	require.NoError(t, err)
	_, err = v.Encrypt(ctx, port.SecretValue(inner))
	assert.ErrorIs(t, err, port.ErrInvalidValue)
}

func TestDecryptWrongVaultKeyFails(t *testing.T) {
	a, err := NewWithRandomKey()
	require.NoError(t, err)
	b, err := NewWithRandomKey()
	require.NoError(t, err)
	a.Grant("alice")
	b.Grant("alice")
	ctx := context.Background()

	secret, err := a.Encrypt(ctx, port.String("s3cret"))
	require.NoError(t, err)

	_, err = b.Decrypt(ctx, secret, "alice")
	assert.Error(t, err)
}
