// Package vault provides an AES-256-GCM secret vault implementing the
// port.Decryptor boundary. Plaintexts are port values serialized through
// the standard pipeline; principals must be explicitly granted.
package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/chaingraphlabs/chaingraph/internal/core/port"
	"github.com/chaingraphlabs/chaingraph/pkg/serialization"
)

// ErrInvalidKey means the vault key is not 32 bytes.
var ErrInvalidKey = errors.New("vault key must be 32 bytes")

// Vault encrypts and decrypts secret port values with a single AES-256 key.
// PRINCIPLES:
// - DIP: implements port.Decryptor; the engine never sees the key
type Vault struct {
	serializer *serialization.Serializer

	mu         sync.RWMutex
	principals map[string]struct{}
}

// New creates a vault from a 32-byte AES-256 key.
func New(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	return &Vault{
		serializer: serialization.New(serialization.Config{
			Codec:      serialization.NewJSONCodec(),
			EncryptKey: key,
		}),
		principals: make(map[string]struct{}),
	}, nil
}

// NewWithRandomKey creates a vault with a generated key; useful for tests
// and single-process deployments where secrets never outlive the engine.
func NewWithRandomKey() (*Vault, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate vault key: %w", err)
	}
	return New(key)
}

// Grant allows a principal to decrypt.
func (v *Vault) Grant(principal string) {
	if principal == "" {
		return
	}
	v.mu.Lock()
	v.principals[principal] = struct{}{}
	v.mu.Unlock()
}

// Revoke removes a principal's grant.
func (v *Vault) Revoke(principal string) {
	v.mu.Lock()
	delete(v.principals, principal)
	v.mu.Unlock()
}

func (v *Vault) authorized(principal string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.principals[principal]
	return ok
}

// Encrypt seals a plaintext value into a secret carrying the plaintext's
// kind. Secrets must wrap non-secret values.
func (v *Vault) Encrypt(ctx context.Context, plaintext port.Value) (*port.Secret, error) {
	if !plaintext.Bound() {
		return nil, port.ErrNoValue
	}
	if plaintext.Kind == port.KindSecret {
		return nil, port.ErrInvalidValue
	}
	data, err := v.serializer.Serialize(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret: %w", err)
	}
	return &port.Secret{Ciphertext: data, Payload: plaintext.Kind}, nil
}

// Decrypt recovers the plaintext value of a secret for a granted principal.
// An empty or ungranted principal fails with port.ErrUnauthorized; a
// payload kind mismatch fails with port.ErrTypeMismatch.
func (v *Vault) Decrypt(ctx context.Context, secret *port.Secret, principal string) (port.Value, error) {
	if secret == nil {
		return port.Value{}, port.ErrNilSecret
	}
	if principal == "" || !v.authorized(principal) {
		return port.Value{}, port.ErrUnauthorized
	}

	var plaintext port.Value
	if err := v.serializer.Deserialize(secret.Ciphertext, &plaintext); err != nil {
		return port.Value{}, fmt.Errorf("failed to open secret: %w", err)
	}
	if plaintext.Kind != secret.Payload {
		return port.Value{}, &port.TypeError{Want: secret.Payload, Got: plaintext.Kind, Err: port.ErrTypeMismatch}
	}
	return plaintext, nil
}
