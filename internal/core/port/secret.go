// Package port provides secret value handling
package port

import "context"

// Secret holds an opaque ciphertext together with the kind of its plaintext.
// The engine never inspects the ciphertext; decryption is delegated to an
// external vault through the Decryptor boundary.
type Secret struct {
	Ciphertext []byte `json:"ciphertext"`
	Payload    Kind   `json:"payload"`
}

// Decryptor is the secret-vault boundary. Decrypt recovers the plaintext
// value of a secret on behalf of the given principal and fails with
// ErrUnauthorized when no principal is supplied.
// PRINCIPLES:
// - ISP: single-method interface
// - DIP: core domain depends on the boundary, not a vault implementation
type Decryptor interface {
	Decrypt(ctx context.Context, secret *Secret, principal string) (Value, error)
}
