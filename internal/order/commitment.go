package order

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// SecretSize is the length of an HTLC preimage.
const SecretSize = 32

// Secret is an HTLC preimage. It formats as redacted so it never ends up in logs.
type Secret [SecretSize]byte

// String implements fmt.Stringer.
func (s Secret) String() string {
	return "[redacted]"
}

// Hex returns the 0x-prefixed hex encoding of the secret.
func (s Secret) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// IsZero returns true for the all-zero secret.
func (s Secret) IsZero() bool {
	return s == Secret{}
}

// ParseSecret decodes a 32-byte hex secret.
func ParseSecret(s string) (Secret, error) {
	b, err := helpers.HexToBytes32(s)
	if err != nil {
		return Secret{}, fmt.Errorf("invalid secret: %w", err)
	}
	return Secret(b), nil
}

// Commitment is a freshly generated secret and its hash lock.
type Commitment struct {
	Secret   Secret
	HashLock common.Hash
}

// NewCommitment draws a secret from crypto/rand and computes its hash lock.
func NewCommitment() (Commitment, error) {
	b, err := helpers.GenerateSecureRandom(SecretSize)
	if err != nil {
		return Commitment{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	defer helpers.SecureClear(b)

	var secret Secret
	copy(secret[:], b)
	return Commitment{Secret: secret, HashLock: HashSecret(secret)}, nil
}

// HashSecret returns SHA-256(secret), the value both escrows are keyed on.
func HashSecret(secret Secret) common.Hash {
	return sha256.Sum256(secret[:])
}

// VerifySecret checks a preimage against a hash lock in constant time.
func VerifySecret(secret Secret, hashLock common.Hash) bool {
	h := HashSecret(secret)
	return helpers.ConstantTimeCompare(h[:], hashLock[:])
}
