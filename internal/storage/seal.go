package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// Argon2id parameters for the sealing key.
const (
	sealTime        = 3
	sealMemory      = 64 * 1024
	sealParallelism = 4
	sealKeyLen      = 32
	sealSaltLen     = 32

	sealedPrefix = "sealed:"
)

// Sealing errors.
var (
	ErrWrongPassphrase = errors.New("wrong storage passphrase")
	ErrSealed          = errors.New("secret is sealed and no passphrase was given")
)

// sealer encrypts order secrets at rest with AES-256-GCM.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(passphrase, salt []byte) (*sealer, error) {
	key := argon2.IDKey(passphrase, salt, sealTime, sealMemory, sealParallelism, sealKeyLen)
	defer helpers.SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal returns "sealed:<hex(nonce || ciphertext)>". The order hash is bound
// as additional data so a sealed secret cannot be moved to another row.
func (s *sealer) seal(plaintext, ad []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, ad)
	return sealedPrefix + helpers.BytesToHex(out), nil
}

func (s *sealer) open(value string, ad []byte) ([]byte, error) {
	raw, err := helpers.HexToBytes(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed value: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, errors.New("sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

func isSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
