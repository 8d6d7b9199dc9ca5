package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"

	"golang.org/x/crypto/argon2"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// Argon2id parameters for new seed files.
const (
	kdfTime        = 3
	kdfMemory      = 64 * 1024
	kdfParallelism = 4
	kdfKeyLen      = 32
	kdfSaltLen     = 32
)

const sealedSeedVersion = 1

// Password limits for seed files.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ErrWrongPassword is returned when a seed file fails to open.
var ErrWrongPassword = errors.New("wrong password or corrupted seed file")

// SealedSeed is a mnemonic encrypted with Argon2id and AES-256-GCM, as stored on disk.
type SealedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// aead derives the seed key for password and returns its GCM cipher.
func (s *SealedSeed) aead(password string) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), s.Salt, s.Time, s.Memory, s.Parallelism, kdfKeyLen)
	defer helpers.SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptMnemonic seals mnemonic under password.
func EncryptMnemonic(mnemonic, password string) (*SealedSeed, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	salt, err := helpers.GenerateSecureRandom(kdfSaltLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	s := &SealedSeed{
		Version:     sealedSeedVersion,
		Salt:        salt,
		Time:        kdfTime,
		Memory:      kdfMemory,
		Parallelism: kdfParallelism,
	}

	gcm, err := s.aead(password)
	if err != nil {
		return nil, err
	}
	if s.Nonce, err = helpers.GenerateSecureRandom(gcm.NonceSize()); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	s.Ciphertext = gcm.Seal(nil, s.Nonce, []byte(mnemonic), nil)
	return s, nil
}

// DecryptMnemonic opens a sealed seed.
func DecryptMnemonic(s *SealedSeed, password string) (string, error) {
	if s.Version != sealedSeedVersion {
		return "", fmt.Errorf("unsupported seed file version %d", s.Version)
	}
	if s.Time == 0 || s.Memory == 0 || s.Parallelism == 0 {
		return "", fmt.Errorf("seed file is missing key derivation parameters")
	}

	gcm, err := s.aead(password)
	if err != nil {
		return "", err
	}
	if len(s.Nonce) != gcm.NonceSize() {
		return "", ErrWrongPassword
	}
	plaintext, err := gcm.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	defer helpers.SecureClear(plaintext)

	return string(plaintext), nil
}

// SaveEncryptedSeed writes s to path with owner-only permissions.
func SaveEncryptedSeed(s *SealedSeed, path string) error {
	if path == "" {
		return fmt.Errorf("seed file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal seed file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write seed file: %w", err)
	}
	return nil
}

// LoadEncryptedSeed reads a seed file written by SaveEncryptedSeed.
func LoadEncryptedSeed(path string) (*SealedSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s SealedSeed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &s, nil
}

// ValidatePassword requires MinPasswordLength characters drawn from at least
// three of upper case, lower case, digits and symbols.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	classes := make(map[string]bool, 4)
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			classes["upper"] = true
		case unicode.IsLower(r):
			classes["lower"] = true
		case unicode.IsNumber(r):
			classes["digit"] = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			classes["symbol"] = true
		}
	}
	if len(classes) < 3 {
		return fmt.Errorf("password must mix at least 3 of upper case, lower case, digits and symbols")
	}
	return nil
}

// ValidateAccountIndex rejects account indexes outside the hardened range.
func ValidateAccountIndex(index uint32) error {
	const maxAccount = 1<<31 - 1
	if index > maxAccount {
		return fmt.Errorf("account index %d exceeds maximum %d", index, maxAccount)
	}
	return nil
}

// ValidateAddressIndex bounds the address index.
func ValidateAddressIndex(index uint32) error {
	const maxIndex = 100000
	if index > maxIndex {
		return fmt.Errorf("address index %d exceeds maximum %d", index, maxIndex)
	}
	return nil
}
