// Package wallet derives the resolver signing key from a BIP39 mnemonic or a
// raw hex private key.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tyler-smith/go-bip39"
)

// BIP44 constants for EVM keys: m/44'/60'/account'/0/index
const (
	PurposeBIP44 = 44
	CoinTypeETH  = 60
)

// ErrNoKeySource is returned by LoadKey when neither a private key nor a seed file is available.
var ErrNoKeySource = errors.New("no resolver key configured")

// Wallet manages EVM keys derived from a BIP39 seed.
type Wallet struct {
	masterKey *hdkeychain.ExtendedKey
	mu        sync.Mutex

	// account -> index -> key
	cache map[uint32]map[uint32]*Key
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic.
// The passphrase is optional (can be empty string).
func NewFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return NewFromSeed(bip39.NewSeed(mnemonic, passphrase))
}

// NewFromSeed creates a wallet from a raw 64-byte seed.
func NewFromSeed(seed []byte) (*Wallet, error) {
	// The version bytes of the params do not affect derived private keys.
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &Wallet{
		masterKey: masterKey,
		cache:     make(map[uint32]map[uint32]*Key),
	}, nil
}

// Key derives the EVM key at m/44'/60'/account'/0/index.
func (w *Wallet) Key(account, index uint32) (*Key, error) {
	if err := ValidateAccountIndex(account); err != nil {
		return nil, err
	}
	if err := ValidateAddressIndex(index); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if k := w.cache[account][index]; k != nil {
		return k, nil
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + PurposeBIP44,
		hdkeychain.HardenedKeyStart + CoinTypeETH,
		hdkeychain.HardenedKeyStart + account,
		0,
		index,
	}
	ext := w.masterKey
	for _, child := range path {
		var err error
		if ext, err = ext.Derive(child); err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", DerivationPath(account, index), err)
		}
	}

	priv, err := ext.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}

	k := &Key{priv: priv}
	if w.cache[account] == nil {
		w.cache[account] = make(map[uint32]*Key)
	}
	w.cache[account][index] = k
	return k, nil
}

// DerivationPath returns the BIP44 path string for an EVM key.
func DerivationPath(account, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/0/%d", PurposeBIP44, CoinTypeETH, account, index)
}

// Key is a secp256k1 signing key.
type Key struct {
	priv *btcec.PrivateKey
}

// FromPrivateKeyHex loads a key from a hex private key.
func FromPrivateKeyHex(s string) (*Key, error) {
	priv, err := PrivateKeyFromHex(s)
	if err != nil {
		return nil, err
	}
	return &Key{priv: priv}, nil
}

// Address returns the EVM address of the key.
func (k *Key) Address() common.Address {
	return PublicKeyToEVMAddress(k.priv.PubKey())
}

// ECDSA returns the key in crypto/ecdsa form for transaction signing.
func (k *Key) ECDSA() *ecdsa.PrivateKey {
	return k.priv.ToECDSA()
}

// PersonalSign signs message with the EIP-191 personal_sign prefix.
func (k *Key) PersonalSign(message []byte) ([]byte, error) {
	return PersonalSign(k.priv, message)
}

// KeySource describes where the resolver key comes from. PrivateKeyHex wins
// over SeedFile.
type KeySource struct {
	PrivateKeyHex string
	SeedFile      string
	Password      string
	Account       uint32
	Index         uint32
}

// LoadKey resolves the resolver key from src.
func LoadKey(src KeySource) (*Key, error) {
	if src.PrivateKeyHex != "" {
		return FromPrivateKeyHex(src.PrivateKeyHex)
	}
	if src.SeedFile == "" {
		return nil, ErrNoKeySource
	}
	if _, err := os.Stat(src.SeedFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: seed file %s does not exist", ErrNoKeySource, src.SeedFile)
	}

	encrypted, err := LoadEncryptedSeed(src.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed file: %w", err)
	}
	mnemonic, err := DecryptMnemonic(encrypted, src.Password)
	if err != nil {
		return nil, err
	}

	w, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	return w.Key(src.Account, src.Index)
}
