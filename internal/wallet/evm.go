package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// PublicKeyToEVMAddress converts a secp256k1 public key to an EVM address:
// the last 20 bytes of Keccak256 over the uncompressed key without its 0x04 prefix.
func PublicKeyToEVMAddress(pubKey *btcec.PublicKey) common.Address {
	pubKeyBytes := pubKey.SerializeUncompressed()
	return common.BytesToAddress(Keccak256(pubKeyBytes[1:])[12:])
}

// Keccak256 computes the Keccak-256 hash (used by Ethereum).
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// EVMSign signs a 32-byte hash and returns r || s || v with v in {0, 1}.
func EVMSign(privKey *btcec.PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	// SignCompact returns v || r || s with v in {27, 28}.
	sig := btcecdsa.SignCompact(privKey, hash, false)
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length")
	}

	ethSig := make([]byte, 65)
	copy(ethSig[:64], sig[1:65])
	ethSig[64] = sig[0] - 27

	return ethSig, nil
}

// PersonalSign signs a message with Ethereum's personal_sign format:
// "\x19Ethereum Signed Message:\n" + len(message) + message.
func PersonalSign(privKey *btcec.PrivateKey, message []byte) ([]byte, error) {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	data := append([]byte(prefix), message...)
	return EVMSign(privKey, Keccak256(data))
}

// PrivateKeyHex returns the private key as a hex string (without 0x prefix).
func PrivateKeyHex(privKey *btcec.PrivateKey) string {
	return helpers.BytesToHex(privKey.Serialize())[2:]
}

// PrivateKeyFromHex parses a 32-byte hex private key, with or without 0x.
func PrivateKeyFromHex(hexStr string) (*btcec.PrivateKey, error) {
	b, err := helpers.HexToBytes32(hexStr)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	defer helpers.SecureClear(b[:])
	if helpers.IsZeroBytes(b[:]) {
		return nil, fmt.Errorf("invalid private key: zero")
	}
	privKey, _ := btcec.PrivKeyFromBytes(b[:])
	return privKey, nil
}
