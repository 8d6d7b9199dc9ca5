package order

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// Authorization errors.
var (
	ErrMissingSignature   = errors.New("maker signature missing")
	ErrMalformedSignature = errors.New("maker signature malformed")
	ErrSignerMismatch     = errors.New("signature not produced by maker")
)

// AuthorizationDigest is the EIP-191 personal_sign digest of an order hash.
func AuthorizationDigest(orderHash common.Hash) []byte {
	return accounts.TextHash(orderHash[:])
}

// VerifyAuthorization checks that sigHex is the maker's personal_sign
// signature over the order hash. Both v encodings (0/1 and 27/28) are accepted.
func VerifyAuthorization(orderHash common.Hash, maker common.Address, sigHex string) error {
	if sigHex == "" {
		return ErrMissingSignature
	}
	sig, err := helpers.HexToBytes(sigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(AuthorizationDigest(orderHash), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != maker {
		return fmt.Errorf("%w: recovered %s", ErrSignerMismatch, signer.Hex())
	}
	return nil
}
