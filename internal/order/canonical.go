package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CanonicalSize is the byte length of a canonical order encoding (nine 32-byte words).
const CanonicalSize = 9 * 32

// intentDomain separates intent hashes from order hashes.
const intentDomain = "htlc-resolver/intent/v1"

// Field order is fixed. Escrow factories compute keccak256(abi.encode(...))
// over the same layout.
var (
	canonicalArgs = mustArguments(
		"address", // maker
		"uint256", // srcChainId
		"uint256", // dstChainId
		"address", // srcToken
		"address", // dstToken
		"uint256", // srcAmount
		"uint256", // dstAmount
		"bytes32", // hashLock
		"uint256", // timelock
	)
	intentArgs = mustArguments(
		"address", "uint256", "uint256", "address", "address", "uint256", "uint256", "uint256",
	)
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Canonicalize returns the fixed-width ABI encoding of the order fields.
func Canonicalize(p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	encoded, err := canonicalArgs.Pack(
		p.Maker,
		new(big.Int).SetUint64(p.SrcChainID),
		new(big.Int).SetUint64(p.DstChainID),
		p.SrcToken,
		p.DstToken,
		p.SrcAmount,
		p.DstAmount,
		[32]byte(p.HashLock),
		big.NewInt(p.Timelock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	return encoded, nil
}

// ComputeHash returns keccak256(Canonicalize(p)).
func ComputeHash(p Params) (common.Hash, error) {
	encoded, err := Canonicalize(p)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// IntentHash identifies a create request independently of the generated hash lock.
func IntentHash(p Params) (common.Hash, error) {
	if err := p.Validate(); err != nil {
		return common.Hash{}, err
	}
	encoded, err := intentArgs.Pack(
		p.Maker,
		new(big.Int).SetUint64(p.SrcChainID),
		new(big.Int).SetUint64(p.DstChainID),
		p.SrcToken,
		p.DstToken,
		p.SrcAmount,
		p.DstAmount,
		big.NewInt(p.Timelock),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode intent: %w", err)
	}
	return crypto.Keccak256Hash([]byte(intentDomain), []byte{0}, encoded), nil
}
