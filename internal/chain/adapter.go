// Package chain abstracts the EVM chains escrows are deployed on.
//
// An Adapter wraps one chain: its clock, the resolver's account on it and the
// escrow factory. The coordinator only talks to chains through this interface,
// so the deterministic Mock and the RPC-backed EVMAdapter are interchangeable.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/escrow"
)

// Adapter errors.
var (
	ErrEscrowExists          = errors.New("escrow already exists")
	ErrEscrowNotFound        = errors.New("escrow not found")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrTxReverted            = errors.New("transaction reverted")
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrChainIDMismatch       = errors.New("chain ID mismatch")
	ErrSecretMismatch        = errors.New("withdrawn secret does not match")
)

// Receipt is the confirmed outcome of a submitted transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Escrow      common.Address // set by Deploy
}

// Adapter is a single chain as seen by the resolver.
type Adapter interface {
	// ChainID returns the EVM chain ID.
	ChainID() uint64

	// Account returns the resolver's address on this chain. It is the taker
	// of destination escrows and the caller of withdraw and cancel.
	Account() common.Address

	// Now returns the chain clock (latest block timestamp) in unix seconds.
	Now(ctx context.Context) (int64, error)

	// EnsureAllowance makes sure the factory may pull amount of token from
	// owner. It approves when owner is Account() and returns
	// ErrInsufficientAllowance otherwise. A nil receipt means no transaction
	// was needed.
	EnsureAllowance(ctx context.Context, token, owner common.Address, amount *big.Int) (*Receipt, error)

	// Deploy creates the escrow for p and waits for confirmation. It returns
	// ErrEscrowExists if one is already deployed for p.Side and p.OrderHash.
	Deploy(ctx context.Context, p escrow.Params) (*Receipt, error)

	// FindEscrow returns the deployed escrow for an order, or the zero address.
	FindEscrow(ctx context.Context, side escrow.Side, orderHash common.Hash) (common.Address, error)

	// EscrowDetails reads the on-chain state of an escrow.
	EscrowDetails(ctx context.Context, address common.Address) (*escrow.Details, error)

	// Withdraw reveals secret to the escrow and pays Account().
	Withdraw(ctx context.Context, address common.Address, secret [32]byte) (*Receipt, error)

	// Cancel refunds the escrow's depositor once its timelock has passed.
	Cancel(ctx context.Context, address common.Address) (*Receipt, error)

	// Close releases the connection.
	Close() error
}

// IsRevert returns true if err reports a reverted transaction.
func IsRevert(err error) bool {
	return errors.Is(err, ErrTxReverted)
}
