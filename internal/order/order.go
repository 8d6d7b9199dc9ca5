// Package order defines the swap order model, its canonical identifier and
// the hash-lock commitment shared by both escrow legs.
package order

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Side identifies one of the two escrow legs of an order.
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// Other returns the opposite leg.
func (s Side) Other() Side {
	if s == SideSource {
		return SideDestination
	}
	return SideSource
}

// LegState tracks what the resolver has observed for one escrow leg.
type LegState string

const (
	LegNone      LegState = ""
	LegDeployed  LegState = "deployed"
	LegWithdrawn LegState = "withdrawn"
	LegCancelled LegState = "cancelled"
)

// Terminal returns true once the leg's escrow has left its pending state.
func (s LegState) Terminal() bool {
	return s == LegWithdrawn || s == LegCancelled
}

// Leg is the per-chain half of an order.
type Leg struct {
	ChainID    uint64
	Depositor  common.Address // refund recipient: maker on source, taker on destination
	Escrow     common.Address
	DeployTx   common.Hash
	WithdrawTx common.Hash
	CancelTx   common.Hash
	State      LegState
}

// Deployed returns true if an escrow address has been recorded.
func (l *Leg) Deployed() bool {
	return l.Escrow != (common.Address{})
}

// Order is a swap order owned by the registry.
type Order struct {
	Hash common.Hash

	Maker      common.Address
	SrcChainID uint64
	DstChainID uint64
	SrcToken   common.Address
	DstToken   common.Address
	SrcAmount  *big.Int
	DstAmount  *big.Int
	Timelock   int64 // unix seconds, shared by both legs

	Secret   Secret
	HashLock common.Hash

	// IntentHash identifies the creation parameters without the hash lock.
	IntentHash common.Hash

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time

	Source      Leg
	Destination Leg
}

// Params returns the nine immutable fields the order hash is computed from.
func (o *Order) Params() Params {
	return Params{
		Maker:      o.Maker,
		SrcChainID: o.SrcChainID,
		DstChainID: o.DstChainID,
		SrcToken:   o.SrcToken,
		DstToken:   o.DstToken,
		SrcAmount:  o.SrcAmount,
		DstAmount:  o.DstAmount,
		HashLock:   o.HashLock,
		Timelock:   o.Timelock,
	}
}

// Leg returns a pointer to the requested leg.
func (o *Order) Leg(side Side) *Leg {
	if side == SideSource {
		return &o.Source
	}
	return &o.Destination
}

// SideFor maps a chain ID to the leg living on it.
func (o *Order) SideFor(chainID uint64) (Side, bool) {
	switch chainID {
	case o.SrcChainID:
		return SideSource, true
	case o.DstChainID:
		return SideDestination, true
	default:
		return "", false
	}
}

// SecretRevealed returns true once any leg has been withdrawn on-chain,
// which makes the preimage public.
func (o *Order) SecretRevealed() bool {
	return o.Source.State == LegWithdrawn || o.Destination.State == LegWithdrawn
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.SrcAmount != nil {
		c.SrcAmount = new(big.Int).Set(o.SrcAmount)
	}
	if o.DstAmount != nil {
		c.DstAmount = new(big.Int).Set(o.DstAmount)
	}
	return &c
}

// SameContent reports whether two orders carry identical immutable fields and commitment.
func (o *Order) SameContent(other *Order) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Hash == other.Hash &&
		o.Maker == other.Maker &&
		o.SrcChainID == other.SrcChainID &&
		o.DstChainID == other.DstChainID &&
		o.SrcToken == other.SrcToken &&
		o.DstToken == other.DstToken &&
		o.SrcAmount.Cmp(other.SrcAmount) == 0 &&
		o.DstAmount.Cmp(other.DstAmount) == 0 &&
		o.Timelock == other.Timelock &&
		o.HashLock == other.HashLock &&
		o.Secret == other.Secret
}
