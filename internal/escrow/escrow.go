// Package escrow is a reference model of the on-chain HTLC escrow pair.
//
// Each escrow moves PENDING -> WITHDRAWN or PENDING -> CANCELLED exactly once.
// Withdraw requires a matching preimage before the timelock; cancel requires
// the timelock to have passed and refunds the depositor. The model is what
// the mock chain adapter executes, so the off-chain coordinator is tested
// against the same guards the contracts enforce.
package escrow

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State of an escrow instance.
type State uint8

const (
	StatePending   State = 1
	StateWithdrawn State = 2
	StateCancelled State = 3
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateWithdrawn:
		return "withdrawn"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Guard violations.
var (
	ErrNotPending         = errors.New("escrow is not pending")
	ErrTimelockExpired    = errors.New("timelock has expired")
	ErrTimelockNotExpired = errors.New("timelock has not expired")
	ErrInvalidPreimage    = errors.New("preimage does not match hash lock")
)

// Side distinguishes source escrows (funded by the maker) from destination
// escrows (funded by the taker).
type Side uint8

const (
	SideSource      Side = 0
	SideDestination Side = 1
)

// Params are the constructor arguments of an escrow.
type Params struct {
	OrderHash common.Hash
	Side      Side
	Depositor common.Address
	Token     common.Address
	Amount    *big.Int
	HashLock  common.Hash
	Timelock  int64

	// Counter-leg terms, stored for inspection only.
	CounterToken   common.Address
	CounterAmount  *big.Int
	CounterChainID uint64
}

// Details is the read view returned by getDetails().
type Details struct {
	Params
	Address common.Address
	State   State
	Secret  [32]byte // zero until withdrawn
	Actor   common.Address
}

// Payout describes the token movement caused by a successful call.
type Payout struct {
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
}

// Escrow is a single HTLC instance.
type Escrow struct {
	address common.Address
	params  Params
	state   State
	secret  [32]byte
	actor   common.Address
}

// New creates a pending escrow at the given address.
func New(address common.Address, p Params) *Escrow {
	p.Amount = new(big.Int).Set(p.Amount)
	if p.CounterAmount != nil {
		p.CounterAmount = new(big.Int).Set(p.CounterAmount)
	}
	return &Escrow{address: address, params: p, state: StatePending}
}

// Address returns the escrow's address.
func (e *Escrow) Address() common.Address {
	return e.address
}

// State returns the current state.
func (e *Escrow) State() State {
	return e.state
}

// Withdraw releases the funds to caller if preimage hashes to the lock and
// the timelock has not passed. The preimage becomes publicly readable.
func (e *Escrow) Withdraw(now int64, caller common.Address, preimage [32]byte) (Payout, error) {
	if e.state != StatePending {
		return Payout{}, ErrNotPending
	}
	if now >= e.params.Timelock {
		return Payout{}, ErrTimelockExpired
	}
	if sha256.Sum256(preimage[:]) != e.params.HashLock {
		return Payout{}, ErrInvalidPreimage
	}

	e.state = StateWithdrawn
	e.secret = preimage
	e.actor = caller
	return Payout{Token: e.params.Token, Recipient: caller, Amount: new(big.Int).Set(e.params.Amount)}, nil
}

// Cancel refunds the depositor once the timelock has passed.
func (e *Escrow) Cancel(now int64, caller common.Address) (Payout, error) {
	if e.state != StatePending {
		return Payout{}, ErrNotPending
	}
	if now < e.params.Timelock {
		return Payout{}, ErrTimelockNotExpired
	}

	e.state = StateCancelled
	e.actor = caller
	return Payout{Token: e.params.Token, Recipient: e.params.Depositor, Amount: new(big.Int).Set(e.params.Amount)}, nil
}

// Details returns a snapshot of the escrow.
func (e *Escrow) Details() Details {
	p := e.params
	p.Amount = new(big.Int).Set(p.Amount)
	return Details{
		Params:  p,
		Address: e.address,
		State:   e.state,
		Secret:  e.secret,
		Actor:   e.actor,
	}
}
