package escrow

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Factory errors.
var (
	ErrAlreadyDeployed = errors.New("escrow already deployed for order")
	ErrUnknownEscrow   = errors.New("unknown escrow")
)

// escrowInitCodeHash stands in for the escrow bytecode hash in CREATE2 derivation.
var escrowInitCodeHash = crypto.Keccak256([]byte("htlc-resolver/escrow/v1"))

// Factory deploys at most one escrow per (side, order hash).
// It is not safe for concurrent use; callers serialize access.
type Factory struct {
	address   common.Address
	byOrder   map[Side]map[common.Hash]*Escrow
	byAddress map[common.Address]*Escrow
}

// NewFactory creates an empty factory at the given address.
func NewFactory(address common.Address) *Factory {
	return &Factory{
		address: address,
		byOrder: map[Side]map[common.Hash]*Escrow{
			SideSource:      {},
			SideDestination: {},
		},
		byAddress: make(map[common.Address]*Escrow),
	}
}

// Address returns the factory address.
func (f *Factory) Address() common.Address {
	return f.address
}

// EscrowAddress derives the escrow address for an order and side.
func (f *Factory) EscrowAddress(side Side, orderHash common.Hash) common.Address {
	salt := crypto.Keccak256Hash([]byte{byte(side)}, orderHash[:])
	return crypto.CreateAddress2(f.address, salt, escrowInitCodeHash)
}

// Deploy creates the escrow for p.Side and p.OrderHash.
func (f *Factory) Deploy(p Params) (*Escrow, error) {
	if _, ok := f.byOrder[p.Side][p.OrderHash]; ok {
		return nil, ErrAlreadyDeployed
	}
	e := New(f.EscrowAddress(p.Side, p.OrderHash), p)
	f.byOrder[p.Side][p.OrderHash] = e
	f.byAddress[e.address] = e
	return e, nil
}

// Lookup returns the escrow address for an order, or the zero address.
func (f *Factory) Lookup(side Side, orderHash common.Hash) common.Address {
	if e, ok := f.byOrder[side][orderHash]; ok {
		return e.address
	}
	return common.Address{}
}

// Escrow returns the instance at address.
func (f *Factory) Escrow(address common.Address) (*Escrow, error) {
	e, ok := f.byAddress[address]
	if !ok {
		return nil, ErrUnknownEscrow
	}
	return e, nil
}
