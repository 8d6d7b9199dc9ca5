package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
)

// Registry errors.
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order hash exists with different content")
	ErrStatusConflict = errors.New("order status conflict")
)

// OrderFilter restricts List results. Zero fields match everything.
type OrderFilter struct {
	Statuses []order.Status
	Maker    common.Address
	ChainID  uint64 // matches either leg
	Limit    int
	Offset   int
}

// Registry is the system of record for swap orders. Records are never deleted.
type Registry interface {
	// Create stores a new order. An identical record under the same hash, or
	// any record with the same intent hash, is returned instead of inserting.
	// Different content under an existing hash fails with ErrDuplicateOrder.
	Create(ctx context.Context, o *order.Order) (*order.Order, error)

	// Get returns the order or ErrOrderNotFound.
	Get(ctx context.Context, hash common.Hash) (*order.Order, error)

	// Transition moves the order from one status to another atomically. On
	// ErrStatusConflict the current record is returned alongside the error.
	Transition(ctx context.Context, hash common.Hash, from, to order.Status) (*order.Order, error)

	// RecordLeg replaces one leg's details. Status is untouched.
	RecordLeg(ctx context.Context, hash common.Hash, side order.Side, leg order.Leg) (*order.Order, error)

	// List returns orders, newest first.
	List(ctx context.Context, filter OrderFilter) ([]*order.Order, error)

	// Count returns the number of orders matching filter. Limit and Offset
	// are ignored.
	Count(ctx context.Context, filter OrderFilter) (int, error)

	Close() error
}

func (f *OrderFilter) match(o *order.Order) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
		return false
	}
	if f.Maker != (common.Address{}) && o.Maker != f.Maker {
		return false
	}
	if f.ChainID != 0 && o.SrcChainID != f.ChainID && o.DstChainID != f.ChainID {
		return false
	}
	return true
}

func containsStatus(list []order.Status, s order.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
