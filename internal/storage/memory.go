package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
)

// MemoryRegistry is an in-process Registry. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryRegistry struct {
	mu       sync.RWMutex
	orders   map[common.Hash]*order.Order
	byIntent map[common.Hash]common.Hash
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		orders:   make(map[common.Hash]*order.Order),
		byIntent: make(map[common.Hash]common.Hash),
	}
}

// Create implements Registry.
func (r *MemoryRegistry) Create(_ context.Context, o *order.Order) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.orders[o.Hash]; ok {
		if existing.SameContent(o) {
			return existing.Clone(), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, o.Hash.Hex())
	}
	if o.IntentHash != (common.Hash{}) {
		if hash, ok := r.byIntent[o.IntentHash]; ok {
			return r.orders[hash].Clone(), nil
		}
	}

	stored := o.Clone()
	if stored.Status == 0 {
		stored.Status = order.StatusPending
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = stored.CreatedAt

	r.orders[stored.Hash] = stored
	if stored.IntentHash != (common.Hash{}) {
		r.byIntent[stored.IntentHash] = stored.Hash
	}
	return stored.Clone(), nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, hash common.Hash) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[hash]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// Transition implements Registry.
func (r *MemoryRegistry) Transition(_ context.Context, hash common.Hash, from, to order.Status) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[hash]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != from || !from.CanTransition(to) {
		return o.Clone(), fmt.Errorf("%w: %s -> %s, current %s", ErrStatusConflict, from, to, o.Status)
	}

	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return o.Clone(), nil
}

// RecordLeg implements Registry.
func (r *MemoryRegistry) RecordLeg(_ context.Context, hash common.Hash, side order.Side, leg order.Leg) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[hash]
	if !ok {
		return nil, ErrOrderNotFound
	}
	*o.Leg(side) = leg
	o.UpdatedAt = time.Now().UTC()
	return o.Clone(), nil
}

// List implements Registry.
func (r *MemoryRegistry) List(_ context.Context, filter OrderFilter) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*order.Order
	for _, o := range r.orders {
		if filter.match(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Hash.Hex() < out[j].Hash.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Count implements Registry.
func (r *MemoryRegistry) Count(_ context.Context, filter OrderFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, o := range r.orders {
		if filter.match(o) {
			n++
		}
	}
	return n, nil
}

// Close implements Registry.
func (r *MemoryRegistry) Close() error {
	return nil
}

var _ Registry = (*MemoryRegistry)(nil)
