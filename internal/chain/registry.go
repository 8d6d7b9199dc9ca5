package chain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry holds one adapter per chain ID.
type Registry struct {
	mu       sync.RWMutex
	adapters map[uint64]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[uint64]Adapter)}
}

// Register adds an adapter. Each chain ID may be registered once.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ChainID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("chain %d already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// Get returns the adapter for a chain ID.
func (r *Registry) Get(chainID uint64) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return a, nil
}

// Has returns true if the chain ID has an adapter.
func (r *Registry) Has(chainID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[chainID]
	return ok
}

// IDs returns the registered chain IDs in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close closes every adapter.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, a := range r.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("chain %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
