package swap

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
)

// Summary is the resolver health view.
type Summary struct {
	Status          string
	SupportedChains []uint64
	ActiveOrders    int
	Version         string
}

// Get returns an order by hash.
func (c *Coordinator) Get(ctx context.Context, hash common.Hash) (*order.Order, error) {
	return c.getOrder(ctx, "status", hash)
}

// Summary reports supported chains and the number of pending or executed orders.
func (c *Coordinator) Summary(ctx context.Context) (*Summary, error) {
	active, err := c.registry.Count(ctx, storage.OrderFilter{
		Statuses: []order.Status{order.StatusPending, order.StatusExecuted},
	})
	if err != nil {
		return nil, newError(KindInternal, "status", "failed to count orders", err)
	}
	return &Summary{
		Status:          "ok",
		SupportedChains: c.SupportedChains(),
		ActiveOrders:    active,
		Version:         c.version,
	}, nil
}

// List returns one page of orders matching filter, newest first, and the
// number of matching orders across all pages.
func (c *Coordinator) List(ctx context.Context, filter storage.OrderFilter) ([]*order.Order, int, error) {
	orders, err := c.registry.List(ctx, filter)
	if err != nil {
		return nil, 0, newError(KindInternal, "list", "failed to list orders", err)
	}
	total, err := c.registry.Count(ctx, filter)
	if err != nil {
		return nil, 0, newError(KindInternal, "list", "failed to count orders", err)
	}
	return orders, total, nil
}
