package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/escrow"
	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
)

// maxCancelRetries bounds the compare-and-set loop when moving to cancelled.
const maxCancelRetries = 3

// Cancel refunds the escrow on chainID to its depositor once the timelock
// has passed and marks the order cancelled.
func (c *Coordinator) Cancel(ctx context.Context, hash common.Hash, chainID uint64) (*LegResult, error) {
	const op = "cancel"

	o, err := c.getOrder(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	side, ok := o.SideFor(chainID)
	if !ok {
		return nil, newError(KindValidation, op, fmt.Sprintf("chain %d is not part of this order", chainID), nil)
	}

	adapter, err := c.adapterFor(op, o, side)
	if err != nil {
		return nil, err
	}
	now, err := adapter.Now(ctx)
	if err != nil {
		return nil, chainError(op, chainID, side, "failed to read chain time", err)
	}
	if now < o.Timelock {
		return nil, timelockError(op, chainID, side, fmt.Sprintf("timelock %d not reached (chain time %d)", o.Timelock, now))
	}
	if o.Status == order.StatusCompleted {
		return nil, newError(KindStateConflict, op, "order is completed", nil)
	}

	unlock := c.lockLeg(hash, side)
	defer unlock()

	if o, err = c.getOrder(ctx, op, hash); err != nil {
		return nil, err
	}
	leg := *o.Leg(side)
	switch {
	case leg.State == order.LegCancelled:
		return nil, newError(KindStateConflict, op, fmt.Sprintf("%s leg already cancelled", side), nil)
	case leg.State == order.LegWithdrawn:
		return nil, newError(KindStateConflict, op, fmt.Sprintf("%s leg already withdrawn", side), nil)
	case !leg.Deployed():
		return nil, newError(KindStateConflict, op, fmt.Sprintf("no escrow deployed for %s leg", side), nil)
	}

	details, err := adapter.EscrowDetails(ctx, leg.Escrow)
	if err != nil {
		return nil, chainError(op, chainID, side, "failed to read escrow", err)
	}
	switch details.State {
	case escrow.StateWithdrawn:
		return nil, newError(KindStateConflict, op, fmt.Sprintf("%s escrow was withdrawn", side), nil)
	case escrow.StateCancelled:
		return c.finishCancel(ctx, o, side, leg, common.Hash{}, "already cancelled")
	}

	receipt, err := adapter.Cancel(ctx, leg.Escrow)
	if err != nil {
		if d, readErr := adapter.EscrowDetails(ctx, leg.Escrow); readErr == nil && d.State == escrow.StateCancelled {
			c.log.Warn("Cancel reported failure but escrow is cancelled", "order", hash.Hex(), "side", side, "error", err)
			return c.finishCancel(ctx, o, side, leg, common.Hash{}, "cancelled")
		}
		return nil, chainError(op, chainID, side, "failed to cancel", err)
	}

	return c.finishCancel(ctx, o, side, leg, receipt.TxHash, "cancelled")
}

// finishCancel records the refunded leg and moves the order to cancelled.
func (c *Coordinator) finishCancel(ctx context.Context, o *order.Order, side order.Side, leg order.Leg, txHash common.Hash, message string) (*LegResult, error) {
	const op = "cancel"

	leg.State = order.LegCancelled
	leg.CancelTx = txHash

	updated, err := c.registry.RecordLeg(ctx, o.Hash, side, leg)
	if err != nil {
		return nil, newError(KindInternal, op, "failed to record cancellation", err)
	}

	c.log.Info("Cancelled escrow",
		"order", o.Hash.Hex(),
		"side", side,
		"chain", leg.ChainID,
		"refund_to", leg.Depositor.Hex(),
		"tx_hash", txHash.Hex(),
	)
	c.emitEvent(o.Hash, EventLegCancelled, map[string]interface{}{
		"leg":      string(side),
		"chainId":  leg.ChainID,
		"refundTo": leg.Depositor.Hex(),
		"txHash":   txHash.Hex(),
	})

	for i := 0; i < maxCancelRetries && updated.Status != order.StatusCancelled; i++ {
		from := updated.Status
		next, err := c.registry.Transition(ctx, o.Hash, from, order.StatusCancelled)
		if err == nil {
			updated = next
			c.log.Info("Order cancelled", "order", o.Hash.Hex(), "from", from)
			c.emitEvent(o.Hash, EventOrderCancelled, map[string]interface{}{"from": from.String()})
			break
		}
		if !errors.Is(err, storage.ErrStatusConflict) || next == nil {
			return nil, newError(KindInternal, op, "failed to cancel order", err)
		}
		if next.Status == order.StatusCompleted {
			return nil, newError(KindStateConflict, op, "order completed concurrently", err)
		}
		updated = next
	}
	if updated.Status != order.StatusCancelled {
		return nil, newError(KindStateConflict, op, "failed to move order to cancelled", nil)
	}

	return &LegResult{Order: updated, TxHash: txHash, Message: message}, nil
}
