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

// LegResult reports a withdraw or cancel on one leg.
type LegResult struct {
	Order   *order.Order
	TxHash  common.Hash // zero when the record was reconciled without a transaction
	Message string
}

// Withdraw reveals secret to the escrow on chainID. When both legs have
// been withdrawn the order completes.
func (c *Coordinator) Withdraw(ctx context.Context, hash common.Hash, secret order.Secret, chainID uint64) (*LegResult, error) {
	const op = "withdraw"

	o, err := c.getOrder(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	if !order.VerifySecret(secret, o.HashLock) {
		return nil, newError(KindInvalidSecret, op, "secret does not match hash lock", nil)
	}
	side, ok := o.SideFor(chainID)
	if !ok {
		return nil, newError(KindValidation, op, fmt.Sprintf("chain %d is not part of this order", chainID), nil)
	}
	if o.Status != order.StatusExecuted {
		return nil, newError(KindStateConflict, op, fmt.Sprintf("order is %s", o.Status), nil)
	}

	unlock := c.lockLeg(hash, side)
	defer unlock()

	if o, err = c.getOrder(ctx, op, hash); err != nil {
		return nil, err
	}
	if o.Status != order.StatusExecuted {
		return nil, newError(KindStateConflict, op, fmt.Sprintf("order is %s", o.Status), nil)
	}
	leg := *o.Leg(side)
	switch {
	case leg.State == order.LegWithdrawn:
		return nil, newError(KindStateConflict, op, fmt.Sprintf("%s leg already withdrawn", side), nil)
	case leg.State == order.LegCancelled:
		return nil, newError(KindStateConflict, op, fmt.Sprintf("%s leg already cancelled", side), nil)
	case !leg.Deployed():
		return nil, newError(KindStateConflict, op, fmt.Sprintf("no escrow deployed for %s leg", side), nil)
	}

	adapter, err := c.adapterFor(op, o, side)
	if err != nil {
		return nil, err
	}

	details, err := adapter.EscrowDetails(ctx, leg.Escrow)
	if err != nil {
		return nil, chainError(op, chainID, side, "failed to read escrow", err)
	}
	switch details.State {
	case escrow.StateWithdrawn:
		return c.finishWithdraw(ctx, o, side, leg, common.Hash{}, "already withdrawn")
	case escrow.StateCancelled:
		return nil, newError(KindStateConflict, op, fmt.Sprintf("%s escrow was cancelled", side), nil)
	}

	now, err := adapter.Now(ctx)
	if err != nil {
		return nil, chainError(op, chainID, side, "failed to read chain time", err)
	}
	if now >= o.Timelock {
		return nil, timelockError(op, chainID, side, fmt.Sprintf("timelock %d has passed (chain time %d)", o.Timelock, now))
	}

	receipt, err := adapter.Withdraw(ctx, leg.Escrow, secret)
	if err != nil {
		// The transaction may have landed even though the call failed.
		if d, readErr := adapter.EscrowDetails(ctx, leg.Escrow); readErr == nil && d.State == escrow.StateWithdrawn {
			c.log.Warn("Withdraw reported failure but escrow is withdrawn", "order", hash.Hex(), "side", side, "error", err)
			return c.finishWithdraw(ctx, o, side, leg, common.Hash{}, "withdrawn")
		}
		return nil, chainError(op, chainID, side, "failed to withdraw", err)
	}

	return c.finishWithdraw(ctx, o, side, leg, receipt.TxHash, "withdrawn")
}

// finishWithdraw records the leg and completes the order once both legs are withdrawn.
func (c *Coordinator) finishWithdraw(ctx context.Context, o *order.Order, side order.Side, leg order.Leg, txHash common.Hash, message string) (*LegResult, error) {
	const op = "withdraw"

	leg.State = order.LegWithdrawn
	leg.WithdrawTx = txHash

	updated, err := c.registry.RecordLeg(ctx, o.Hash, side, leg)
	if err != nil {
		return nil, newError(KindInternal, op, "failed to record withdrawal", err)
	}

	c.log.Info("Withdrew escrow",
		"order", o.Hash.Hex(),
		"side", side,
		"chain", leg.ChainID,
		"tx_hash", txHash.Hex(),
	)
	c.emitEvent(o.Hash, EventLegWithdrawn, map[string]interface{}{
		"leg":     string(side),
		"chainId": leg.ChainID,
		"txHash":  txHash.Hex(),
	})

	if updated.Leg(side.Other()).State == order.LegWithdrawn {
		completed, err := c.registry.Transition(ctx, o.Hash, order.StatusExecuted, order.StatusCompleted)
		switch {
		case err == nil:
			updated = completed
			c.log.Info("Order completed", "order", o.Hash.Hex())
			c.emitEvent(o.Hash, EventOrderCompleted, nil)
		case errors.Is(err, storage.ErrStatusConflict) && completed != nil && completed.Status == order.StatusCompleted:
			updated = completed
		default:
			return nil, newError(KindInternal, op, "failed to complete order", err)
		}
	}

	return &LegResult{Order: updated, TxHash: txHash, Message: message}, nil
}
