package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/chain"
	"github.com/klingon-exchange/htlc-resolver/internal/escrow"
	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
)

// ExecuteResult reports the deployments of an executed order.
type ExecuteResult struct {
	Order     *order.Order
	SrcTxHash common.Hash
	DstTxHash common.Hash
}

type executeOutcome struct {
	result *ExecuteResult
	err    error
}

// Execute deploys the source and then the destination escrow and moves the
// order to executed. The pipeline runs detached from ctx, bounded by the
// order timelock; if ctx ends first the pipeline keeps running and a state
// conflict wrapping ctx's error is returned.
func (c *Coordinator) Execute(ctx context.Context, hash common.Hash, makerSignature string) (*ExecuteResult, error) {
	const op = "execute"

	o, err := c.getOrder(ctx, op, hash)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, newError(KindStateConflict, op, fmt.Sprintf("order is %s", o.Status), nil)
	}
	if err := order.VerifyAuthorization(o.Hash, o.Maker, makerSignature); err != nil {
		return nil, newError(KindAuthorization, op, "maker authorization rejected", err)
	}

	if !c.claim(hash) {
		return nil, newError(KindStateConflict, op, "execution already in progress", nil)
	}

	done := make(chan executeOutcome, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(hash)

		pctx, cancel := context.WithDeadline(c.ctx, c.untilTimelock(o))
		defer cancel()

		result, err := c.runExecute(pctx, o)
		if err != nil {
			c.log.Warn("Execution failed", "order", hash.Hex(), "error", err)
			c.emitEvent(hash, EventExecuteFailed, map[string]interface{}{
				"error": err.Error(),
				"kind":  string(KindOf(err)),
			})
		}
		done <- executeOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, newError(KindStateConflict, op,
			"request ended before execution finished; execution continues in the background, query the order status",
			ctx.Err())
	}
}

func (c *Coordinator) runExecute(ctx context.Context, o *order.Order) (*ExecuteResult, error) {
	const op = "execute"

	// Re-read under the execution slot; a retry may follow a partial run.
	o, err := c.getOrder(ctx, op, o.Hash)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, newError(KindStateConflict, op, fmt.Sprintf("order is %s", o.Status), nil)
	}

	for _, side := range []order.Side{order.SideSource, order.SideDestination} {
		if o, err = c.deployLeg(ctx, o, side); err != nil {
			return nil, err
		}
	}

	executed, err := c.registry.Transition(ctx, o.Hash, order.StatusPending, order.StatusExecuted)
	if errors.Is(err, storage.ErrStatusConflict) {
		return nil, newError(KindStateConflict, op, fmt.Sprintf("order moved to %s during execution", executed.Status), err)
	}
	if err != nil {
		return nil, newError(KindInternal, op, "failed to mark order executed", err)
	}

	c.log.Info("Order executed",
		"order", executed.Hash.Hex(),
		"src_escrow", executed.Source.Escrow.Hex(),
		"dst_escrow", executed.Destination.Escrow.Hex(),
	)
	c.emitEvent(executed.Hash, EventOrderExecuted, map[string]interface{}{
		"srcHTLCAddress": executed.Source.Escrow.Hex(),
		"dstHTLCAddress": executed.Destination.Escrow.Hex(),
	})

	return &ExecuteResult{
		Order:     executed,
		SrcTxHash: executed.Source.DeployTx,
		DstTxHash: executed.Destination.DeployTx,
	}, nil
}

// deployLeg makes sure the escrow for one side exists and is recorded.
func (c *Coordinator) deployLeg(ctx context.Context, o *order.Order, side order.Side) (*order.Order, error) {
	const op = "execute"

	leg := *o.Leg(side)
	if leg.Deployed() {
		return o, nil
	}

	adapter, err := c.adapterFor(op, o, side)
	if err != nil {
		return nil, err
	}

	now, err := adapter.Now(ctx)
	if err != nil {
		return nil, chainError(op, leg.ChainID, side, "failed to read chain time", err)
	}
	if err := c.checkWindow(now, o.Timelock); err != nil {
		return nil, timelockError(op, leg.ChainID, side, err.Error())
	}

	p := escrowParams(o, side)

	existing, err := adapter.FindEscrow(ctx, p.Side, p.OrderHash)
	if err != nil {
		return nil, chainError(op, leg.ChainID, side, "failed to look up escrow", err)
	}

	receipt := &chain.Receipt{Escrow: existing}
	if existing == (common.Address{}) {
		if _, err := adapter.EnsureAllowance(ctx, p.Token, p.Depositor, p.Amount); err != nil {
			return nil, chainError(op, leg.ChainID, side, "depositor funds not available to the factory", err)
		}

		receipt, err = adapter.Deploy(ctx, p)
		if errors.Is(err, chain.ErrEscrowExists) {
			addr, findErr := adapter.FindEscrow(ctx, p.Side, p.OrderHash)
			if findErr != nil {
				return nil, chainError(op, leg.ChainID, side, "failed to look up escrow", findErr)
			}
			receipt, err = &chain.Receipt{Escrow: addr}, nil
		}
		if err != nil {
			return nil, chainError(op, leg.ChainID, side, "failed to deploy escrow", err)
		}
	} else {
		c.log.Info("Escrow already deployed", "order", o.Hash.Hex(), "side", side, "escrow", existing.Hex())
	}

	leg.Escrow = receipt.Escrow
	leg.DeployTx = receipt.TxHash
	leg.State = order.LegDeployed

	updated, err := c.registry.RecordLeg(ctx, o.Hash, side, leg)
	if err != nil {
		return nil, newError(KindInternal, op, "failed to record escrow", err)
	}

	c.log.Info("Deployed escrow",
		"order", o.Hash.Hex(),
		"side", side,
		"chain", leg.ChainID,
		"escrow", leg.Escrow.Hex(),
		"tx_hash", leg.DeployTx.Hex(),
	)
	c.emitEvent(o.Hash, EventEscrowDeployed, map[string]interface{}{
		"leg":     string(side),
		"chainId": leg.ChainID,
		"escrow":  leg.Escrow.Hex(),
		"txHash":  leg.DeployTx.Hex(),
	})

	return updated, nil
}

// escrowParams builds the constructor arguments for one side of an order.
func escrowParams(o *order.Order, side order.Side) escrow.Params {
	if side == order.SideSource {
		return escrow.Params{
			OrderHash:      o.Hash,
			Side:           escrow.SideSource,
			Depositor:      o.Source.Depositor,
			Token:          o.SrcToken,
			Amount:         o.SrcAmount,
			HashLock:       o.HashLock,
			Timelock:       o.Timelock,
			CounterToken:   o.DstToken,
			CounterAmount:  o.DstAmount,
			CounterChainID: o.DstChainID,
		}
	}
	return escrow.Params{
		OrderHash:      o.Hash,
		Side:           escrow.SideDestination,
		Depositor:      o.Destination.Depositor,
		Token:          o.DstToken,
		Amount:         o.DstAmount,
		HashLock:       o.HashLock,
		Timelock:       o.Timelock,
		CounterToken:   o.SrcToken,
		CounterAmount:  o.SrcAmount,
		CounterChainID: o.SrcChainID,
	}
}
