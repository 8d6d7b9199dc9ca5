package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
)

// CreateRequest is a swap order request as received from a client. Amounts
// are decimal strings. A zero Timelock selects the default.
type CreateRequest struct {
	Maker      string
	SrcChainID uint64
	DstChainID uint64
	SrcToken   string
	DstToken   string
	SrcAmount  string
	DstAmount  string
	Timelock   int64
}

// CreateResult is the registered order. Existing is set when the request
// matched an order created earlier; its secret is then withheld until it is
// revealed on-chain.
type CreateResult struct {
	Order    *order.Order
	Existing bool
}

// Create validates a request, generates the commitment and registers the
// order. Repeating a request returns the order created the first time.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	const op = "create"

	now := c.clock()
	timelock := req.Timelock
	if timelock == 0 {
		timelock = now.Add(c.defaultTimelock).Unix()
	}

	params, err := order.RawParams{
		Maker:      req.Maker,
		SrcChainID: req.SrcChainID,
		DstChainID: req.DstChainID,
		SrcToken:   req.SrcToken,
		DstToken:   req.DstToken,
		SrcAmount:  req.SrcAmount,
		DstAmount:  req.DstAmount,
		Timelock:   timelock,
	}.Parse()
	if err != nil {
		return nil, newError(KindValidation, op, "invalid order parameters", err)
	}

	for _, id := range []uint64{params.SrcChainID, params.DstChainID} {
		if !c.chains.Has(id) {
			return nil, newError(KindValidation, op, fmt.Sprintf("chain %d is not supported", id), nil)
		}
	}

	if err := c.checkWindow(now.Unix(), timelock); err != nil {
		return nil, newError(KindValidation, op, err.Error(), order.ErrInvalidTimelock)
	}

	commitment, err := order.NewCommitment()
	if err != nil {
		return nil, newError(KindInternal, op, "failed to generate commitment", err)
	}
	params.HashLock = commitment.HashLock

	hash, err := order.ComputeHash(params)
	if err != nil {
		return nil, newError(KindValidation, op, "invalid order parameters", err)
	}
	intent, err := order.IntentHash(params)
	if err != nil {
		return nil, newError(KindValidation, op, "invalid order parameters", err)
	}

	taker, err := c.chains.Get(params.DstChainID)
	if err != nil {
		return nil, newError(KindValidation, op, "destination chain not supported", err)
	}

	o := &order.Order{
		Hash:       hash,
		Maker:      params.Maker,
		SrcChainID: params.SrcChainID,
		DstChainID: params.DstChainID,
		SrcToken:   params.SrcToken,
		DstToken:   params.DstToken,
		SrcAmount:  params.SrcAmount,
		DstAmount:  params.DstAmount,
		Timelock:   params.Timelock,
		Secret:     commitment.Secret,
		HashLock:   commitment.HashLock,
		IntentHash: intent,
		Status:     order.StatusPending,
		CreatedAt:  now.UTC().Truncate(time.Second),
		Source: order.Leg{
			ChainID:   params.SrcChainID,
			Depositor: params.Maker,
		},
		Destination: order.Leg{
			ChainID:   params.DstChainID,
			Depositor: taker.Account(),
		},
	}

	stored, err := c.registry.Create(ctx, o)
	if errors.Is(err, storage.ErrDuplicateOrder) {
		return nil, newError(KindDuplicateOrder, op, "order hash already registered", err)
	}
	if err != nil {
		return nil, newError(KindInternal, op, "failed to store order", err)
	}

	if stored.Hash != o.Hash {
		c.log.Info("Order already exists", "order", stored.Hash.Hex(), "status", stored.Status)
		if !stored.SecretRevealed() {
			stored.Secret = order.Secret{}
		}
		return &CreateResult{Order: stored, Existing: true}, nil
	}

	c.log.Info("Created order",
		"order", stored.Hash.Hex(),
		"maker", stored.Maker.Hex(),
		"src_chain", stored.SrcChainID,
		"dst_chain", stored.DstChainID,
		"timelock", stored.Timelock,
	)
	c.emitEvent(stored.Hash, EventOrderCreated, map[string]interface{}{
		"maker":      stored.Maker.Hex(),
		"srcChainId": stored.SrcChainID,
		"dstChainId": stored.DstChainID,
		"hashLock":   stored.HashLock.Hex(),
		"timelock":   stored.Timelock,
	})

	return &CreateResult{Order: stored}, nil
}

// checkWindow requires now+min < timelock < now+max.
func (c *Coordinator) checkWindow(now, timelock int64) error {
	lo := now + int64(c.minTimelock/time.Second)
	hi := now + int64(c.maxTimelock/time.Second)
	if timelock <= lo || timelock >= hi {
		return fmt.Errorf("timelock %d outside (%d, %d)", timelock, lo, hi)
	}
	return nil
}
