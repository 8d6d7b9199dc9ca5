package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/klingon-exchange/htlc-resolver/internal/contracts/htlc"
	"github.com/klingon-exchange/htlc-resolver/internal/escrow"
	"github.com/klingon-exchange/htlc-resolver/pkg/logging"
)

// EVMConfig configures an RPC-backed adapter.
type EVMConfig struct {
	ChainID       uint64
	RPCURL        string
	Factory       common.Address
	Confirmations uint64
	Key           *ecdsa.PrivateKey
	Logger        *logging.Logger
}

// EVMAdapter talks to a live chain through the escrow factory client.
type EVMAdapter struct {
	client        *htlc.Client
	key           *ecdsa.PrivateKey
	account       common.Address
	chainID       uint64
	confirmations uint64
	log           *logging.Logger

	// submitMu serializes submissions so nonces are assigned in order.
	submitMu sync.Mutex
}

// DialEVM connects to cfg.RPCURL and checks that the node serves cfg.ChainID.
func DialEVM(ctx context.Context, cfg EVMConfig) (*EVMAdapter, error) {
	if cfg.Key == nil {
		return nil, errors.New("missing resolver key")
	}

	client, err := htlc.Dial(ctx, cfg.RPCURL, cfg.Factory)
	if err != nil {
		return nil, err
	}
	if got := client.ChainID(); !got.IsUint64() || got.Uint64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("%w: configured %d, node reports %s", ErrChainIDMismatch, cfg.ChainID, got)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault()
	}

	return &EVMAdapter{
		client:        client,
		key:           cfg.Key,
		account:       htlc.AddressFromPrivateKey(cfg.Key),
		chainID:       cfg.ChainID,
		confirmations: cfg.Confirmations,
		log:           log.Component("evm").With("chain", cfg.ChainID),
	}, nil
}

// ChainID implements Adapter.
func (a *EVMAdapter) ChainID() uint64 {
	return a.chainID
}

// Account implements Adapter.
func (a *EVMAdapter) Account() common.Address {
	return a.account
}

// Now implements Adapter.
func (a *EVMAdapter) Now(ctx context.Context) (int64, error) {
	return a.client.LatestTime(ctx)
}

// EnsureAllowance implements Adapter.
func (a *EVMAdapter) EnsureAllowance(ctx context.Context, token, owner common.Address, amount *big.Int) (*Receipt, error) {
	allowance, err := a.client.Allowance(ctx, token, owner)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil, nil
	}
	if owner != a.account {
		return nil, fmt.Errorf("%w: owner %s has %s, needs %s", ErrInsufficientAllowance, owner.Hex(), allowance, amount)
	}

	return a.submit(ctx, "approve", func() (*types.Transaction, error) {
		return a.client.Approve(ctx, a.key, token, amount)
	}, nil)
}

// Deploy implements Adapter.
func (a *EVMAdapter) Deploy(ctx context.Context, p escrow.Params) (*Receipt, error) {
	existing, err := a.FindEscrow(ctx, p.Side, p.OrderHash)
	if err != nil {
		return nil, err
	}
	if existing != (common.Address{}) {
		return nil, ErrEscrowExists
	}

	args := deployArgs(p)
	receipt, err := a.submit(ctx, "deploy", func() (*types.Transaction, error) {
		if p.Side == escrow.SideSource {
			return a.client.DeploySource(ctx, a.key, args)
		}
		return a.client.DeployDestination(ctx, a.key, args)
	}, func(mined *types.Receipt, out *Receipt) error {
		addr, err := a.client.DeployedEscrow(mined)
		if err != nil {
			return err
		}
		out.Escrow = addr
		return nil
	})
	if err != nil {
		// Another resolver may have won the race for this order.
		if addr, findErr := a.FindEscrow(ctx, p.Side, p.OrderHash); findErr == nil && addr != (common.Address{}) {
			return nil, ErrEscrowExists
		}
		return nil, err
	}
	return receipt, nil
}

func deployArgs(p escrow.Params) htlc.DeployArgs {
	args := htlc.DeployArgs{
		OrderHash:      p.OrderHash,
		Party:          p.Depositor,
		HashLock:       p.HashLock,
		Timelock:       big.NewInt(p.Timelock),
		CounterChainID: new(big.Int).SetUint64(p.CounterChainID),
	}
	if p.Side == escrow.SideSource {
		args.SrcToken, args.SrcAmount = p.Token, p.Amount
		args.DstToken, args.DstAmount = p.CounterToken, p.CounterAmount
	} else {
		args.SrcToken, args.SrcAmount = p.CounterToken, p.CounterAmount
		args.DstToken, args.DstAmount = p.Token, p.Amount
	}
	return args
}

// FindEscrow implements Adapter.
func (a *EVMAdapter) FindEscrow(ctx context.Context, side escrow.Side, orderHash common.Hash) (common.Address, error) {
	if side == escrow.SideSource {
		return a.client.GetSourceHTLC(ctx, orderHash)
	}
	return a.client.GetDestinationHTLC(ctx, orderHash)
}

// EscrowDetails implements Adapter.
func (a *EVMAdapter) EscrowDetails(ctx context.Context, address common.Address) (*escrow.Details, error) {
	d, err := a.client.GetDetails(ctx, address)
	if err != nil {
		return nil, err
	}
	if d.OrderHash == ([32]byte{}) {
		return nil, ErrEscrowNotFound
	}

	return &escrow.Details{
		Params: escrow.Params{
			OrderHash: d.OrderHash,
			Side:      escrow.Side(d.Side),
			Depositor: d.Depositor,
			Token:     d.Token,
			Amount:    d.Amount,
			HashLock:  d.HashLock,
			Timelock:  d.Timelock.Int64(),
		},
		Address: address,
		State:   escrow.State(d.State),
		Secret:  d.Secret,
		Actor:   d.Actor,
	}, nil
}

// Withdraw implements Adapter.
func (a *EVMAdapter) Withdraw(ctx context.Context, address common.Address, secret [32]byte) (*Receipt, error) {
	return a.submit(ctx, "withdraw", func() (*types.Transaction, error) {
		return a.client.Withdraw(ctx, a.key, address, secret)
	}, func(mined *types.Receipt, _ *Receipt) error {
		return a.checkRevealed(mined, address, secret)
	})
}

// checkRevealed confirms the Withdrawn event in mined carries secret.
func (a *EVMAdapter) checkRevealed(mined *types.Receipt, address common.Address, secret [32]byte) error {
	revealed, err := a.client.SecretFromReceipt(mined, address)
	if err != nil {
		return err
	}
	if revealed != secret {
		return fmt.Errorf("%w: escrow %s revealed %x", ErrSecretMismatch, address.Hex(), revealed)
	}
	return nil
}

// Cancel implements Adapter.
func (a *EVMAdapter) Cancel(ctx context.Context, address common.Address) (*Receipt, error) {
	return a.submit(ctx, "cancel", func() (*types.Transaction, error) {
		return a.client.Cancel(ctx, a.key, address)
	}, nil)
}

// Close implements Adapter.
func (a *EVMAdapter) Close() error {
	a.client.Close()
	return nil
}

// submit sends one transaction and waits for it to be mined and confirmed.
// inspect, if set, reads the mined receipt before it is reported.
func (a *EVMAdapter) submit(ctx context.Context, op string, send func() (*types.Transaction, error), inspect func(*types.Receipt, *Receipt) error) (*Receipt, error) {
	a.submitMu.Lock()
	tx, err := send()
	a.submitMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", op, err)
	}
	a.log.Debug("Submitted transaction", "op", op, "tx_hash", tx.Hash().Hex())

	receipt, err := a.client.WaitForTx(ctx, tx)
	if err != nil {
		if errors.Is(err, htlc.ErrReverted) {
			return nil, fmt.Errorf("%w: %s %s", ErrTxReverted, op, tx.Hash().Hex())
		}
		return nil, fmt.Errorf("failed to wait for %s: %w", op, err)
	}
	if err := a.client.WaitForConfirmations(ctx, receipt, a.confirmations); err != nil {
		return nil, fmt.Errorf("failed to confirm %s: %w", op, err)
	}

	out := &Receipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}
	if inspect != nil {
		if err := inspect(receipt, out); err != nil {
			return nil, fmt.Errorf("%s %s: %w", op, out.TxHash.Hex(), err)
		}
	}

	a.log.Info("Transaction confirmed", "op", op, "tx_hash", out.TxHash.Hex(), "block", out.BlockNumber)
	return out, nil
}

var _ Adapter = (*EVMAdapter)(nil)
