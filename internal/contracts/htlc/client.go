// Package htlc provides a Go client for the escrow factory, the per-order
// escrow instances it deploys and the ERC-20 custody calls around them.
package htlc

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// DeployArgs are the factory deployment arguments. For the source leg Party
// is the maker and CounterChainID the destination chain; for the
// destination leg Party is the taker and CounterChainID the source chain.
type DeployArgs struct {
	OrderHash      [32]byte
	Party          common.Address
	SrcToken       common.Address
	SrcAmount      *big.Int
	DstToken       common.Address
	DstAmount      *big.Int
	HashLock       [32]byte
	Timelock       *big.Int
	CounterChainID *big.Int
}

// EscrowDetails is the decoded result of getDetails().
type EscrowDetails struct {
	OrderHash [32]byte
	Side      uint8
	Depositor common.Address
	Token     common.Address
	Amount    *big.Int
	HashLock  [32]byte
	Timelock  *big.Int
	State     uint8
	Secret    [32]byte
	Actor     common.Address
}

// deployedEvent matches SourceHTLCDeployed and DestinationHTLCDeployed.
type deployedEvent struct {
	OrderHash [32]byte
	Escrow    common.Address
	Maker     common.Address
	Taker     common.Address
	HashLock  [32]byte
	Timelock  *big.Int
}

type withdrawnEvent struct {
	OrderHash [32]byte
	Actor     common.Address
	Secret    [32]byte
}

// Client talks to one EVM chain.
type Client struct {
	client         *ethclient.Client
	factory        *bind.BoundContract
	factoryAddress common.Address
	chainID        *big.Int
}

// Dial connects to rpcURL and binds the factory at factoryAddress.
func Dial(ctx context.Context, rpcURL string, factoryAddress common.Address) (*Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &Client{
		client:         client,
		factory:        bind.NewBoundContract(factoryAddress, factoryABI, client, client, client),
		factoryAddress: factoryAddress,
		chainID:        chainID,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.client.Close()
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// FactoryAddress returns the bound factory address.
func (c *Client) FactoryAddress() common.Address {
	return c.factoryAddress
}

// LatestTime returns the timestamp of the latest block.
func (c *Client) LatestTime(ctx context.Context) (int64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	return int64(header.Time), nil
}

// =============================================================================
// Factory
// =============================================================================

// DeploySource submits deploySourceHTLC.
func (c *Client) DeploySource(ctx context.Context, key *ecdsa.PrivateKey, args DeployArgs) (*types.Transaction, error) {
	return c.deploy(ctx, key, "deploySourceHTLC", args)
}

// DeployDestination submits deployDestinationHTLC.
func (c *Client) DeployDestination(ctx context.Context, key *ecdsa.PrivateKey, args DeployArgs) (*types.Transaction, error) {
	return c.deploy(ctx, key, "deployDestinationHTLC", args)
}

func (c *Client) deploy(ctx context.Context, key *ecdsa.PrivateKey, method string, a DeployArgs) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.factory.Transact(auth, method,
		a.OrderHash, a.Party, a.SrcToken, a.SrcAmount, a.DstToken, a.DstAmount,
		a.HashLock, a.Timelock, a.CounterChainID,
	)
}

// GetSourceHTLC returns the source escrow for an order, or the zero address.
func (c *Client) GetSourceHTLC(ctx context.Context, orderHash [32]byte) (common.Address, error) {
	return c.lookup(ctx, "getSourceHTLC", orderHash)
}

// GetDestinationHTLC returns the destination escrow for an order, or the zero address.
func (c *Client) GetDestinationHTLC(ctx context.Context, orderHash [32]byte) (common.Address, error) {
	return c.lookup(ctx, "getDestinationHTLC", orderHash)
}

func (c *Client) lookup(ctx context.Context, method string, orderHash [32]byte) (common.Address, error) {
	var out []interface{}
	if err := c.factory.Call(&bind.CallOpts{Context: ctx}, &out, method, orderHash); err != nil {
		return common.Address{}, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// DeployedEscrow extracts the escrow address from a deployment receipt.
func (c *Client) DeployedEscrow(receipt *types.Receipt) (common.Address, error) {
	for _, log := range receipt.Logs {
		if log.Address != c.factoryAddress || len(log.Topics) == 0 {
			continue
		}
		for _, name := range []string{"SourceHTLCDeployed", "DestinationHTLCDeployed"} {
			if log.Topics[0] != factoryABI.Events[name].ID {
				continue
			}
			var ev deployedEvent
			if err := c.factory.UnpackLog(&ev, name, *log); err != nil {
				return common.Address{}, fmt.Errorf("failed to unpack %s: %w", name, err)
			}
			return ev.Escrow, nil
		}
	}
	return common.Address{}, fmt.Errorf("no deployment event in transaction %s", receipt.TxHash.Hex())
}

// =============================================================================
// Escrow instances
// =============================================================================

func (c *Client) escrow(address common.Address) *bind.BoundContract {
	return bind.NewBoundContract(address, escrowABI, c.client, c.client, c.client)
}

// Withdraw submits withdraw(secret) to an escrow.
func (c *Client) Withdraw(ctx context.Context, key *ecdsa.PrivateKey, escrow common.Address, secret [32]byte) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.escrow(escrow).Transact(auth, "withdraw", secret)
}

// Cancel submits cancel() to an escrow.
func (c *Client) Cancel(ctx context.Context, key *ecdsa.PrivateKey, escrow common.Address) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.escrow(escrow).Transact(auth, "cancel")
}

// GetDetails reads the escrow state.
func (c *Client) GetDetails(ctx context.Context, escrow common.Address) (*EscrowDetails, error) {
	var out []interface{}
	if err := c.escrow(escrow).Call(&bind.CallOpts{Context: ctx}, &out, "getDetails"); err != nil {
		return nil, fmt.Errorf("failed to get escrow details: %w", err)
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("unexpected getDetails output length %d", len(out))
	}

	return &EscrowDetails{
		OrderHash: *abi.ConvertType(out[0], new([32]byte)).(*[32]byte),
		Side:      *abi.ConvertType(out[1], new(uint8)).(*uint8),
		Depositor: *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		Token:     *abi.ConvertType(out[3], new(common.Address)).(*common.Address),
		Amount:    *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
		HashLock:  *abi.ConvertType(out[5], new([32]byte)).(*[32]byte),
		Timelock:  *abi.ConvertType(out[6], new(*big.Int)).(**big.Int),
		State:     *abi.ConvertType(out[7], new(uint8)).(*uint8),
		Secret:    *abi.ConvertType(out[8], new([32]byte)).(*[32]byte),
		Actor:     *abi.ConvertType(out[9], new(common.Address)).(*common.Address),
	}, nil
}

// SecretFromReceipt returns the preimage revealed by a withdraw transaction.
func (c *Client) SecretFromReceipt(receipt *types.Receipt, escrow common.Address) ([32]byte, error) {
	contract := c.escrow(escrow)
	for _, log := range receipt.Logs {
		if log.Address != escrow || len(log.Topics) == 0 || log.Topics[0] != escrowABI.Events["Withdrawn"].ID {
			continue
		}
		var ev withdrawnEvent
		if err := contract.UnpackLog(&ev, "Withdrawn", *log); err != nil {
			return [32]byte{}, fmt.Errorf("failed to unpack Withdrawn: %w", err)
		}
		return ev.Secret, nil
	}
	return [32]byte{}, fmt.Errorf("no Withdrawn event in transaction %s", receipt.TxHash.Hex())
}

// =============================================================================
// ERC20 Helpers
// =============================================================================

// Allowance returns how much of owner's token the factory may pull.
func (c *Client) Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out []interface{}
	erc20 := bind.NewBoundContract(token, erc20ABI, c.client, c.client, c.client)
	if err := erc20.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, c.factoryAddress); err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Approve lets the factory pull amount of token from the key's account.
func (c *Client) Approve(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount *big.Int) (*types.Transaction, error) {
	auth, err := c.newTransactor(ctx, key)
	if err != nil {
		return nil, err
	}
	erc20 := bind.NewBoundContract(token, erc20ABI, c.client, c.client, c.client)
	return erc20.Transact(auth, "approve", c.factoryAddress, amount)
}

// =============================================================================
// Transaction Helpers
// =============================================================================

// WaitForTx waits for a transaction to be mined and checks its status.
func (c *Client) WaitForTx(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// WaitForConfirmations blocks until the receipt's block has the given depth.
func (c *Client) WaitForConfirmations(ctx context.Context, receipt *types.Receipt, confirmations uint64) error {
	if confirmations <= 1 {
		return nil
	}
	target := receipt.BlockNumber.Uint64() + confirmations - 1

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		head, err := c.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) newTransactor(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// AddressFromPrivateKey derives the address from a private key.
func AddressFromPrivateKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
