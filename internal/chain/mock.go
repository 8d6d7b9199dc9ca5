package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/klingon-exchange/htlc-resolver/internal/escrow"
)

// Mock operation names for FailNext, FailAfterSubmit and Calls.
const (
	OpApprove  = "approve"
	OpDeploy   = "deploy"
	OpFind     = "find"
	OpDetails  = "details"
	OpWithdraw = "withdraw"
	OpCancel   = "cancel"
	OpNow      = "now"
)

// Mock is a deterministic in-process chain. It executes the escrow reference
// model against a token ledger and has a controllable clock.
type Mock struct {
	mu sync.Mutex

	chainID uint64
	account common.Address
	factory *escrow.Factory

	base      int64
	offset    int64
	wallClock bool

	// token -> owner -> amount; allowances are towards the factory
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	failBefore map[string]error
	failAfter  map[string]error
	calls      map[string]int
	latency    time.Duration

	txCount uint64
	block   uint64
}

// NewMock creates a mock chain whose clock starts at now and stays fixed
// until SetTime or Advance is called.
func NewMock(chainID uint64, account common.Address, now int64) *Mock {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], chainID)
	factory := common.BytesToAddress(crypto.Keccak256([]byte("htlc-resolver/mock-factory"), idBytes[:])[12:])

	return &Mock{
		chainID:    chainID,
		account:    account,
		factory:    escrow.NewFactory(factory),
		base:       now,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		failBefore: make(map[string]error),
		failAfter:  make(map[string]error),
		calls:      make(map[string]int),
	}
}

// UseWallClock makes the chain clock follow the local clock plus any Advance offset.
func (m *Mock) UseWallClock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallClock = true
}

// SetTime fixes the chain clock.
func (m *Mock) SetTime(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallClock = false
	m.base = now
	m.offset = 0
}

// Advance moves the chain clock forward.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset += int64(d / time.Second)
}

// SetLatency delays every call, outside the chain lock.
func (m *Mock) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// FailNext makes the next call of op fail with err before it takes effect.
func (m *Mock) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBefore[op] = err
}

// FailAfterSubmit makes the next call of op take effect and then report err,
// as when a transaction is mined but the response is lost.
func (m *Mock) FailAfterSubmit(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter[op] = err
}

// Calls returns how many times op has been invoked.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// FactoryAddress returns the mock factory address.
func (m *Mock) FactoryAddress() common.Address {
	return m.factory.Address()
}

// Mint credits amount of token to owner.
func (m *Mock) Mint(token, owner common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(m.balances, token, owner, amount)
}

// Approve sets owner's allowance towards the factory, as owner would on-chain.
func (m *Mock) Approve(token, owner common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(m.allowances, token, owner, amount)
}

// BalanceOf returns owner's balance of token.
func (m *Mock) BalanceOf(token, owner common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.get(m.balances, token, owner))
}

// Allowance returns owner's allowance of token towards the factory.
func (m *Mock) Allowance(token, owner common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.get(m.allowances, token, owner))
}

// =============================================================================
// Adapter
// =============================================================================

// ChainID implements Adapter.
func (m *Mock) ChainID() uint64 {
	return m.chainID
}

// Account implements Adapter.
func (m *Mock) Account() common.Address {
	return m.account
}

// Now implements Adapter.
func (m *Mock) Now(ctx context.Context) (int64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, _ := m.enter(OpNow); err != nil {
		return 0, err
	}
	return m.now(), nil
}

// EnsureAllowance implements Adapter.
func (m *Mock) EnsureAllowance(ctx context.Context, token, owner common.Address, amount *big.Int) (*Receipt, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.get(m.allowances, token, owner).Cmp(amount) >= 0 {
		return nil, nil
	}
	if owner != m.account {
		return nil, fmt.Errorf("%w: owner %s", ErrInsufficientAllowance, owner.Hex())
	}

	before, after := m.enter(OpApprove)
	if before != nil {
		return nil, before
	}
	m.set(m.allowances, token, owner, amount)
	receipt := m.mine(OpApprove)
	if after != nil {
		return nil, after
	}
	return receipt, nil
}

// Deploy implements Adapter.
func (m *Mock) Deploy(ctx context.Context, p escrow.Params) (*Receipt, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before, after := m.enter(OpDeploy)
	if before != nil {
		return nil, before
	}
	if m.factory.Lookup(p.Side, p.OrderHash) != (common.Address{}) {
		return nil, ErrEscrowExists
	}
	if m.get(m.allowances, p.Token, p.Depositor).Cmp(p.Amount) < 0 {
		return nil, fmt.Errorf("%w: %w", ErrTxReverted, ErrInsufficientAllowance)
	}
	if m.get(m.balances, p.Token, p.Depositor).Cmp(p.Amount) < 0 {
		return nil, fmt.Errorf("%w: %w", ErrTxReverted, ErrInsufficientBalance)
	}

	e, err := m.factory.Deploy(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxReverted, err)
	}
	m.debit(m.allowances, p.Token, p.Depositor, p.Amount)
	m.debit(m.balances, p.Token, p.Depositor, p.Amount)
	m.credit(m.balances, p.Token, e.Address(), p.Amount)

	receipt := m.mine(OpDeploy)
	receipt.Escrow = e.Address()
	if after != nil {
		return nil, after
	}
	return receipt, nil
}

// FindEscrow implements Adapter.
func (m *Mock) FindEscrow(ctx context.Context, side escrow.Side, orderHash common.Hash) (common.Address, error) {
	if err := m.wait(ctx); err != nil {
		return common.Address{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, _ := m.enter(OpFind); err != nil {
		return common.Address{}, err
	}
	return m.factory.Lookup(side, orderHash), nil
}

// EscrowDetails implements Adapter.
func (m *Mock) EscrowDetails(ctx context.Context, address common.Address) (*escrow.Details, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, _ := m.enter(OpDetails); err != nil {
		return nil, err
	}
	e, err := m.factory.Escrow(address)
	if err != nil {
		return nil, ErrEscrowNotFound
	}
	d := e.Details()
	return &d, nil
}

// Withdraw implements Adapter.
func (m *Mock) Withdraw(ctx context.Context, address common.Address, secret [32]byte) (*Receipt, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before, after := m.enter(OpWithdraw)
	if before != nil {
		return nil, before
	}
	e, err := m.factory.Escrow(address)
	if err != nil {
		return nil, ErrEscrowNotFound
	}
	payout, err := e.Withdraw(m.now(), m.account, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxReverted, err)
	}
	m.pay(address, payout)

	receipt := m.mine(OpWithdraw)
	if after != nil {
		return nil, after
	}
	return receipt, nil
}

// Cancel implements Adapter.
func (m *Mock) Cancel(ctx context.Context, address common.Address) (*Receipt, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before, after := m.enter(OpCancel)
	if before != nil {
		return nil, before
	}
	e, err := m.factory.Escrow(address)
	if err != nil {
		return nil, ErrEscrowNotFound
	}
	payout, err := e.Cancel(m.now(), m.account)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxReverted, err)
	}
	m.pay(address, payout)

	receipt := m.mine(OpCancel)
	if after != nil {
		return nil, after
	}
	return receipt, nil
}

// Close implements Adapter.
func (m *Mock) Close() error {
	return nil
}

// =============================================================================
// Internals
// =============================================================================

func (m *Mock) wait(ctx context.Context) error {
	m.mu.Lock()
	d := m.latency
	m.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// enter records a call of op and pops any injected failure. Callers hold mu.
func (m *Mock) enter(op string) (before, after error) {
	m.calls[op]++
	before = m.failBefore[op]
	delete(m.failBefore, op)
	if before != nil {
		return before, nil
	}
	after = m.failAfter[op]
	delete(m.failAfter, op)
	return nil, after
}

func (m *Mock) now() int64 {
	if m.wallClock {
		return time.Now().Unix() + m.offset
	}
	return m.base + m.offset
}

func (m *Mock) mine(op string) *Receipt {
	m.txCount++
	m.block++

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], m.chainID)
	binary.BigEndian.PutUint64(buf[8:], m.txCount)
	return &Receipt{
		TxHash:      crypto.Keccak256Hash(buf[:], []byte(op)),
		BlockNumber: m.block,
	}
}

func (m *Mock) pay(from common.Address, p escrow.Payout) {
	m.debit(m.balances, p.Token, from, p.Amount)
	m.credit(m.balances, p.Token, p.Recipient, p.Amount)
}

func (m *Mock) get(ledger map[common.Address]map[common.Address]*big.Int, token, owner common.Address) *big.Int {
	if v, ok := ledger[token][owner]; ok {
		return v
	}
	return new(big.Int)
}

func (m *Mock) set(ledger map[common.Address]map[common.Address]*big.Int, token, owner common.Address, amount *big.Int) {
	if ledger[token] == nil {
		ledger[token] = make(map[common.Address]*big.Int)
	}
	ledger[token][owner] = new(big.Int).Set(amount)
}

func (m *Mock) credit(ledger map[common.Address]map[common.Address]*big.Int, token, owner common.Address, amount *big.Int) {
	m.set(ledger, token, owner, new(big.Int).Add(m.get(ledger, token, owner), amount))
}

func (m *Mock) debit(ledger map[common.Address]map[common.Address]*big.Int, token, owner common.Address, amount *big.Int) {
	m.set(ledger, token, owner, new(big.Int).Sub(m.get(ledger, token, owner), amount))
}

var _ Adapter = (*Mock)(nil)
