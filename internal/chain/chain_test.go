package chain

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/escrow"
)

var (
	testResolver = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testMaker    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testToken    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

const testNow = int64(1700000000)

func testParams(secret [32]byte) escrow.Params {
	return escrow.Params{
		OrderHash: common.HexToHash("0x5048ca466d51e575dbfe462e7b3bf2bd62cb28cdb4e650da2f49d13168687e4f"),
		Side:      escrow.SideSource,
		Depositor: testMaker,
		Token:     testToken,
		Amount:    big.NewInt(1000),
		HashLock:  sha256.Sum256(secret[:]),
		Timelock:  testNow + 3600,
	}
}

func fundedMock(t *testing.T) *Mock {
	t.Helper()
	m := NewMock(1, testResolver, testNow)
	m.Mint(testToken, testMaker, big.NewInt(1000))
	m.Approve(testToken, testMaker, big.NewInt(1000))
	return m
}

func TestMockDeployMovesFunds(t *testing.T) {
	ctx := context.Background()
	m := fundedMock(t)

	receipt, err := m.Deploy(ctx, testParams([32]byte{1}))
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if receipt.Escrow == (common.Address{}) {
		t.Fatal("expected escrow address in receipt")
	}
	if got := m.BalanceOf(testToken, receipt.Escrow); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("escrow balance = %s, want 1000", got)
	}
	if got := m.BalanceOf(testToken, testMaker); got.Sign() != 0 {
		t.Errorf("maker balance = %s, want 0", got)
	}
	if got := m.Allowance(testToken, testMaker); got.Sign() != 0 {
		t.Errorf("maker allowance = %s, want 0", got)
	}

	found, err := m.FindEscrow(ctx, escrow.SideSource, testParams([32]byte{1}).OrderHash)
	if err != nil {
		t.Fatalf("FindEscrow failed: %v", err)
	}
	if found != receipt.Escrow {
		t.Errorf("FindEscrow = %s, want %s", found.Hex(), receipt.Escrow.Hex())
	}
}

func TestMockDeployDuplicate(t *testing.T) {
	ctx := context.Background()
	m := fundedMock(t)
	m.Mint(testToken, testMaker, big.NewInt(1000))
	m.Approve(testToken, testMaker, big.NewInt(2000))

	if _, err := m.Deploy(ctx, testParams([32]byte{1})); err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if _, err := m.Deploy(ctx, testParams([32]byte{1})); !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("expected ErrEscrowExists, got %v", err)
	}
}

func TestMockDeployRequiresAllowance(t *testing.T) {
	m := NewMock(1, testResolver, testNow)
	m.Mint(testToken, testMaker, big.NewInt(1000))

	_, err := m.Deploy(context.Background(), testParams([32]byte{1}))
	if !errors.Is(err, ErrInsufficientAllowance) || !IsRevert(err) {
		t.Fatalf("expected reverted ErrInsufficientAllowance, got %v", err)
	}
}

func TestMockEnsureAllowance(t *testing.T) {
	ctx := context.Background()
	m := NewMock(1, testResolver, testNow)

	// Own account: approves
	receipt, err := m.EnsureAllowance(ctx, testToken, testResolver, big.NewInt(5))
	if err != nil || receipt == nil {
		t.Fatalf("EnsureAllowance for own account: receipt=%v err=%v", receipt, err)
	}
	if got := m.Allowance(testToken, testResolver); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("allowance = %s, want 5", got)
	}

	// Already sufficient: no transaction
	receipt, err = m.EnsureAllowance(ctx, testToken, testResolver, big.NewInt(5))
	if err != nil || receipt != nil {
		t.Fatalf("expected no-op, got receipt=%v err=%v", receipt, err)
	}

	// Third party without allowance
	if _, err := m.EnsureAllowance(ctx, testToken, testMaker, big.NewInt(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestMockWithdrawAndCancel(t *testing.T) {
	ctx := context.Background()
	secret := [32]byte{7}

	t.Run("withdraw pays resolver", func(t *testing.T) {
		m := fundedMock(t)
		receipt, err := m.Deploy(ctx, testParams(secret))
		if err != nil {
			t.Fatalf("Deploy failed: %v", err)
		}

		if _, err := m.Withdraw(ctx, receipt.Escrow, [32]byte{8}); !errors.Is(err, escrow.ErrInvalidPreimage) {
			t.Fatalf("expected ErrInvalidPreimage, got %v", err)
		}
		if _, err := m.Withdraw(ctx, receipt.Escrow, secret); err != nil {
			t.Fatalf("Withdraw failed: %v", err)
		}
		if got := m.BalanceOf(testToken, testResolver); got.Cmp(big.NewInt(1000)) != 0 {
			t.Errorf("resolver balance = %s, want 1000", got)
		}

		d, err := m.EscrowDetails(ctx, receipt.Escrow)
		if err != nil {
			t.Fatalf("EscrowDetails failed: %v", err)
		}
		if d.State != escrow.StateWithdrawn || d.Secret != secret {
			t.Errorf("unexpected details: state=%s secret=%x", d.State, d.Secret)
		}
	})

	t.Run("cancel refunds depositor", func(t *testing.T) {
		m := fundedMock(t)
		receipt, err := m.Deploy(ctx, testParams(secret))
		if err != nil {
			t.Fatalf("Deploy failed: %v", err)
		}

		if _, err := m.Cancel(ctx, receipt.Escrow); !errors.Is(err, escrow.ErrTimelockNotExpired) {
			t.Fatalf("expected ErrTimelockNotExpired, got %v", err)
		}
		m.Advance(time.Hour)
		if _, err := m.Cancel(ctx, receipt.Escrow); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if got := m.BalanceOf(testToken, testMaker); got.Cmp(big.NewInt(1000)) != 0 {
			t.Errorf("maker balance = %s, want 1000", got)
		}
		if _, err := m.Cancel(ctx, receipt.Escrow); !errors.Is(err, escrow.ErrNotPending) {
			t.Fatalf("expected ErrNotPending on second cancel, got %v", err)
		}
	})
}

func TestMockFailureInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("rpc unavailable")

	m := fundedMock(t)
	m.FailNext(OpDeploy, boom)
	if _, err := m.Deploy(ctx, testParams([32]byte{1})); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if addr, _ := m.FindEscrow(ctx, escrow.SideSource, testParams([32]byte{1}).OrderHash); addr != (common.Address{}) {
		t.Fatal("FailNext must not deploy")
	}

	m.FailAfterSubmit(OpDeploy, boom)
	if _, err := m.Deploy(ctx, testParams([32]byte{1})); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if addr, _ := m.FindEscrow(ctx, escrow.SideSource, testParams([32]byte{1}).OrderHash); addr == (common.Address{}) {
		t.Fatal("FailAfterSubmit must still deploy")
	}
	if got := m.Calls(OpDeploy); got != 2 {
		t.Errorf("Calls(deploy) = %d, want 2", got)
	}
}

func TestMockLatencyHonoursContext(t *testing.T) {
	m := NewMock(1, testResolver, testNow)
	m.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.Now(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestMockDeterministicTxHashes(t *testing.T) {
	ctx := context.Background()
	a, b := fundedMock(t), fundedMock(t)

	ra, err := a.Deploy(ctx, testParams([32]byte{1}))
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	rb, err := b.Deploy(ctx, testParams([32]byte{1}))
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if ra.TxHash != rb.TxHash || ra.Escrow != rb.Escrow {
		t.Error("identical mocks produced different receipts")
	}
}

func TestMockClock(t *testing.T) {
	ctx := context.Background()
	m := NewMock(1, testResolver, testNow)

	now, _ := m.Now(ctx)
	if now != testNow {
		t.Errorf("Now = %d, want %d", now, testNow)
	}
	m.Advance(90 * time.Second)
	if now, _ = m.Now(ctx); now != testNow+90 {
		t.Errorf("Now after Advance = %d, want %d", now, testNow+90)
	}
	m.SetTime(5)
	if now, _ = m.Now(ctx); now != 5 {
		t.Errorf("Now after SetTime = %d, want 5", now)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewMock(137, testResolver, testNow)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(NewMock(1, testResolver, testNow)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(NewMock(1, testResolver, testNow)); err == nil {
		t.Error("expected error registering chain 1 twice")
	}

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 137 {
		t.Errorf("IDs() = %v, want [1 137]", ids)
	}
	if _, err := r.Get(56); !errors.Is(err, ErrUnsupportedChain) {
		t.Errorf("expected ErrUnsupportedChain, got %v", err)
	}
	if !r.Has(137) || r.Has(56) {
		t.Error("Has() returned wrong result")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestNetworks(t *testing.T) {
	tests := []struct {
		chainID  uint64
		expected string
	}{
		{1, "Ethereum"},
		{137, "Polygon"},
		{31337, "Local Devnet"},
		{999999, "chain-999999"},
	}

	for _, tt := range tests {
		if got := NetworkName(tt.chainID); got != tt.expected {
			t.Errorf("NetworkName(%d) = %q, want %q", tt.chainID, got, tt.expected)
		}
	}

	for _, id := range ListNetworks(Testnet) {
		p, _ := LookupNetwork(id)
		if p.Network != Testnet {
			t.Errorf("chain %d listed as testnet but is %s", id, p.Network)
		}
	}
}
