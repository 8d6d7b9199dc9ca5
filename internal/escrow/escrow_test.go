package escrow

import (
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	depositor = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	resolver  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	token     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

const timelock = 1_700_000_000

func testEscrow(secret [32]byte) *Escrow {
	return New(common.HexToAddress("0x1000000000000000000000000000000000000001"), Params{
		OrderHash: common.HexToHash("0xabcd"),
		Side:      SideSource,
		Depositor: depositor,
		Token:     token,
		Amount:    big.NewInt(1000),
		HashLock:  sha256.Sum256(secret[:]),
		Timelock:  timelock,
	})
}

func TestWithdrawGuards(t *testing.T) {
	secret := [32]byte{1, 2, 3}
	wrong := [32]byte{9}

	tests := []struct {
		name    string
		now     int64
		preimg  [32]byte
		wantErr error
	}{
		{"wrong preimage", timelock - 10, wrong, ErrInvalidPreimage},
		{"at timelock", timelock, secret, ErrTimelockExpired},
		{"after timelock", timelock + 1, secret, ErrTimelockExpired},
		{"valid", timelock - 1, secret, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEscrow(secret)
			payout, err := e.Withdraw(tt.now, resolver, tt.preimg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Withdraw() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if e.State() != StatePending {
					t.Errorf("state = %s after failed withdraw", e.State())
				}
				return
			}
			if payout.Recipient != resolver || payout.Amount.Int64() != 1000 {
				t.Errorf("payout = %+v", payout)
			}
			d := e.Details()
			if d.State != StateWithdrawn || d.Secret != secret {
				t.Errorf("details after withdraw = %+v", d)
			}
		})
	}
}

func TestCancelGuards(t *testing.T) {
	secret := [32]byte{7}

	e := testEscrow(secret)
	if _, err := e.Cancel(timelock-1, resolver); !errors.Is(err, ErrTimelockNotExpired) {
		t.Fatalf("early Cancel() error = %v", err)
	}

	payout, err := e.Cancel(timelock, resolver)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if payout.Recipient != depositor {
		t.Errorf("refund recipient = %s, want depositor %s", payout.Recipient.Hex(), depositor.Hex())
	}
	if e.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", e.State())
	}
}

func TestSingleShot(t *testing.T) {
	secret := [32]byte{5}

	withdrawn := testEscrow(secret)
	if _, err := withdrawn.Withdraw(timelock-1, resolver, secret); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if _, err := withdrawn.Withdraw(timelock-1, resolver, secret); !errors.Is(err, ErrNotPending) {
		t.Errorf("second Withdraw() error = %v", err)
	}
	if _, err := withdrawn.Cancel(timelock+1, resolver); !errors.Is(err, ErrNotPending) {
		t.Errorf("Cancel() after withdraw error = %v", err)
	}

	cancelled := testEscrow(secret)
	if _, err := cancelled.Cancel(timelock, resolver); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := cancelled.Cancel(timelock, resolver); !errors.Is(err, ErrNotPending) {
		t.Errorf("second Cancel() error = %v", err)
	}
}

func TestFactoryUniqueness(t *testing.T) {
	f := NewFactory(common.HexToAddress("0xFAC7000000000000000000000000000000000000"))
	orderHash := common.HexToHash("0x01")
	p := Params{OrderHash: orderHash, Side: SideSource, Depositor: depositor, Token: token, Amount: big.NewInt(1), Timelock: timelock}

	first, err := f.Deploy(p)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if _, err := f.Deploy(p); !errors.Is(err, ErrAlreadyDeployed) {
		t.Errorf("second Deploy() error = %v, want ErrAlreadyDeployed", err)
	}

	// The other side of the same order is a separate slot.
	p.Side = SideDestination
	second, err := f.Deploy(p)
	if err != nil {
		t.Fatalf("Deploy(destination) error = %v", err)
	}
	if first.Address() == second.Address() {
		t.Error("source and destination escrows share an address")
	}

	if got := f.Lookup(SideSource, orderHash); got != first.Address() {
		t.Errorf("Lookup(source) = %s", got.Hex())
	}
	if got := f.Lookup(SideSource, common.HexToHash("0x02")); got != (common.Address{}) {
		t.Errorf("Lookup(unknown) = %s, want zero", got.Hex())
	}
	if _, err := f.Escrow(common.Address{}); !errors.Is(err, ErrUnknownEscrow) {
		t.Errorf("Escrow(zero) error = %v", err)
	}
}

func TestEscrowAddressDeterministic(t *testing.T) {
	a := NewFactory(common.HexToAddress("0x01"))
	b := NewFactory(common.HexToAddress("0x01"))
	h := common.HexToHash("0xfeed")
	if a.EscrowAddress(SideSource, h) != b.EscrowAddress(SideSource, h) {
		t.Error("address derivation is not deterministic")
	}
	if a.EscrowAddress(SideSource, h) == NewFactory(common.HexToAddress("0x02")).EscrowAddress(SideSource, h) {
		t.Error("different factories produced the same escrow address")
	}
}
