// Integration tests require a node with the escrow factory deployed:
//
//	TEST_RPC_URL=http://localhost:8545 TEST_FACTORY_ADDRESS=0x... \
//	go test -v ./internal/contracts/htlc/... -run TestIntegration
package htlc

import (
	"context"
	"encoding/hex"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// =============================================================================
// Unit Tests (no network required)
// =============================================================================

func TestMethodSelectors(t *testing.T) {
	tests := []struct {
		name     string
		method   []byte
		expected string
	}{
		{"deploySourceHTLC", factoryABI.Methods["deploySourceHTLC"].ID, "69515ce4"},
		{"deployDestinationHTLC", factoryABI.Methods["deployDestinationHTLC"].ID, "74948f27"},
		{"getSourceHTLC", factoryABI.Methods["getSourceHTLC"].ID, "f76500f2"},
		{"getDestinationHTLC", factoryABI.Methods["getDestinationHTLC"].ID, "80a14ad9"},
		{"withdraw", escrowABI.Methods["withdraw"].ID, "8e19899e"},
		{"cancel", escrowABI.Methods["cancel"].ID, "ea8a1af0"},
		{"getDetails", escrowABI.Methods["getDetails"].ID, "fbbf93a0"},
		{"approve", erc20ABI.Methods["approve"].ID, "095ea7b3"},
		{"allowance", erc20ABI.Methods["allowance"].ID, "dd62ed3e"},
	}

	for _, tt := range tests {
		if got := hex.EncodeToString(tt.method); got != tt.expected {
			t.Errorf("%s selector = %s, want %s", tt.name, got, tt.expected)
		}
	}
}

func TestEventTopics(t *testing.T) {
	tests := []struct {
		name     string
		id       common.Hash
		expected string
	}{
		{"SourceHTLCDeployed", factoryABI.Events["SourceHTLCDeployed"].ID, "0x3a2a7fcb6fc04b32e6657046ebcc71afc058629651a4e535475e84293fb46521"},
		{"Withdrawn", escrowABI.Events["Withdrawn"].ID, "0x5cda0d118e7c1e88d2571143d9ac8ea10bb80b315f91c19e27bd2c91bf90ee13"},
		{"Cancelled", escrowABI.Events["Cancelled"].ID, "0x37f7fee84bd656bac1447df96e3014d8a7e8352e960e827b202efad2f908ecd3"},
	}

	for _, tt := range tests {
		if got := tt.id.Hex(); got != tt.expected {
			t.Errorf("%s topic = %s, want %s", tt.name, got, tt.expected)
		}
	}
}

func TestDeployedEscrowFromReceipt(t *testing.T) {
	factory := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	escrow := common.HexToAddress("0xa16E02E87b7454126E5E10d957A927A7F5B5d2be")
	maker := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	orderHash := crypto.Keccak256Hash([]byte("order"))
	hashLock := crypto.Keccak256Hash([]byte("lock"))

	event := factoryABI.Events["SourceHTLCDeployed"]
	data, err := event.Inputs.NonIndexed().Pack(escrow, [32]byte(hashLock), big.NewInt(1700007200))
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}

	c := &Client{
		factory:        bind.NewBoundContract(factory, factoryABI, nil, nil, nil),
		factoryAddress: factory,
	}
	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: factory,
		Topics:  []common.Hash{event.ID, orderHash, common.BytesToHash(maker.Bytes())},
		Data:    data,
	}}}

	got, err := c.DeployedEscrow(receipt)
	if err != nil {
		t.Fatalf("DeployedEscrow failed: %v", err)
	}
	if got != escrow {
		t.Errorf("DeployedEscrow = %s, want %s", got.Hex(), escrow.Hex())
	}

	// Logs from other contracts are ignored
	receipt.Logs[0].Address = common.HexToAddress("0x01")
	if _, err := c.DeployedEscrow(receipt); err == nil {
		t.Error("expected error for receipt without factory event")
	}
}

func TestSecretFromReceipt(t *testing.T) {
	escrow := common.HexToAddress("0xa16E02E87b7454126E5E10d957A927A7F5B5d2be")
	actor := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i)
	}

	event := escrowABI.Events["Withdrawn"]
	data, err := event.Inputs.NonIndexed().Pack(secret)
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}

	c := &Client{}
	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: escrow,
		Topics:  []common.Hash{event.ID, crypto.Keccak256Hash([]byte("order")), common.BytesToHash(actor.Bytes())},
		Data:    data,
	}}}

	got, err := c.SecretFromReceipt(receipt, escrow)
	if err != nil {
		t.Fatalf("SecretFromReceipt failed: %v", err)
	}
	if got != secret {
		t.Errorf("SecretFromReceipt = %x, want %x", got, secret)
	}
}

func TestAddressFromPrivateKey(t *testing.T) {
	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("HexToECDSA failed: %v", err)
	}

	expected := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if got := AddressFromPrivateKey(key); got != expected {
		t.Errorf("AddressFromPrivateKey = %s, want %s", got.Hex(), expected.Hex())
	}
}

// =============================================================================
// Integration Tests (require running node)
// =============================================================================

func TestIntegrationDial(t *testing.T) {
	rpcURL := os.Getenv("TEST_RPC_URL")
	factory := os.Getenv("TEST_FACTORY_ADDRESS")
	if rpcURL == "" || factory == "" {
		t.Skip("TEST_RPC_URL or TEST_FACTORY_ADDRESS not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := Dial(ctx, rpcURL, common.HexToAddress(factory))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if client.ChainID().Sign() <= 0 {
		t.Errorf("unexpected chain ID %s", client.ChainID())
	}

	if _, err := client.LatestTime(ctx); err != nil {
		t.Fatalf("LatestTime failed: %v", err)
	}

	addr, err := client.GetSourceHTLC(ctx, crypto.Keccak256Hash([]byte("unknown order")))
	if err != nil {
		t.Fatalf("GetSourceHTLC failed: %v", err)
	}
	if addr != (common.Address{}) {
		t.Errorf("expected zero address for unknown order, got %s", addr.Hex())
	}
}
