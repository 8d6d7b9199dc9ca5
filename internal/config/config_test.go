package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Listen != "127.0.0.1:8080" {
		t.Errorf("expected 127.0.0.1:8080, got %s", cfg.API.Listen)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Storage.Driver)
	}
	if cfg.Timelock.Min != time.Hour || cfg.Timelock.Max != 48*time.Hour || cfg.Timelock.Default != 2*time.Hour {
		t.Errorf("unexpected timelock bounds: %+v", cfg.Timelock)
	}
	if len(cfg.Chains) != 2 {
		t.Fatalf("expected 2 default chains, got %d", len(cfg.Chains))
	}
	if cfg.HasLiveChains() {
		t.Error("default chains should be mocks")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.API.Listen = "" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"sqlite without data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"min not positive", func(c *Config) { c.Timelock.Min = 0 }},
		{"max below min", func(c *Config) { c.Timelock.Max = 30 * time.Minute }},
		{"default outside window", func(c *Config) { c.Timelock.Default = 72 * time.Hour }},
		{"single chain", func(c *Config) { c.Chains = c.Chains[:1] }},
		{"duplicate chain", func(c *Config) { c.Chains[1].ChainID = c.Chains[0].ChainID }},
		{"zero chain id", func(c *Config) { c.Chains[0].ChainID = 0 }},
		{"live chain without rpc", func(c *Config) {
			c.Chains[0].Mock = false
			c.Chains[0].Funding = nil
		}},
		{"live chain without factory", func(c *Config) {
			c.Chains[0].Mock = false
			c.Chains[0].Funding = nil
			c.Chains[0].RPCURL = "http://localhost:8545"
		}},
		{"bad factory", func(c *Config) {
			c.Chains[0].Mock = false
			c.Chains[0].Funding = nil
			c.Chains[0].RPCURL = "http://localhost:8545"
			c.Chains[0].Factory = "not-an-address"
		}},
		{"funding on live chain", func(c *Config) {
			c.Chains[0].Mock = false
			c.Chains[0].RPCURL = "http://localhost:8545"
			c.Chains[0].Factory = "0x1111111111111111111111111111111111111111"
		}},
		{"bad funding amount", func(c *Config) { c.Chains[1].Funding[0].Amount = "0" }},
		{"bad funding token", func(c *Config) { c.Chains[1].Funding[1].Token = "usdc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Storage.Driver = DriverMemory
	cfg.Storage.DataDir = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory driver should not need a data dir: %v", err)
	}
}

func TestFactoryAddress(t *testing.T) {
	explicit := ChainConfig{ChainID: 1, Factory: "0x1111111111111111111111111111111111111111"}
	addr, err := explicit.FactoryAddress()
	if err != nil {
		t.Fatalf("FactoryAddress() error = %v", err)
	}
	if addr != common.HexToAddress("0x1111111111111111111111111111111111111111") {
		t.Errorf("unexpected factory %s", addr.Hex())
	}

	devnet := ChainConfig{ChainID: 31337}
	addr, err = devnet.FactoryAddress()
	if err != nil {
		t.Fatalf("FactoryAddress() error = %v", err)
	}
	if addr != KnownFactory(31337) {
		t.Errorf("expected known devnet factory, got %s", addr.Hex())
	}

	if _, err := (&ChainConfig{ChainID: 999}).FactoryAddress(); err == nil {
		t.Error("expected error for a chain without factory")
	}
}

func TestMockFundingResolve(t *testing.T) {
	resolver := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	f := MockFunding{Token: DevSepoliaToken, Amount: "1000"}
	token, owner, amount, err := f.Resolve(resolver)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if token != common.HexToAddress(DevSepoliaToken) {
		t.Errorf("token = %s, want %s", token.Hex(), DevSepoliaToken)
	}
	if owner != resolver {
		t.Errorf("empty owner should select the resolver, got %s", owner.Hex())
	}
	if amount.String() != "1000" {
		t.Errorf("amount = %s, want 1000", amount)
	}

	f.Owner = DevMaker
	if _, owner, _, _ = f.Resolve(resolver); owner != common.HexToAddress(DevMaker) {
		t.Errorf("owner = %s, want %s", owner.Hex(), DevMaker)
	}

	bad := []MockFunding{
		{Token: "usdc", Amount: "1"},
		{Token: DevSepoliaToken, Owner: "maker", Amount: "1"},
		{Token: DevSepoliaToken, Amount: "0"},
		{Token: DevSepoliaToken, Amount: "-5"},
		{Token: DevSepoliaToken},
	}
	for _, f := range bad {
		if _, _, _, err := f.Resolve(resolver); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Resolve(%+v) error = %v, want ErrInvalidConfig", f, err)
		}
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "resolver-config-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ConfigFileName)); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.Storage.DataDir != tmpDir {
		t.Errorf("expected DataDir %s, got %s", tmpDir, cfg.Storage.DataDir)
	}

	// Reload from the file just written.
	again, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() reload error = %v", err)
	}
	if again.Timelock != cfg.Timelock {
		t.Errorf("timelock changed across save/load: %+v vs %+v", again.Timelock, cfg.Timelock)
	}
	if len(again.Chains) != len(cfg.Chains) {
		t.Errorf("chains changed across save/load: %d vs %d", len(again.Chains), len(cfg.Chains))
	}
}

func TestLoadConfigReadsExisting(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "resolver-config-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	custom := `api:
  listen: 0.0.0.0:9000
storage:
  driver: memory
logging:
  level: debug
timelock:
  min: 30m
  max: 24h
  default: 1h
chains:
  - chain_id: 31337
    name: Local Devnet
    rpc_url: http://127.0.0.1:8545
    confirmations: 1
  - chain_id: 31338
    mock: true
    funding:
      - token: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
        owner: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
        amount: "5000"
        approve: true
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(custom), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.API.Listen != "0.0.0.0:9000" {
		t.Errorf("expected 0.0.0.0:9000, got %s", cfg.API.Listen)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("expected memory driver, got %s", cfg.Storage.Driver)
	}
	if cfg.Timelock.Min != 30*time.Minute || cfg.Timelock.Default != time.Hour {
		t.Errorf("unexpected timelock: %+v", cfg.Timelock)
	}
	if len(cfg.Chains) != 2 || cfg.Chains[0].ChainID != 31337 || cfg.Chains[0].Confirmations != 1 {
		t.Fatalf("unexpected chains: %+v", cfg.Chains)
	}
	if !cfg.Chains[1].Mock {
		t.Error("expected second chain to be a mock")
	}
	if f := cfg.Chains[1].Funding; len(f) != 1 || f[0].Amount != "5000" || !f[0].Approve {
		t.Errorf("unexpected funding: %+v", f)
	}
	if cfg.Wallet.PrivateKeyEnv != "RESOLVER_PRIVATE_KEY" {
		t.Errorf("unset wallet fields should keep defaults, got %q", cfg.Wallet.PrivateKeyEnv)
	}
	if !cfg.HasLiveChains() {
		t.Error("expected a live chain")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "resolver-config-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"

	configPath := filepath.Join(tmpDir, "nested", "test-config.yaml")
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "# HTLC Resolver Configuration") {
		t.Error("config file missing header comment")
	}
	if !strings.Contains(content, "level: debug") {
		t.Error("config file missing logging level")
	}
	if !strings.Contains(content, "default: 2h0m0s") {
		t.Error("config file should encode durations as strings")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/.htlc-resolver", filepath.Join(home, ".htlc-resolver")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.expected {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/resolver"

	tests := []struct {
		input    string
		expected string
	}{
		{"wallet.seed", "/var/lib/resolver/wallet.seed"},
		{"/etc/resolver/wallet.seed", "/etc/resolver/wallet.seed"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := cfg.ResolvePath(tt.input); got != tt.expected {
			t.Errorf("ResolvePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestConfigPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		dataDir  string
		expected string
	}{
		{"~/.htlc-resolver", filepath.Join(home, ".htlc-resolver", ConfigFileName)},
		{"/tmp/test", filepath.Join("/tmp/test", ConfigFileName)},
	}

	for _, tt := range tests {
		if got := ConfigPath(tt.dataDir); got != tt.expected {
			t.Errorf("ConfigPath(%q) = %q, want %q", tt.dataDir, got, tt.expected)
		}
	}
}
