// Package config loads and validates the resolver daemon configuration.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration for the resolver daemon.
type Config struct {
	// HTTP API
	API APIConfig `yaml:"api"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Timelock bounds applied to new orders and deployments.
	Timelock TimelockConfig `yaml:"timelock"`

	// Wallet selects the resolver signing key.
	Wallet WalletConfig `yaml:"wallet"`

	// Chains served by this resolver. At least two are required.
	Chains []ChainConfig `yaml:"chains"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	// Listen is the host:port of the HTTP API.
	Listen string `yaml:"listen"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// Driver is sqlite or memory.
	Driver string `yaml:"driver"`

	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`

	// PassphraseEnv names the environment variable holding the secret
	// sealing passphrase. Empty disables sealing.
	PassphraseEnv string `yaml:"passphrase_env"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stdout).
	File string `yaml:"file"`
}

// TimelockConfig bounds order timelocks relative to now.
type TimelockConfig struct {
	Min     time.Duration `yaml:"min"`
	Max     time.Duration `yaml:"max"`
	Default time.Duration `yaml:"default"`
}

// WalletConfig selects the resolver key. PrivateKeyEnv takes precedence over SeedFile.
type WalletConfig struct {
	// PrivateKeyEnv names the environment variable holding a hex private key.
	PrivateKeyEnv string `yaml:"private_key_env"`

	// SeedFile is an encrypted mnemonic file, relative to the data dir.
	SeedFile string `yaml:"seed_file"`

	// PassphraseEnv names the environment variable holding the seed file passphrase.
	PassphraseEnv string `yaml:"passphrase_env"`

	// BIP-44 account and address index of the resolver key.
	Account uint32 `yaml:"account"`
	Index   uint32 `yaml:"index"`
}

// ChainConfig describes one served chain.
type ChainConfig struct {
	ChainID uint64 `yaml:"chain_id"`
	Name    string `yaml:"name,omitempty"`
	RPCURL  string `yaml:"rpc_url,omitempty"`

	// Factory is the escrow factory address. Empty selects the known deployment.
	Factory string `yaml:"factory,omitempty"`

	// Confirmations to wait for after each transaction.
	Confirmations uint64 `yaml:"confirmations,omitempty"`

	// Mock runs the chain in-process on the deterministic mock adapter.
	Mock bool `yaml:"mock,omitempty"`

	// Funding seeds token balances on a mock chain at startup.
	Funding []MockFunding `yaml:"funding,omitempty"`
}

// MockFunding credits Amount of Token to Owner on a mock chain. An empty
// Owner selects the resolver account. Approve also grants the factory an
// allowance of Amount, as a maker would before execute.
type MockFunding struct {
	Token   string `yaml:"token"`
	Owner   string `yaml:"owner,omitempty"`
	Amount  string `yaml:"amount"`
	Approve bool   `yaml:"approve,omitempty"`
}

// Resolve parses the entry, substituting resolver for an empty owner.
func (f *MockFunding) Resolve(resolver common.Address) (token, owner common.Address, amount *big.Int, err error) {
	if !common.IsHexAddress(f.Token) {
		return token, owner, nil, fmt.Errorf("%w: funding token %q is not an address", ErrInvalidConfig, f.Token)
	}
	token = common.HexToAddress(f.Token)

	owner = resolver
	if f.Owner != "" {
		if !common.IsHexAddress(f.Owner) {
			return token, owner, nil, fmt.Errorf("%w: funding owner %q is not an address", ErrInvalidConfig, f.Owner)
		}
		owner = common.HexToAddress(f.Owner)
	}

	amount, err = helpers.ParseAmount(f.Amount)
	if err != nil || amount.Sign() == 0 {
		return token, owner, nil, fmt.Errorf("%w: funding amount %q must be a positive integer", ErrInvalidConfig, f.Amount)
	}
	return token, owner, amount, nil
}

// FactoryAddress resolves the factory for this chain.
func (c *ChainConfig) FactoryAddress() (common.Address, error) {
	if c.Factory == "" {
		if addr := KnownFactory(c.ChainID); addr != (common.Address{}) {
			return addr, nil
		}
		return common.Address{}, fmt.Errorf("%w: chain %d has no factory address", ErrInvalidConfig, c.ChainID)
	}
	if !common.IsHexAddress(c.Factory) {
		return common.Address{}, fmt.Errorf("%w: chain %d factory %q is not an address", ErrInvalidConfig, c.ChainID, c.Factory)
	}
	return common.HexToAddress(c.Factory), nil
}

// DefaultConfig returns a Config with sensible defaults. The default chains
// are mocks so a fresh daemon runs without external RPC.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Listen: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			Driver:        DriverSQLite,
			DataDir:       "~/.htlc-resolver",
			PassphraseEnv: "RESOLVER_DB_PASSPHRASE",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Timelock: TimelockConfig{
			Min:     time.Hour,
			Max:     48 * time.Hour,
			Default: 2 * time.Hour,
		},
		Wallet: WalletConfig{
			PrivateKeyEnv: "RESOLVER_PRIVATE_KEY",
			SeedFile:      "wallet.seed",
			PassphraseEnv: "RESOLVER_WALLET_PASSPHRASE",
		},
		Chains: []ChainConfig{
			{ChainID: 11155111, Name: "Ethereum Sepolia", Mock: true},
			{ChainID: 80002, Name: "Polygon Amoy", Mock: true},
		},
	}
}

// Tokens funded on the default mock chains.
const (
	DevSepoliaToken = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	DevAmoyToken    = "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582"

	// DevMaker is the first account of the standard development mnemonic.
	DevMaker = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	devFundingAmount = "1000000000000000000000000"
)

// devFunding gives DevMaker an approved balance and the resolver liquidity.
func devFunding(token string) []MockFunding {
	return []MockFunding{
		{Token: token, Owner: DevMaker, Amount: devFundingAmount, Approve: true},
		{Token: token, Amount: devFundingAmount},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.API.Listen == "" {
		return fmt.Errorf("%w: api.listen is required", ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("%w: storage.data_dir is required for sqlite", ErrInvalidConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	t := c.Timelock
	if t.Min <= 0 || t.Max <= t.Min {
		return fmt.Errorf("%w: timelock bounds must satisfy 0 < min < max", ErrInvalidConfig)
	}
	if t.Default <= t.Min || t.Default >= t.Max {
		return fmt.Errorf("%w: timelock.default must lie strictly between min and max", ErrInvalidConfig)
	}

	if len(c.Chains) < 2 {
		return fmt.Errorf("%w: at least two chains are required", ErrInvalidConfig)
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for i := range c.Chains {
		ch := &c.Chains[i]
		if ch.ChainID == 0 {
			return fmt.Errorf("%w: chains[%d].chain_id is required", ErrInvalidConfig, i)
		}
		if seen[ch.ChainID] {
			return fmt.Errorf("%w: chain %d listed twice", ErrInvalidConfig, ch.ChainID)
		}
		seen[ch.ChainID] = true

		if ch.Mock {
			for j := range ch.Funding {
				if _, _, _, err := ch.Funding[j].Resolve(common.Address{}); err != nil {
					return fmt.Errorf("chain %d funding[%d]: %w", ch.ChainID, j, err)
				}
			}
			continue
		}
		if len(ch.Funding) > 0 {
			return fmt.Errorf("%w: chain %d: funding applies to mock chains only", ErrInvalidConfig, ch.ChainID)
		}
		if ch.RPCURL == "" {
			return fmt.Errorf("%w: chain %d needs rpc_url or mock", ErrInvalidConfig, ch.ChainID)
		}
		if _, err := ch.FactoryAddress(); err != nil {
			return err
		}
	}

	return nil
}

// HasLiveChains reports whether any chain talks to a real RPC endpoint.
func (c *Config) HasLiveChains() bool {
	for _, ch := range c.Chains {
		if !ch.Mock {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	configPath := ConfigPath(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	// An explicit chain list replaces the defaults.
	cfg.Chains = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = DefaultConfig().Chains
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# HTLC Resolver Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ResolvePath expands p and, when relative, places it under the data dir.
func (c *Config) ResolvePath(p string) string {
	p = ExpandPath(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ExpandPath(c.Storage.DataDir), p)
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
