// Package main provides resolverd, the cross-chain HTLC swap resolver daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/chain"
	"github.com/klingon-exchange/htlc-resolver/internal/config"
	"github.com/klingon-exchange/htlc-resolver/internal/rpc"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
	"github.com/klingon-exchange/htlc-resolver/internal/swap"
	"github.com/klingon-exchange/htlc-resolver/internal/wallet"
	"github.com/klingon-exchange/htlc-resolver/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir      = flag.String("data-dir", "~/.htlc-resolver", "Data directory")
		listenAddr   = flag.String("listen", "", "HTTP API address, overrides config")
		logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		logFormat    = flag.String("log-format", "text", "Log format (text, json)")
		memory       = flag.Bool("memory", false, "Keep orders in memory instead of SQLite")
		generateSeed = flag.Bool("generate-seed", false, "Create an encrypted resolver seed file and exit")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		Format:     *logFormat,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("resolverd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over the config file.
	cfg.Storage.DataDir = *dataDir
	if *listenAddr != "" {
		cfg.API.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *memory {
		cfg.Storage.Driver = config.DriverMemory
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "error", err)
	}

	logOut, closeLog, err := logOutput(cfg)
	if err != nil {
		log.Fatal("Failed to open log file", "error", err)
	}
	defer closeLog()

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Format:     *logFormat,
		TimeFormat: time.TimeOnly,
		Output:     logOut,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(*dataDir))

	if *generateSeed {
		if err := writeSeedFile(log, cfg); err != nil {
			log.Fatal("Failed to generate seed", "error", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := openRegistry(log, cfg)
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer registry.Close()

	key, err := resolverKey(log, cfg)
	if err != nil {
		log.Fatal("Failed to load resolver key", "error", err)
	}
	log.Info("Resolver key loaded", "address", key.Address().Hex())

	chains, err := openChains(ctx, log, cfg, key)
	if err != nil {
		log.Fatal("Failed to initialize chains", "error", err)
	}
	defer chains.Close()

	coordinator := swap.NewCoordinator(&swap.Config{
		Registry:        registry,
		Chains:          chains,
		MinTimelock:     cfg.Timelock.Min,
		MaxTimelock:     cfg.Timelock.Max,
		DefaultTimelock: cfg.Timelock.Default,
		Version:         version,
		Logger:          log,
	})
	defer coordinator.Close()

	server := rpc.NewServer(coordinator)
	if err := server.Start(cfg.API.Listen); err != nil {
		log.Fatal("Failed to start HTTP API", "error", err)
	}

	printBanner(log, cfg, server.Addr(), key.Address().Hex())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()
	if err := server.Stop(); err != nil {
		log.Error("Error stopping HTTP API", "error", err)
	}

	log.Info("Goodbye!")
}

func logOutput(cfg *config.Config) (io.Writer, func(), error) {
	if cfg.Logging.File == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := logging.OpenFile(cfg.ResolvePath(cfg.Logging.File))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openRegistry(log *logging.Logger, cfg *config.Config) (storage.Registry, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("Using in-memory order registry, orders are lost on restart")
		return storage.NewMemoryRegistry(), nil
	}

	var passphrase []byte
	if env := cfg.Storage.PassphraseEnv; env != "" {
		passphrase = []byte(os.Getenv(env))
	}
	store, err := storage.New(&storage.Config{
		DataDir:    cfg.Storage.DataDir,
		Passphrase: passphrase,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Storage initialized", "path", store.Path(), "sealed", store.Sealed())
	return store, nil
}

// resolverKey loads the configured key. When every chain is a mock and no
// key is configured a throwaway key is generated.
func resolverKey(log *logging.Logger, cfg *config.Config) (*wallet.Key, error) {
	src := wallet.KeySource{
		SeedFile: cfg.ResolvePath(cfg.Wallet.SeedFile),
		Account:  cfg.Wallet.Account,
		Index:    cfg.Wallet.Index,
	}
	if env := cfg.Wallet.PrivateKeyEnv; env != "" {
		src.PrivateKeyHex = os.Getenv(env)
	}
	if env := cfg.Wallet.PassphraseEnv; env != "" {
		src.Password = os.Getenv(env)
	}

	key, err := wallet.LoadKey(src)
	if err == nil || !errors.Is(err, wallet.ErrNoKeySource) || cfg.HasLiveChains() {
		return key, err
	}

	log.Warn("No resolver key configured, using an ephemeral key for mock chains")
	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	w, err := wallet.NewFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	return w.Key(0, 0)
}

func openChains(ctx context.Context, log *logging.Logger, cfg *config.Config, key *wallet.Key) (*chain.Registry, error) {
	registry := chain.NewRegistry()
	for _, cc := range cfg.Chains {
		var adapter chain.Adapter
		if cc.Mock {
			m := chain.NewMock(cc.ChainID, key.Address(), time.Now().Unix())
			m.UseWallClock()
			if err := fundMock(log, m, cc.Funding, key.Address()); err != nil {
				registry.Close()
				return nil, fmt.Errorf("chain %d: %w", cc.ChainID, err)
			}
			adapter = m
		} else {
			factory, err := cc.FactoryAddress()
			if err != nil {
				registry.Close()
				return nil, err
			}
			evm, err := chain.DialEVM(ctx, chain.EVMConfig{
				ChainID:       cc.ChainID,
				RPCURL:        cc.RPCURL,
				Factory:       factory,
				Confirmations: cc.Confirmations,
				Key:           key.ECDSA(),
				Logger:        log,
			})
			if err != nil {
				registry.Close()
				return nil, fmt.Errorf("chain %d: %w", cc.ChainID, err)
			}
			adapter = evm
		}

		if err := registry.Register(adapter); err != nil {
			adapter.Close()
			registry.Close()
			return nil, err
		}
		log.Info("Chain registered", "chain_id", cc.ChainID, "name", chainName(cc), "mock", cc.Mock)
	}
	return registry, nil
}

func fundMock(log *logging.Logger, m *chain.Mock, funding []config.MockFunding, resolver common.Address) error {
	for i := range funding {
		token, owner, amount, err := funding[i].Resolve(resolver)
		if err != nil {
			return err
		}
		m.Mint(token, owner, amount)
		if funding[i].Approve {
			m.Approve(token, owner, amount)
		}
		log.Debug("Mock balance funded", "chain_id", m.ChainID(), "token", token.Hex(), "owner", owner.Hex(), "amount", amount.String())
	}
	return nil
}

func chainName(cc config.ChainConfig) string {
	if cc.Name != "" {
		return cc.Name
	}
	return chain.NetworkName(cc.ChainID)
}

func writeSeedFile(log *logging.Logger, cfg *config.Config) error {
	path := cfg.ResolvePath(cfg.Wallet.SeedFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("seed file %s already exists", path)
	}
	password := os.Getenv(cfg.Wallet.PassphraseEnv)
	if password == "" {
		return fmt.Errorf("set %s to the seed file password", cfg.Wallet.PassphraseEnv)
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return err
	}
	sealed, err := wallet.EncryptMnemonic(mnemonic, password)
	if err != nil {
		return err
	}
	if err := wallet.SaveEncryptedSeed(sealed, path); err != nil {
		return err
	}

	w, err := wallet.NewFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	key, err := w.Key(cfg.Wallet.Account, cfg.Wallet.Index)
	if err != nil {
		return err
	}

	log.Info("Seed file written", "path", path, "address", key.Address().Hex(),
		"path_bip44", wallet.DerivationPath(cfg.Wallet.Account, cfg.Wallet.Index))
	fmt.Println("Write down this mnemonic and keep it offline:")
	fmt.Println(mnemonic)
	return nil
}

func printBanner(log *logging.Logger, cfg *config.Config, addr, resolver string) {
	log.Info("")
	log.Info("=================================================")
	log.Info("  HTLC Swap Resolver")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Resolver: %s", resolver)
	log.Info("  Chains:")
	for _, cc := range cfg.Chains {
		mode := "rpc"
		if cc.Mock {
			mode = "mock"
		}
		log.Infof("    %d %s (%s)", cc.ChainID, chainName(cc), mode)
	}
	log.Info("")
	log.Infof("  API: http://%s", addr)
	log.Infof("  WS:  ws://%s/ws", addr)
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
