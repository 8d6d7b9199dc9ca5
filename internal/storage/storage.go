// Package storage provides the order registry: an in-memory implementation
// for tests and dev mode, and a persistent one using SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "resolver.db"

const (
	settingSealSalt  = "seal_salt"
	settingSealCheck = "seal_check"
	sealCheckValue   = "htlc-resolver"
)

// Storage is the SQLite-backed Registry.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	sealer *sealer // nil when secrets are stored in plain hex
}

// Config holds storage configuration.
type Config struct {
	DataDir string

	// Passphrase enables sealing of order secrets at rest. A database created
	// with a passphrase must always be opened with the same one.
	Passphrase []byte
}

// New opens (creating if needed) the database in cfg.DataDir.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if len(cfg.Passphrase) > 0 {
		if err := s.initSealer(cfg.Passphrase); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// Sealed returns true if secrets are encrypted at rest.
func (s *Storage) Sealed() bool {
	return s.sealer != nil
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Settings table (sealing salt and check value)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	);

	-- Orders table. hash is keccak256 of the canonical encoding.
	CREATE TABLE IF NOT EXISTS orders (
		hash TEXT PRIMARY KEY,
		intent_hash TEXT,

		maker TEXT NOT NULL,
		src_chain_id INTEGER NOT NULL,
		dst_chain_id INTEGER NOT NULL,
		src_token TEXT NOT NULL,
		dst_token TEXT NOT NULL,

		-- Decimal strings, amounts can exceed 64 bits
		src_amount TEXT NOT NULL,
		dst_amount TEXT NOT NULL,

		timelock INTEGER NOT NULL,
		hash_lock TEXT NOT NULL,

		-- Hex, or sealed:<hex> when a passphrase is configured
		secret TEXT NOT NULL,

		status TEXT NOT NULL DEFAULT 'pending',

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_intent ON orders(intent_hash);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_maker ON orders(maker);
	CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);

	-- Order legs (one row per side)
	CREATE TABLE IF NOT EXISTS order_legs (
		order_hash TEXT NOT NULL,
		side TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		depositor TEXT NOT NULL,

		escrow TEXT NOT NULL DEFAULT '',
		deploy_tx TEXT NOT NULL DEFAULT '',
		withdraw_tx TEXT NOT NULL DEFAULT '',
		cancel_tx TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',

		updated_at INTEGER,

		PRIMARY KEY (order_hash, side),
		FOREIGN KEY (order_hash) REFERENCES orders(hash)
	);

	CREATE INDEX IF NOT EXISTS idx_order_legs_chain ON order_legs(chain_id);
	CREATE INDEX IF NOT EXISTS idx_order_legs_escrow ON order_legs(escrow);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations runs schema migrations for existing databases.
// Errors are ignored since columns may already exist.
func (s *Storage) runMigrations() error {
	migrations := []string{
		"ALTER TABLE order_legs ADD COLUMN cancel_tx TEXT NOT NULL DEFAULT ''",
	}

	for _, migration := range migrations {
		_, _ = s.db.Exec(migration)
	}

	return nil
}

// initSealer loads or creates the sealing salt and verifies the passphrase.
func (s *Storage) initSealer(passphrase []byte) error {
	ctx := context.Background()

	saltHex, err := s.getSetting(ctx, settingSealSalt)
	if errors.Is(err, sql.ErrNoRows) {
		var plain int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&plain); err != nil {
			return fmt.Errorf("failed to count orders: %w", err)
		}
		if plain > 0 {
			return errors.New("cannot enable sealing on a database with unsealed orders")
		}

		salt, err := helpers.GenerateSecureRandom(sealSaltLen)
		if err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		sl, err := newSealer(passphrase, salt)
		if err != nil {
			return err
		}
		check, err := sl.seal([]byte(sealCheckValue), nil)
		if err != nil {
			return err
		}
		if err := s.setSetting(ctx, settingSealSalt, helpers.BytesToHex(salt)); err != nil {
			return err
		}
		if err := s.setSetting(ctx, settingSealCheck, check); err != nil {
			return err
		}
		s.sealer = sl
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read seal salt: %w", err)
	}

	salt, err := helpers.HexToBytes(saltHex)
	if err != nil {
		return fmt.Errorf("failed to decode seal salt: %w", err)
	}
	sl, err := newSealer(passphrase, salt)
	if err != nil {
		return err
	}
	check, err := s.getSetting(ctx, settingSealCheck)
	if err != nil {
		return fmt.Errorf("failed to read seal check: %w", err)
	}
	if _, err := sl.open(check, nil); err != nil {
		return err
	}
	s.sealer = sl
	return nil
}

func (s *Storage) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	return value, err
}

func (s *Storage) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
