package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

const orderColumns = `hash, intent_hash, maker, src_chain_id, dst_chain_id,
	src_token, dst_token, src_amount, dst_amount, timelock, hash_lock, secret,
	status, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Create implements Registry.
func (s *Storage) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.get(ctx, tx, o.Hash)
	switch {
	case err == nil:
		if existing.SameContent(o) {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, o.Hash.Hex())
	case !errors.Is(err, ErrOrderNotFound):
		return nil, err
	}

	if o.IntentHash != (common.Hash{}) {
		var hash string
		err := tx.QueryRowContext(ctx, "SELECT hash FROM orders WHERE intent_hash = ?", o.IntentHash.Hex()).Scan(&hash)
		if err == nil {
			return s.get(ctx, tx, common.HexToHash(hash))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up intent: %w", err)
		}
	}

	status := o.Status
	if status == 0 {
		status = order.StatusPending
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	secret, err := s.encodeSecret(o.Hash, o.Secret)
	if err != nil {
		return nil, err
	}

	var intent interface{}
	if o.IntentHash != (common.Hash{}) {
		intent = o.IntentHash.Hex()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.Hash.Hex(), intent, o.Maker.Hex(), o.SrcChainID, o.DstChainID,
		o.SrcToken.Hex(), o.DstToken.Hex(), o.SrcAmount.String(), o.DstAmount.String(),
		o.Timelock, o.HashLock.Hex(), secret,
		status.String(), createdAt.Unix(), createdAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, side := range []order.Side{order.SideSource, order.SideDestination} {
		leg := *o.Leg(side)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_legs (
				order_hash, side, chain_id, depositor, escrow,
				deploy_tx, withdraw_tx, cancel_tx, state, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			o.Hash.Hex(), string(side), leg.ChainID, addrText(leg.Depositor), addrText(leg.Escrow),
			hashText(leg.DeployTx), hashText(leg.WithdrawTx), hashText(leg.CancelTx),
			string(leg.State), createdAt.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s leg: %w", side, err)
		}
	}

	stored, err := s.get(ctx, tx, o.Hash)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return stored, nil
}

// Get implements Registry.
func (s *Storage) Get(ctx context.Context, hash common.Hash) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, s.db, hash)
}

// Transition implements Registry.
func (s *Storage) Transition(ctx context.Context, hash common.Hash, from, to order.Status) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !from.CanTransition(to) {
		current, err := s.get(ctx, s.db, hash)
		if err != nil {
			return nil, err
		}
		return current, fmt.Errorf("%w: %s -> %s is not allowed", ErrStatusConflict, from, to)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE hash = ? AND status = ?
	`, to.String(), time.Now().Unix(), hash.Hex(), from.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	current, err := s.get(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return current, fmt.Errorf("%w: %s -> %s, current %s", ErrStatusConflict, from, to, current.Status)
	}
	return current, nil
}

// RecordLeg implements Registry.
func (s *Storage) RecordLeg(ctx context.Context, hash common.Hash, side order.Side, leg order.Leg) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	result, err := tx.ExecContext(ctx, `
		UPDATE order_legs SET
			chain_id = ?, depositor = ?, escrow = ?,
			deploy_tx = ?, withdraw_tx = ?, cancel_tx = ?,
			state = ?, updated_at = ?
		WHERE order_hash = ? AND side = ?
	`,
		leg.ChainID, addrText(leg.Depositor), addrText(leg.Escrow),
		hashText(leg.DeployTx), hashText(leg.WithdrawTx), hashText(leg.CancelTx),
		string(leg.State), now,
		hash.Hex(), string(side),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s leg: %w", side, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrOrderNotFound
	}

	if _, err := tx.ExecContext(ctx, "UPDATE orders SET updated_at = ? WHERE hash = ?", now, hash.Hex()); err != nil {
		return nil, fmt.Errorf("failed to touch order: %w", err)
	}

	stored, err := s.get(ctx, tx, hash)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit leg: %w", err)
	}
	return stored, nil
}

// List implements Registry.
func (s *Storage) List(ctx context.Context, filter OrderFilter) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filter.where()
	query := "SELECT " + orderColumns + " FROM orders" + where + " ORDER BY created_at DESC, hash ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	var orders []*order.Order
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	rows.Close()

	// Legs are loaded after the cursor is released: the pool has one connection.
	for _, o := range orders {
		if err := s.loadLegs(ctx, s.db, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Count implements Registry.
func (s *Storage) Count(ctx context.Context, filter OrderFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := filter.where()
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// where renders the filter as a SQL WHERE clause, or "" when it matches everything.
func (f *OrderFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st.String())
		}
	}
	if f.Maker != (common.Address{}) {
		conds = append(conds, "maker = ?")
		args = append(args, f.Maker.Hex())
	}
	if f.ChainID != 0 {
		conds = append(conds, "(src_chain_id = ? OR dst_chain_id = ?)")
		args = append(args, f.ChainID, f.ChainID)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Storage) get(ctx context.Context, q querier, hash common.Hash) (*order.Order, error) {
	row := q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE hash = ?", hash.Hex())
	o, err := s.scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadLegs(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Storage) scanOrder(row rowScanner) (*order.Order, error) {
	var (
		hash, maker, srcToken, dstToken string
		srcAmount, dstAmount, hashLock  string
		secret, status                  string
		intent                          sql.NullString
		createdAt, updatedAt            int64
		o                               order.Order
	)

	err := row.Scan(
		&hash, &intent, &maker, &o.SrcChainID, &o.DstChainID,
		&srcToken, &dstToken, &srcAmount, &dstAmount, &o.Timelock, &hashLock, &secret,
		&status, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	o.Hash = common.HexToHash(hash)
	if intent.Valid {
		o.IntentHash = common.HexToHash(intent.String)
	}
	o.Maker = common.HexToAddress(maker)
	o.SrcToken = common.HexToAddress(srcToken)
	o.DstToken = common.HexToAddress(dstToken)
	o.HashLock = common.HexToHash(hashLock)

	var ok bool
	if o.SrcAmount, ok = new(big.Int).SetString(srcAmount, 10); !ok {
		return nil, fmt.Errorf("corrupt src_amount for order %s", hash)
	}
	if o.DstAmount, ok = new(big.Int).SetString(dstAmount, 10); !ok {
		return nil, fmt.Errorf("corrupt dst_amount for order %s", hash)
	}

	if o.Status, err = order.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("corrupt status for order %s: %w", hash, err)
	}
	if o.Secret, err = s.decodeSecret(o.Hash, secret); err != nil {
		return nil, err
	}

	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &o, nil
}

func (s *Storage) loadLegs(ctx context.Context, q querier, o *order.Order) error {
	rows, err := q.QueryContext(ctx, `
		SELECT side, chain_id, depositor, escrow, deploy_tx, withdraw_tx, cancel_tx, state
		FROM order_legs WHERE order_hash = ?
	`, o.Hash.Hex())
	if err != nil {
		return fmt.Errorf("failed to load legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var side, depositor, escrow, deployTx, withdrawTx, cancelTx, state string
		var leg order.Leg
		if err := rows.Scan(&side, &leg.ChainID, &depositor, &escrow, &deployTx, &withdrawTx, &cancelTx, &state); err != nil {
			return fmt.Errorf("failed to scan leg: %w", err)
		}
		leg.Depositor = common.HexToAddress(depositor)
		leg.Escrow = common.HexToAddress(escrow)
		leg.DeployTx = common.HexToHash(deployTx)
		leg.WithdrawTx = common.HexToHash(withdrawTx)
		leg.CancelTx = common.HexToHash(cancelTx)
		leg.State = order.LegState(state)

		switch order.Side(side) {
		case order.SideSource:
			o.Source = leg
		case order.SideDestination:
			o.Destination = leg
		default:
			return fmt.Errorf("corrupt leg side %q for order %s", side, o.Hash.Hex())
		}
	}
	return rows.Err()
}

func (s *Storage) encodeSecret(hash common.Hash, secret order.Secret) (string, error) {
	if s.sealer == nil {
		return secret.Hex(), nil
	}
	return s.sealer.seal(secret[:], hash[:])
}

func (s *Storage) decodeSecret(hash common.Hash, value string) (order.Secret, error) {
	if !isSealed(value) {
		b, err := helpers.HexToBytes32(value)
		if err != nil {
			return order.Secret{}, fmt.Errorf("corrupt secret for order %s: %w", hash.Hex(), err)
		}
		return order.Secret(b), nil
	}
	if s.sealer == nil {
		return order.Secret{}, ErrSealed
	}
	plain, err := s.sealer.open(value, hash[:])
	if err != nil {
		return order.Secret{}, err
	}
	defer helpers.SecureClear(plain)

	var out order.Secret
	copy(out[:], plain)
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func addrText(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func hashText(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

var _ Registry = (*Storage)(nil)
