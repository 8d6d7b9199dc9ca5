package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
)

// Kind classifies coordinator failures.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindStateConflict  Kind = "state_conflict"
	KindAuthorization  Kind = "authorization"
	KindInvalidSecret  Kind = "invalid_secret"
	KindTimelock       Kind = "timelock"
	KindChain          Kind = "chain"
	KindDuplicateOrder Kind = "duplicate_order"
	KindInternal       Kind = "internal"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrStateConflict  = &Error{Kind: KindStateConflict}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrInvalidSecret  = &Error{Kind: KindInvalidSecret}
	ErrTimelock       = &Error{Kind: KindTimelock}
	ErrChain          = &Error{Kind: KindChain}
	ErrDuplicateOrder = &Error{Kind: KindDuplicateOrder}
)

// Error is returned by every Coordinator operation.
type Error struct {
	Kind    Kind
	Op      string // create, execute, withdraw, cancel, status
	Message string

	// Chain failures name the chain and leg.
	ChainID uint64
	Leg     order.Side

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.ChainID != 0 {
		fmt.Fprintf(&b, " (chain %d, %s leg)", e.ChainID, e.Leg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func chainError(op string, chainID uint64, side order.Side, message string, err error) *Error {
	return &Error{Kind: KindChain, Op: op, Message: message, ChainID: chainID, Leg: side, Err: err}
}

func timelockError(op string, chainID uint64, side order.Side, message string) *Error {
	return &Error{Kind: KindTimelock, Op: op, Message: message, ChainID: chainID, Leg: side}
}
