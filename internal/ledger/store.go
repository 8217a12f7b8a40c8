// Package ledger defines the durable tables behind the trade engine and ships
// the embedded backends.
//
// Tables:
//   - accounts:     user_id -> cash
//   - holdings:     (user_id, symbol) -> shares, last price, value
//   - transactions: append-only trade log, read newest first
//
// Every mutation goes through Store.Update, which runs a function inside one
// atomic unit: either all of its writes become visible or none do.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/papertrade/internal/model"
)

var (
	// ErrAccountNotFound is returned when no account exists for a user ID.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned by CreateAccount for a duplicate user ID.
	ErrAccountExists = errors.New("account already exists")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidRow is returned when a write would break a table invariant.
	ErrInvalidRow = errors.New("invalid row")
)

// Reader reads committed (or, inside Update, staged) ledger state.
type Reader interface {
	// Account returns the account for userID or ErrAccountNotFound.
	Account(ctx context.Context, userID string) (model.Account, error)

	// Holding returns the holding for (userID, symbol). ok is false when no row exists.
	Holding(ctx context.Context, userID, symbol string) (h model.Holding, ok bool, err error)

	// Holdings returns all holdings of userID ordered by symbol.
	Holdings(ctx context.Context, userID string) ([]model.Holding, error)

	// Transactions returns the trade log of userID, most recent first.
	// limit <= 0 returns everything.
	Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

// Tx is the write side of an atomic unit.
type Tx interface {
	Reader

	// CreateAccount inserts a new account or returns ErrAccountExists.
	CreateAccount(ctx context.Context, a model.Account) error

	// PutAccount overwrites an existing account.
	PutAccount(ctx context.Context, a model.Account) error

	// PutHolding inserts or replaces the (UserID, Symbol) row. Shares must be positive.
	PutHolding(ctx context.Context, h model.Holding) error

	// DeleteHolding removes the (userID, symbol) row if present.
	DeleteHolding(ctx context.Context, userID, symbol string) error

	// AppendTransaction adds t to the trade log.
	AppendTransaction(ctx context.Context, t model.Transaction) error
}

// Store is a ledger backend.
type Store interface {
	// Update runs fn in one atomic unit scoped to userID's rows. If fn returns
	// an error, or the commit fails, nothing fn wrote is visible.
	Update(ctx context.Context, userID string, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(r Reader) error) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// CommitError marks a failure of the backend itself (begin, write or commit),
// as opposed to an error returned by the caller's Update function.
type CommitError struct {
	Op  string
	Err error
}

func (e *CommitError) Error() string {
	return "ledger " + e.Op + ": " + e.Err.Error()
}

func (e *CommitError) Unwrap() error { return e.Err }

// IsBackendFailure reports whether err came from the storage backend rather
// than from ledger rules.
func IsBackendFailure(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}

// ValidateHolding enforces that a persisted holding has a full key and positive shares.
func ValidateHolding(h model.Holding) error {
	if h.UserID == "" || h.Symbol == "" {
		return fmt.Errorf("%w: holding key (%q, %q) incomplete", ErrInvalidRow, h.UserID, h.Symbol)
	}
	if h.Shares <= 0 {
		return fmt.Errorf("%w: holding %s/%s has %d shares", ErrInvalidRow, h.UserID, h.Symbol, h.Shares)
	}
	return nil
}
