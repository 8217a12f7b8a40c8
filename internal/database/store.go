package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
)

// LedgerStore is a ledger.Store backed by PostgreSQL.
type LedgerStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedgerStore wraps an open pool. The schema must already exist (see Migrate).
func NewLedgerStore(pool *pgxpool.Pool, logger *slog.Logger) *LedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerStore{pool: pool, logger: logger}
}

// Update runs fn in a database transaction holding the row lock on userID's account.
func (s *LedgerStore) Update(ctx context.Context, userID string, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &ledger.CommitError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	// Absent rows lock nothing; CreateAccount relies on the primary key instead.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return &ledger.CommitError{Op: "lock", Err: err}
	}

	ptx := &pgTx{tx: tx, batch: &pgx.Batch{}}
	if err := fn(ptx); err != nil {
		return err
	}
	if err := ptx.flush(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit ledger transaction failed", "user_id", userID, "error", err)
		return &ledger.CommitError{Op: "commit", Err: err}
	}
	return nil
}

// View runs fn in a read-only repeatable-read transaction.
func (s *LedgerStore) View(ctx context.Context, fn func(r ledger.Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgReader{tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping verifies the pool is healthy.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *LedgerStore) Close() error {
	s.pool.Close()
	return nil
}

// pgReader issues reads on a transaction.
type pgReader struct {
	q pgx.Tx
}

func (r pgReader) Account(ctx context.Context, userID string) (model.Account, error) {
	a := model.Account{UserID: userID}
	err := r.q.QueryRow(ctx,
		`SELECT cash, created_at FROM accounts WHERE user_id = $1`, userID,
	).Scan(&a.Cash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("select account: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (r pgReader) Holding(ctx context.Context, userID, symbol string) (model.Holding, bool, error) {
	h := model.Holding{UserID: userID, Symbol: symbol}
	err := r.q.QueryRow(ctx,
		`SELECT shares, price, value, updated_at FROM holdings WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&h.Shares, &h.Price, &h.Value, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Holding{}, false, nil
	}
	if err != nil {
		return model.Holding{}, false, fmt.Errorf("select holding: %w", err)
	}
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, true, nil
}

func (r pgReader) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := r.q.Query(ctx,
		`SELECT symbol, shares, price, value, updated_at FROM holdings WHERE user_id = $1 ORDER BY symbol`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		h := model.Holding{UserID: userID}
		if err := rows.Scan(&h.Symbol, &h.Shares, &h.Price, &h.Value, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		h.UpdatedAt = h.UpdatedAt.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r pgReader) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	sql := `SELECT id, symbol, side, shares, price, total, balance_after, executed_at
		FROM transactions WHERE user_id = $1 ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t := model.Transaction{UserID: userID}
		var side string
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Shares, &t.Price, &t.Total, &t.BalanceAfter, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Side = model.Side(side)
		t.ExecutedAt = t.ExecutedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// pgTx queues writes in a pgx.Batch. Pending writes are sent before any read
// so the caller always sees its own writes, and once more before commit.
type pgTx struct {
	tx     pgx.Tx
	batch  *pgx.Batch
	checks []func(pgconn.CommandTag) error
}

func (t *pgTx) reader(ctx context.Context) (pgReader, error) {
	if err := t.flush(ctx); err != nil {
		return pgReader{}, err
	}
	return pgReader{t.tx}, nil
}

func (t *pgTx) Account(ctx context.Context, userID string) (model.Account, error) {
	r, err := t.reader(ctx)
	if err != nil {
		return model.Account{}, err
	}
	return r.Account(ctx, userID)
}

func (t *pgTx) Holding(ctx context.Context, userID, symbol string) (model.Holding, bool, error) {
	r, err := t.reader(ctx)
	if err != nil {
		return model.Holding{}, false, err
	}
	return r.Holding(ctx, userID, symbol)
}

func (t *pgTx) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	r, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}
	return r.Holdings(ctx, userID)
}

func (t *pgTx) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	r, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}
	return r.Transactions(ctx, userID, limit)
}

func (t *pgTx) CreateAccount(ctx context.Context, a model.Account) error {
	if err := t.flush(ctx); err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (user_id, cash, created_at) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO NOTHING`,
		a.UserID, a.Cash, a.CreatedAt,
	)
	if err != nil {
		return &ledger.CommitError{Op: "insert account", Err: err}
	}
	if ct.RowsAffected() == 0 {
		return ledger.ErrAccountExists
	}
	return nil
}

func (t *pgTx) PutAccount(_ context.Context, a model.Account) error {
	t.queue(func(ct pgconn.CommandTag) error {
		if ct.RowsAffected() == 0 {
			return ledger.ErrAccountNotFound
		}
		return nil
	}, `UPDATE accounts SET cash = $2 WHERE user_id = $1`, a.UserID, a.Cash)
	return nil
}

func (t *pgTx) PutHolding(_ context.Context, h model.Holding) error {
	if err := ledger.ValidateHolding(h); err != nil {
		return err
	}
	t.queue(nil, `
		INSERT INTO holdings (user_id, symbol, shares, price, value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, symbol) DO UPDATE
		SET shares = EXCLUDED.shares, price = EXCLUDED.price, value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, h.UserID, h.Symbol, h.Shares, h.Price, h.Value, h.UpdatedAt)
	return nil
}

func (t *pgTx) DeleteHolding(_ context.Context, userID, symbol string) error {
	t.queue(nil, `DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return nil
}

func (t *pgTx) AppendTransaction(_ context.Context, tr model.Transaction) error {
	t.queue(nil, `
		INSERT INTO transactions (id, user_id, symbol, side, shares, price, total, balance_after, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tr.ID, tr.UserID, tr.Symbol, string(tr.Side), tr.Shares, tr.Price, tr.Total, tr.BalanceAfter, tr.ExecutedAt)
	return nil
}

func (t *pgTx) queue(check func(pgconn.CommandTag) error, sql string, args ...any) {
	t.batch.Queue(sql, args...)
	t.checks = append(t.checks, check)
}

// flush sends pending writes. Rule violations come back as ledger sentinels,
// everything else as a CommitError.
func (t *pgTx) flush(ctx context.Context) error {
	if t.batch.Len() == 0 {
		return nil
	}
	batch, checks := t.batch, t.checks
	t.batch, t.checks = &pgx.Batch{}, nil

	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()

	for _, check := range checks {
		ct, err := results.Exec()
		if err != nil {
			return &ledger.CommitError{Op: "write", Err: err}
		}
		if check != nil {
			if err := check(ct); err != nil {
				return err
			}
		}
	}
	return nil
}
