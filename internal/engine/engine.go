package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/quote"
)

// Config holds engine settings.
type Config struct {
	InitialCash      decimal.Decimal // balance of accounts opened without an explicit amount
	QuoteConcurrency int             // parallel quote lookups when revaluing a portfolio
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialCash:      decimal.NewFromInt(10000),
		QuoteConcurrency: 8,
	}
}

// Publisher receives every committed transaction. Publish is called with the
// user's lock held, in commit order per user, and must not block.
type Publisher interface {
	Publish(tx model.Transaction)
}

// PublisherFunc is a function adapter for Publisher.
type PublisherFunc func(model.Transaction)

func (f PublisherFunc) Publish(tx model.Transaction) { f(tx) }

// Stats counts engine outcomes since start.
type Stats struct {
	Buys          int64
	Sells         int64
	Rejected      int64
	StoreFailures int64
}

// Engine executes trades against a ledger.
type Engine struct {
	cfg       Config
	store     ledger.Store
	quotes    quote.Provider
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	locks     *keyedMutex

	buys          atomic.Int64
	sells         atomic.Int64
	rejected      atomic.Int64
	storeFailures atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPublisher sets the sink for committed transactions.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// New creates an Engine.
func New(store ledger.Store, quotes quote.Provider, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.InitialCash.IsNegative() {
		cfg.InitialCash = def.InitialCash
	}
	if cfg.QuoteConcurrency < 1 {
		cfg.QuoteConcurrency = def.QuoteConcurrency
	}

	e := &Engine{
		cfg:    cfg,
		store:  store,
		quotes: quotes,
		logger: slog.Default(),
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Buys:          e.buys.Load(),
		Sells:         e.sells.Load(),
		Rejected:      e.rejected.Load(),
		StoreFailures: e.storeFailures.Load(),
	}
}

// Ping checks the ledger backend.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

// resolve prices symbol. Called before any lock is taken.
func (e *Engine) resolve(ctx context.Context, symbol string) (model.Quote, error) {
	q, err := e.quotes.Lookup(ctx, symbol)
	switch {
	case errors.Is(err, quote.ErrNotFound):
		return model.Quote{}, newError(KindUnknownSymbol, err, "%s", symbol)
	case err != nil:
		return model.Quote{}, newError(KindQuoteUnavailable, err, "%s", symbol)
	case !q.Price.IsPositive():
		return model.Quote{}, newError(KindQuoteUnavailable, nil, "%s: non-positive price %s", symbol, q.Price)
	}

	q.Symbol = quote.NormalizeSymbol(q.Symbol)
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}

// update runs fn under userID's lock inside one ledger update and maps the
// outcome onto engine errors. onCommit, if set, runs after a successful
// commit while the lock is still held, so it observes commits in order.
func (e *Engine) update(ctx context.Context, userID string, fn func(tx ledger.Tx) error, onCommit func()) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	err := e.store.Update(ctx, userID, fn)
	if err == nil {
		if onCommit != nil {
			onCommit()
		}
		return nil
	}

	var declined *Error
	if errors.As(err, &declined) {
		return declined
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return newError(KindNoSuchAccount, nil, "%s", userID)
	}
	if errors.Is(err, ledger.ErrAccountExists) {
		return newError(KindAccountExists, nil, "%s", userID)
	}

	e.storeFailures.Add(1)
	e.logger.Warn("ledger update failed", "user_id", userID, "backend", ledger.IsBackendFailure(err), "error", err)
	return newError(KindStoreFailure, err, "ledger update for %s rolled back", userID)
}

// view runs a read-only fn and maps failures.
func (e *Engine) view(ctx context.Context, userID string, fn func(r ledger.Reader) error) error {
	err := e.store.View(ctx, fn)
	if err == nil {
		return nil
	}
	var declined *Error
	if errors.As(err, &declined) {
		return declined
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return newError(KindNoSuchAccount, nil, "%s", userID)
	}
	return newError(KindStoreFailure, err, "read ledger for %s", userID)
}

func (e *Engine) reject(err error, attrs ...any) error {
	if KindOf(err) != KindStoreFailure {
		e.rejected.Add(1)
		e.logger.Debug("request declined", append(attrs, "reason", err)...)
	}
	return err
}
