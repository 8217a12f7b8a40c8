package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/rickgao/papertrade/internal/model"
)

type holdingKey struct {
	userID string
	symbol string
}

// MemoryStore keeps the ledger in process memory. Writes of one Update are
// staged and applied together when the function succeeds.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	holdings map[holdingKey]model.Holding
	txlog    map[string][]model.Transaction
	closed   bool
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]model.Account),
		holdings: make(map[holdingKey]model.Holding),
		txlog:    make(map[string][]model.Transaction),
	}
}

// Update runs fn with exclusive access to the store.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &CommitError{Op: "begin", Err: ErrClosed}
	}

	tx := &memTx{
		store:    s,
		accounts: make(map[string]model.Account),
		holdings: make(map[holdingKey]*model.Holding),
	}
	if err := fn(tx); err != nil {
		return err
	}

	tx.apply()
	return nil
}

// View runs fn under a read lock.
func (s *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return fn(memReader{s})
}

// Ping always succeeds on an open store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memReader reads committed state. Callers hold s.mu.
type memReader struct {
	s *MemoryStore
}

func (r memReader) Account(_ context.Context, userID string) (model.Account, error) {
	a, ok := r.s.accounts[userID]
	if !ok {
		return model.Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r memReader) Holding(_ context.Context, userID, symbol string) (model.Holding, bool, error) {
	h, ok := r.s.holdings[holdingKey{userID, symbol}]
	return h, ok, nil
}

func (r memReader) Holdings(_ context.Context, userID string) ([]model.Holding, error) {
	var out []model.Holding
	for k, h := range r.s.holdings {
		if k.userID == userID {
			out = append(out, h)
		}
	}
	sortHoldings(out)
	return out, nil
}

func (r memReader) Transactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	return newestFirst(r.s.txlog[userID], nil, limit), nil
}

// memTx overlays staged writes on top of committed state.
type memTx struct {
	store    *MemoryStore
	accounts map[string]model.Account
	holdings map[holdingKey]*model.Holding // nil value marks a staged delete
	appended []model.Transaction
}

func (tx *memTx) Account(ctx context.Context, userID string) (model.Account, error) {
	if a, ok := tx.accounts[userID]; ok {
		return a, nil
	}
	return memReader{tx.store}.Account(ctx, userID)
}

func (tx *memTx) Holding(ctx context.Context, userID, symbol string) (model.Holding, bool, error) {
	if h, ok := tx.holdings[holdingKey{userID, symbol}]; ok {
		if h == nil {
			return model.Holding{}, false, nil
		}
		return *h, true, nil
	}
	return memReader{tx.store}.Holding(ctx, userID, symbol)
}

func (tx *memTx) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	merged := make(map[string]model.Holding)
	for k, h := range tx.store.holdings {
		if k.userID == userID {
			merged[k.symbol] = h
		}
	}
	for k, h := range tx.holdings {
		if k.userID != userID {
			continue
		}
		if h == nil {
			delete(merged, k.symbol)
		} else {
			merged[k.symbol] = *h
		}
	}

	out := make([]model.Holding, 0, len(merged))
	for _, h := range merged {
		out = append(out, h)
	}
	sortHoldings(out)
	return out, nil
}

func (tx *memTx) Transactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	var staged []model.Transaction
	for _, t := range tx.appended {
		if t.UserID == userID {
			staged = append(staged, t)
		}
	}
	return newestFirst(tx.store.txlog[userID], staged, limit), nil
}

func (tx *memTx) CreateAccount(ctx context.Context, a model.Account) error {
	if _, err := tx.Account(ctx, a.UserID); err == nil {
		return ErrAccountExists
	}
	tx.accounts[a.UserID] = a
	return nil
}

func (tx *memTx) PutAccount(ctx context.Context, a model.Account) error {
	if _, err := tx.Account(ctx, a.UserID); err != nil {
		return err
	}
	tx.accounts[a.UserID] = a
	return nil
}

func (tx *memTx) PutHolding(_ context.Context, h model.Holding) error {
	if err := ValidateHolding(h); err != nil {
		return err
	}
	tx.holdings[holdingKey{h.UserID, h.Symbol}] = &h
	return nil
}

func (tx *memTx) DeleteHolding(_ context.Context, userID, symbol string) error {
	tx.holdings[holdingKey{userID, symbol}] = nil
	return nil
}

func (tx *memTx) AppendTransaction(_ context.Context, t model.Transaction) error {
	tx.appended = append(tx.appended, t)
	return nil
}

// apply publishes staged writes. Caller holds the store's write lock.
func (tx *memTx) apply() {
	s := tx.store
	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for k, h := range tx.holdings {
		if h == nil {
			delete(s.holdings, k)
		} else {
			s.holdings[k] = *h
		}
	}
	for _, t := range tx.appended {
		s.txlog[t.UserID] = append(s.txlog[t.UserID], t)
	}
}

func sortHoldings(hs []model.Holding) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Symbol < hs[j].Symbol })
}

// newestFirst returns committed followed by staged, reversed and truncated to limit.
func newestFirst(committed, staged []model.Transaction, limit int) []model.Transaction {
	n := len(committed) + len(staged)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]model.Transaction, 0, n)
	for i := len(staged) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, staged[i])
	}
	for i := len(committed) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, committed[i])
	}
	return out
}
