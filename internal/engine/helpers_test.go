package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/quote"
)

var testEpoch = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

type backend struct {
	name string
	open func(t *testing.T) ledger.Store
}

var backends = []backend{
	{"memory", func(t *testing.T) ledger.Store { return ledger.NewMemoryStore() }},
	{"leveldb", func(t *testing.T) ledger.Store {
		db, err := leveldb.Open(storage.NewMemStorage(), nil)
		if err != nil {
			t.Fatalf("leveldb.Open() error = %v", err)
		}
		return ledger.NewLevelStore(db, nil)
	}},
}

// forEachBackend runs fn once per embedded ledger backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, store ledger.Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t)
			t.Cleanup(func() { store.Close() })
			fn(t, store)
		})
	}
}

func prices(kv ...any) *quote.Static {
	table := make(map[string]decimal.Decimal)
	for i := 0; i < len(kv); i += 2 {
		table[kv[i].(string)] = decimal.RequireFromString(kv[i+1].(string))
	}
	return quote.NewStatic(table)
}

func newTestEngine(store ledger.Store, quotes quote.Provider) *Engine {
	return New(store, quotes, DefaultConfig(), WithClock(func() time.Time { return testEpoch }))
}

func openAccount(t *testing.T, e *Engine, userID, cash string) {
	t.Helper()
	c := decimal.RequireFromString(cash)
	if _, err := e.OpenAccount(context.Background(), userID, &c); err != nil {
		t.Fatalf("OpenAccount(%s) error = %v", userID, err)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ledgerState is everything a trade may touch for one user.
type ledgerState struct {
	Account      model.Account
	Holdings     []model.Holding
	Transactions []model.Transaction
}

func snapshot(t *testing.T, store ledger.Store, userID string) ledgerState {
	t.Helper()
	ctx := context.Background()
	var s ledgerState
	err := store.View(ctx, func(r ledger.Reader) error {
		var err error
		if s.Account, err = r.Account(ctx, userID); err != nil {
			return err
		}
		if s.Holdings, err = r.Holdings(ctx, userID); err != nil {
			return err
		}
		s.Transactions, err = r.Transactions(ctx, userID, 0)
		return err
	})
	if err != nil {
		t.Fatalf("snapshot(%s) error = %v", userID, err)
	}
	return s
}

func assertUnchanged(t *testing.T, before, after ledgerState) {
	t.Helper()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("ledger changed by a declined trade:\nbefore %+v\nafter  %+v", before, after)
	}
}

func holdingOf(s ledgerState, symbol string) (model.Holding, bool) {
	for _, h := range s.Holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return model.Holding{}, false
}
