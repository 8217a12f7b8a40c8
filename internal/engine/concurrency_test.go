package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
)

// reconcile checks cash and holdings against the trade log.
func reconcile(t *testing.T, s ledgerState, initialCash decimal.Decimal) {
	t.Helper()

	cash := initialCash
	shares := make(map[string]int64)
	for _, tr := range s.Transactions {
		cash = cash.Add(tr.CashDelta())
		shares[tr.Symbol] += tr.ShareDelta()
	}

	if s.Account.Cash.IsNegative() {
		t.Errorf("Cash = %s, negative", s.Account.Cash)
	}
	if !cash.Equal(s.Account.Cash) {
		t.Errorf("Cash = %s, trade log implies %s", s.Account.Cash, cash)
	}
	for _, h := range s.Holdings {
		if h.Shares <= 0 {
			t.Errorf("holding %s has %d shares", h.Symbol, h.Shares)
		}
		if h.Shares != shares[h.Symbol] {
			t.Errorf("holding %s = %d shares, trade log implies %d", h.Symbol, h.Shares, shares[h.Symbol])
		}
		delete(shares, h.Symbol)
	}
	for sym, n := range shares {
		if n != 0 {
			t.Errorf("no holding for %s but trade log implies %d shares", sym, n)
		}
	}

	// balance_after chains from oldest to newest
	running := initialCash
	for i := len(s.Transactions) - 1; i >= 0; i-- {
		tr := s.Transactions[i]
		running = running.Add(tr.CashDelta())
		if !running.Equal(tr.BalanceAfter) {
			t.Errorf("transaction %s BalanceAfter = %s, want %s", tr.ID, tr.BalanceAfter, running)
		}
	}
}

func TestConcurrentTradesOneAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("AAPL", "7", "MSFT", "13"))
		openAccount(t, e, "alice", "500")
		ctx := context.Background()

		const workers = 8
		const rounds = 25
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				sym := []string{"AAPL", "MSFT"}[w%2]
				for i := 0; i < rounds; i++ {
					var err error
					if (w+i)%3 == 0 {
						_, err = e.Sell(ctx, "alice", sym, 2)
					} else {
						_, err = e.Buy(ctx, "alice", sym, 3)
					}
					switch {
					case err == nil,
						errors.Is(err, ErrInsufficientFunds),
						errors.Is(err, ErrNoSuchHolding),
						errors.Is(err, ErrInvalidShareCount):
					default:
						t.Errorf("unexpected trade error: %v", err)
					}
				}
			}(w)
		}
		wg.Wait()

		s := snapshot(t, store, "alice")
		reconcile(t, s, dec("500"))

		stats := e.Stats()
		if got := int64(len(s.Transactions)); got != stats.Buys+stats.Sells {
			t.Errorf("len(Transactions) = %d, committed trades = %d", got, stats.Buys+stats.Sells)
		}
		if n := e.locks.size(); n != 0 {
			t.Errorf("keyed locks left = %d, want 0", n)
		}
	})
}

func TestConcurrentAccountsIndependent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("AAPL", "10"))
		users := []string{"u1", "u2", "u3", "u4"}
		for _, u := range users {
			openAccount(t, e, u, "1000")
		}
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, u := range users {
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(u string) {
					defer wg.Done()
					if _, err := e.Buy(ctx, u, "AAPL", 1); err != nil {
						t.Errorf("Buy(%s) error = %v", u, err)
					}
				}(u)
			}
		}
		wg.Wait()

		for _, u := range users {
			s := snapshot(t, store, u)
			reconcile(t, s, dec("1000"))
			if !s.Account.Cash.Equal(dec("900")) {
				t.Errorf("%s Cash = %s, want 900", u, s.Account.Cash)
			}
			for _, tr := range s.Transactions {
				if tr.UserID != u {
					t.Errorf("%s history contains %s's trade", u, tr.UserID)
				}
			}
		}
	})
}

func TestKeyedMutexSerializes(t *testing.T) {
	k := newKeyedMutex()
	var (
		mu     sync.Mutex
		inside = map[string]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()

			mu.Lock()
			inside[key]++
			if inside[key] > 1 {
				t.Errorf("two holders of %s", key)
			}
			mu.Unlock()

			mu.Lock()
			inside[key]--
			mu.Unlock()
		}([]string{"a", "b"}[i%2])
	}
	wg.Wait()

	if n := k.size(); n != 0 {
		t.Errorf("size() = %d after all unlocks, want 0", n)
	}
}

func TestPublishOrderMatchesCommitOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		var (
			mu        sync.Mutex
			published []model.Transaction
		)
		pub := PublisherFunc(func(tx model.Transaction) {
			mu.Lock()
			published = append(published, tx)
			mu.Unlock()
		})
		e := New(store, prices("AAPL", "5"), DefaultConfig(),
			WithClock(func() time.Time { return testEpoch }),
			WithPublisher(pub),
		)
		openAccount(t, e, "alice", "1000")
		ctx := context.Background()

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					if (w+i)%2 == 0 {
						e.Sell(ctx, "alice", "AAPL", 1)
					} else {
						e.Buy(ctx, "alice", "AAPL", 1)
					}
				}
			}(w)
		}
		wg.Wait()

		running := dec("1000")
		for i, tx := range published {
			running = running.Add(tx.CashDelta())
			if !running.Equal(tx.BalanceAfter) {
				t.Fatalf("published[%d] BalanceAfter = %s, want %s; stream is out of commit order", i, tx.BalanceAfter, running)
			}
		}

		s := snapshot(t, store, "alice")
		if len(published) != len(s.Transactions) {
			t.Errorf("published %d trades, ledger has %d", len(published), len(s.Transactions))
		}
	})
}
