package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/quote"
)

func TestBuyScenarioA(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("AAPL", "150"))
		openAccount(t, e, "alice", "10000")

		res, err := e.Buy(context.Background(), "alice", "aapl", 10)
		if err != nil {
			t.Fatalf("Buy() error = %v", err)
		}
		if !res.Cash.Equal(dec("8500")) {
			t.Errorf("Cash = %s, want 8500", res.Cash)
		}
		if res.Shares != 10 {
			t.Errorf("Shares = %d, want 10", res.Shares)
		}
		tr := res.Transaction
		if tr.Side != model.SideBuy || tr.Symbol != "AAPL" || tr.Shares != 10 {
			t.Errorf("Transaction = %+v, want buy 10 AAPL", tr)
		}
		if !tr.Total.Equal(dec("1500")) || !tr.Price.Equal(dec("150")) {
			t.Errorf("Transaction total/price = %s/%s, want 1500/150", tr.Total, tr.Price)
		}
		if !tr.BalanceAfter.Equal(dec("8500")) {
			t.Errorf("BalanceAfter = %s, want 8500", tr.BalanceAfter)
		}
		if !tr.ExecutedAt.Equal(testEpoch) {
			t.Errorf("ExecutedAt = %v, want %v", tr.ExecutedAt, testEpoch)
		}

		s := snapshot(t, store, "alice")
		if !s.Account.Cash.Equal(dec("8500")) {
			t.Errorf("stored Cash = %s, want 8500", s.Account.Cash)
		}
		h, ok := holdingOf(s, "AAPL")
		if !ok || h.Shares != 10 || !h.Value.Equal(dec("1500")) {
			t.Errorf("AAPL holding = %+v (ok=%v), want 10 shares worth 1500", h, ok)
		}
		if len(s.Transactions) != 1 || s.Transactions[0].ID != tr.ID {
			t.Errorf("Transactions = %+v, want exactly the buy", s.Transactions)
		}
	})
}

func TestSellScenarioB(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		quotes := prices("AAPL", "150")
		e := newTestEngine(store, quotes)
		openAccount(t, e, "alice", "10000")
		ctx := context.Background()

		if _, err := e.Buy(ctx, "alice", "AAPL", 10); err != nil {
			t.Fatalf("Buy() error = %v", err)
		}
		quotes.Set("AAPL", dec("160"))

		res, err := e.Sell(ctx, "alice", "AAPL", 10)
		if err != nil {
			t.Fatalf("Sell() error = %v", err)
		}
		if !res.Cash.Equal(dec("10100")) {
			t.Errorf("Cash = %s, want 10100", res.Cash)
		}
		if res.Shares != 0 {
			t.Errorf("Shares = %d, want 0", res.Shares)
		}
		if !res.Transaction.Total.Equal(dec("1600")) || res.Transaction.Side != model.SideSell {
			t.Errorf("Transaction = %+v, want sell total 1600", res.Transaction)
		}

		s := snapshot(t, store, "alice")
		if _, ok := holdingOf(s, "AAPL"); ok {
			t.Error("AAPL holding still present after selling everything")
		}
		if len(s.Transactions) != 2 || s.Transactions[0].Side != model.SideSell {
			t.Errorf("Transactions = %+v, want sell then buy", s.Transactions)
		}
	})
}

func TestBuyScenarioCInsufficientFunds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("XYZ", "50"))
		openAccount(t, e, "bob", "100")
		before := snapshot(t, store, "bob")

		_, err := e.Buy(context.Background(), "bob", "XYZ", 10)
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("Buy() error = %v, want ErrInsufficientFunds", err)
		}
		assertUnchanged(t, before, snapshot(t, store, "bob"))
	})
}

func TestSellScenarioDOversized(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("MSFT", "400"))
		openAccount(t, e, "carol", "10000")
		ctx := context.Background()
		if _, err := e.Buy(ctx, "carol", "MSFT", 5); err != nil {
			t.Fatalf("Buy() error = %v", err)
		}
		before := snapshot(t, store, "carol")

		_, err := e.Sell(ctx, "carol", "MSFT", 6)
		if !errors.Is(err, ErrInvalidShareCount) {
			t.Fatalf("Sell() error = %v, want ErrInvalidShareCount", err)
		}
		assertUnchanged(t, before, snapshot(t, store, "carol"))
	})
}

func TestBuyAccumulatesAndRevalues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		quotes := prices("AAPL", "100")
		e := newTestEngine(store, quotes)
		openAccount(t, e, "alice", "10000")
		ctx := context.Background()

		e.Buy(ctx, "alice", "AAPL", 10)
		quotes.Set("AAPL", dec("120.50"))
		res, err := e.Buy(ctx, "alice", "AAPL", 5)
		if err != nil {
			t.Fatalf("second Buy() error = %v", err)
		}
		if res.Shares != 15 {
			t.Errorf("Shares = %d, want 15", res.Shares)
		}
		if want := dec("8397.50"); !res.Cash.Equal(want) {
			t.Errorf("Cash = %s, want %s", res.Cash, want)
		}

		h, _ := holdingOf(snapshot(t, store, "alice"), "AAPL")
		if !h.Price.Equal(dec("120.50")) || !h.Value.Equal(dec("1807.50")) {
			t.Errorf("holding price/value = %s/%s, want 120.50/1807.50 (last-price valuation)", h.Price, h.Value)
		}
	})
}

func TestSellPartial(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		quotes := prices("MSFT", "400")
		e := newTestEngine(store, quotes)
		openAccount(t, e, "alice", "10000")
		ctx := context.Background()

		e.Buy(ctx, "alice", "MSFT", 5)
		quotes.Set("MSFT", dec("410"))
		res, err := e.Sell(ctx, "alice", "msft", 2)
		if err != nil {
			t.Fatalf("Sell() error = %v", err)
		}
		if res.Shares != 3 || !res.Cash.Equal(dec("8820")) {
			t.Errorf("result = %d shares, cash %s; want 3, 8820", res.Shares, res.Cash)
		}

		h, ok := holdingOf(snapshot(t, store, "alice"), "MSFT")
		if !ok || h.Shares != 3 || !h.Value.Equal(dec("1230")) {
			t.Errorf("MSFT holding = %+v, want 3 shares worth 1230", h)
		}
	})
}

func TestSellAllThenBuyStartsFreshRow(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		quotes := prices("AAPL", "100")
		e := newTestEngine(store, quotes)
		openAccount(t, e, "alice", "10000")
		ctx := context.Background()

		e.Buy(ctx, "alice", "AAPL", 4)
		if _, err := e.Sell(ctx, "alice", "AAPL", 4); err != nil {
			t.Fatalf("Sell() error = %v", err)
		}
		quotes.Set("AAPL", dec("90"))
		res, err := e.Buy(ctx, "alice", "AAPL", 1)
		if err != nil {
			t.Fatalf("Buy() error = %v", err)
		}
		if res.Shares != 1 {
			t.Errorf("Shares = %d, want 1", res.Shares)
		}
		h, _ := holdingOf(snapshot(t, store, "alice"), "AAPL")
		if h.Shares != 1 || !h.Value.Equal(dec("90")) {
			t.Errorf("holding = %+v, want 1 share worth 90", h)
		}
	})
}

func TestSellNeverHeld(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("AAPL", "100", "MSFT", "400"))
		openAccount(t, e, "alice", "10000")
		ctx := context.Background()
		e.Buy(ctx, "alice", "MSFT", 1)
		before := snapshot(t, store, "alice")

		_, err := e.Sell(ctx, "alice", "AAPL", 1)
		if !errors.Is(err, ErrNoSuchHolding) {
			t.Fatalf("Sell() error = %v, want ErrNoSuchHolding", err)
		}
		assertUnchanged(t, before, snapshot(t, store, "alice"))
	})
}

func TestQuoteFailures(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		quotes := prices("AAPL", "100")
		e := newTestEngine(store, quotes)
		openAccount(t, e, "alice", "10000")
		ctx := context.Background()
		e.Buy(ctx, "alice", "AAPL", 2)
		before := snapshot(t, store, "alice")

		if _, err := e.Buy(ctx, "alice", "NOPE", 1); !errors.Is(err, ErrUnknownSymbol) {
			t.Errorf("Buy(NOPE) error = %v, want ErrUnknownSymbol", err)
		}
		if _, err := e.Sell(ctx, "alice", "NOPE", 1); !errors.Is(err, ErrUnknownSymbol) {
			t.Errorf("Sell(NOPE) error = %v, want ErrUnknownSymbol", err)
		}

		quotes.Fail("AAPL", quote.ErrUnavailable)
		if _, err := e.Buy(ctx, "alice", "AAPL", 1); !errors.Is(err, ErrQuoteUnavailable) {
			t.Errorf("Buy(AAPL) error = %v, want ErrQuoteUnavailable", err)
		}
		if _, err := e.Sell(ctx, "alice", "AAPL", 1); !errors.Is(err, ErrQuoteUnavailable) {
			t.Errorf("Sell(AAPL) error = %v, want ErrQuoteUnavailable", err)
		}

		assertUnchanged(t, before, snapshot(t, store, "alice"))
	})
}

func TestCanonicalSymbolPersisted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		provider := quote.ProviderFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
			return model.Quote{Symbol: "brk.b", Name: "Berkshire Hathaway", Price: dec("400")}, nil
		})
		e := newTestEngine(store, provider)
		openAccount(t, e, "alice", "10000")

		res, err := e.Buy(context.Background(), "alice", "BRKB", 1)
		if err != nil {
			t.Fatalf("Buy() error = %v", err)
		}
		if res.Transaction.Symbol != "BRK.B" {
			t.Errorf("Transaction.Symbol = %q, want %q", res.Transaction.Symbol, "BRK.B")
		}
		if _, ok := holdingOf(snapshot(t, store, "alice"), "BRK.B"); !ok {
			t.Error("holding not stored under the canonical symbol")
		}
	})
}

func TestNonPositiveQuoteIsUnavailable(t *testing.T) {
	provider := quote.ProviderFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		return model.Quote{Symbol: symbol, Price: dec("0")}, nil
	})
	e := newTestEngine(ledger.NewMemoryStore(), provider)
	openAccount(t, e, "alice", "10000")

	if _, err := e.Buy(context.Background(), "alice", "AAPL", 1); !errors.Is(err, ErrQuoteUnavailable) {
		t.Errorf("Buy() error = %v, want ErrQuoteUnavailable", err)
	}
}

func TestInvalidInputRejectedBeforeLookup(t *testing.T) {
	var lookups int
	provider := quote.ProviderFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		lookups++
		return model.Quote{Symbol: symbol, Price: dec("1")}, nil
	})
	e := newTestEngine(ledger.NewMemoryStore(), provider)
	ctx := context.Background()

	tests := []struct {
		name   string
		user   string
		symbol string
		shares int64
	}{
		{"empty symbol", "alice", "   ", 1},
		{"zero shares", "alice", "AAPL", 0},
		{"negative shares", "alice", "AAPL", -5},
		{"empty user", "", "AAPL", 1},
		{"control char in user", "al\x00ice", "AAPL", 1},
		{"slash in symbol", "alice", "AA/PL", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Buy(ctx, tt.user, tt.symbol, tt.shares); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Buy() error = %v, want ErrInvalidInput", err)
			}
			if _, err := e.Sell(ctx, tt.user, tt.symbol, tt.shares); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Sell() error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if lookups != 0 {
		t.Errorf("provider called %d times for invalid input, want 0", lookups)
	}
}

func TestTradeWithoutAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("AAPL", "100"))
		_, err := e.Buy(context.Background(), "ghost", "AAPL", 1)
		if !errors.Is(err, ErrNoSuchAccount) {
			t.Errorf("Buy() error = %v, want ErrNoSuchAccount", err)
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Buy() error = %v, want it to also match ErrInvalidInput", err)
		}
	})
}

func TestOpenAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store ledger.Store) {
		e := newTestEngine(store, prices("AAPL", "1"))
		ctx := context.Background()

		acct, err := e.OpenAccount(ctx, "alice", nil)
		if err != nil {
			t.Fatalf("OpenAccount() error = %v", err)
		}
		if !acct.Cash.Equal(dec("10000")) {
			t.Errorf("Cash = %s, want default 10000", acct.Cash)
		}
		if !acct.CreatedAt.Equal(testEpoch) {
			t.Errorf("CreatedAt = %v, want %v", acct.CreatedAt, testEpoch)
		}

		got, err := e.Account(ctx, "alice")
		if err != nil {
			t.Fatalf("Account() error = %v", err)
		}
		if !got.Cash.Equal(acct.Cash) {
			t.Errorf("Account().Cash = %s, want %s", got.Cash, acct.Cash)
		}
		if _, err := e.Account(ctx, "nobody"); !errors.Is(err, ErrNoSuchAccount) {
			t.Errorf("Account(nobody) error = %v, want ErrNoSuchAccount", err)
		}

		if _, err := e.OpenAccount(ctx, "alice", nil); !errors.Is(err, ErrAccountExists) {
			t.Errorf("duplicate OpenAccount() error = %v, want ErrAccountExists", err)
		}

		neg := dec("-1")
		if _, err := e.OpenAccount(ctx, "bob", &neg); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("OpenAccount(negative) error = %v, want ErrInvalidInput", err)
		}

		zero := dec("0")
		if _, err := e.OpenAccount(ctx, "carol", &zero); err != nil {
			t.Errorf("OpenAccount(0) error = %v", err)
		}
	})
}

func TestTradeDispatch(t *testing.T) {
	e := newTestEngine(ledger.NewMemoryStore(), prices("AAPL", "10"))
	openAccount(t, e, "alice", "100")
	ctx := context.Background()

	if _, err := e.Trade(ctx, model.SideBuy, "alice", "AAPL", 2); err != nil {
		t.Fatalf("Trade(buy) error = %v", err)
	}
	res, err := e.Trade(ctx, model.SideSell, "alice", "AAPL", 1)
	if err != nil {
		t.Fatalf("Trade(sell) error = %v", err)
	}
	if res.Shares != 1 {
		t.Errorf("Shares = %d, want 1", res.Shares)
	}
	if _, err := e.Trade(ctx, model.Side("short"), "alice", "AAPL", 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Trade(short) error = %v, want ErrInvalidInput", err)
	}
}

func TestTradeResultMessage(t *testing.T) {
	e := newTestEngine(ledger.NewMemoryStore(), prices("AAPL", "150"))
	openAccount(t, e, "alice", "10000")
	ctx := context.Background()

	buy, _ := e.Buy(ctx, "alice", "AAPL", 10)
	if got, want := buy.Message(), "bought 10 shares of AAPL for $1,500.00"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
	sell, _ := e.Sell(ctx, "alice", "AAPL", 3)
	if got, want := sell.Message(), "sold 3 shares of AAPL for $450.00"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestPublisherSeesCommittedTradesOnly(t *testing.T) {
	var published []model.Transaction
	store := ledger.NewMemoryStore()
	e := New(store, prices("AAPL", "100"), DefaultConfig(),
		WithPublisher(PublisherFunc(func(tx model.Transaction) { published = append(published, tx) })))
	openAccount(t, e, "alice", "150")
	ctx := context.Background()

	e.Buy(ctx, "alice", "AAPL", 1)
	e.Buy(ctx, "alice", "AAPL", 1) // insufficient funds

	if len(published) != 1 || published[0].Side != model.SideBuy {
		t.Errorf("published = %+v, want one buy", published)
	}
	stats := e.Stats()
	if stats.Buys != 1 || stats.Rejected != 1 {
		t.Errorf("Stats = %+v, want 1 buy and 1 rejection", stats)
	}
}
