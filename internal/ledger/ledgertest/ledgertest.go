// Package ledgertest holds the behaviour every ledger.Store backend must share.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
)

// Factory returns a fresh, empty store. The test closes it.
type Factory func(t *testing.T) ledger.Store

var epoch = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// Run executes the backend conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndReadAccount", func(t *testing.T) { testCreateAndReadAccount(t, newStore) })
	t.Run("DuplicateAccount", func(t *testing.T) { testDuplicateAccount(t, newStore) })
	t.Run("PutAccountRequiresExisting", func(t *testing.T) { testPutAccountRequiresExisting(t, newStore) })
	t.Run("HoldingLifecycle", func(t *testing.T) { testHoldingLifecycle(t, newStore) })
	t.Run("RejectsNonPositiveHolding", func(t *testing.T) { testRejectsNonPositiveHolding(t, newStore) })
	t.Run("TransactionsNewestFirst", func(t *testing.T) { testTransactionsNewestFirst(t, newStore) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, newStore) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore) })
	t.Run("UsersIsolated", func(t *testing.T) { testUsersIsolated(t, newStore) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore) })
}

func open(t *testing.T, newStore Factory) ledger.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s ledger.Store, userID string, cash string) {
	t.Helper()
	err := s.Update(context.Background(), userID, func(tx ledger.Tx) error {
		return tx.CreateAccount(context.Background(), model.Account{
			UserID:    userID,
			Cash:      decimal.RequireFromString(cash),
			CreatedAt: epoch,
		})
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", userID, err)
	}
}

func account(t *testing.T, s ledger.Store, userID string) (model.Account, error) {
	t.Helper()
	var a model.Account
	err := s.View(context.Background(), func(r ledger.Reader) error {
		var err error
		a, err = r.Account(context.Background(), userID)
		return err
	})
	return a, err
}

func holdings(t *testing.T, s ledger.Store, userID string) []model.Holding {
	t.Helper()
	var hs []model.Holding
	err := s.View(context.Background(), func(r ledger.Reader) error {
		var err error
		hs, err = r.Holdings(context.Background(), userID)
		return err
	})
	if err != nil {
		t.Fatalf("Holdings(%s) error = %v", userID, err)
	}
	return hs
}

func transactions(t *testing.T, s ledger.Store, userID string, limit int) []model.Transaction {
	t.Helper()
	var txs []model.Transaction
	err := s.View(context.Background(), func(r ledger.Reader) error {
		var err error
		txs, err = r.Transactions(context.Background(), userID, limit)
		return err
	})
	if err != nil {
		t.Fatalf("Transactions(%s) error = %v", userID, err)
	}
	return txs
}

func holding(userID, symbol string, shares int64, price string) model.Holding {
	return model.Holding{UserID: userID, Symbol: symbol, UpdatedAt: epoch}.
		Revalue(shares, decimal.RequireFromString(price), epoch)
}

func trade(userID, symbol string, side model.Side, shares int64, price string, at time.Time) model.Transaction {
	p := decimal.RequireFromString(price)
	total := p.Mul(decimal.NewFromInt(shares))
	return model.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Symbol:       symbol,
		Side:         side,
		Shares:       shares,
		Price:        p,
		Total:        total,
		BalanceAfter: decimal.Zero,
		ExecutedAt:   at,
	}
}

func testCreateAndReadAccount(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	mustCreate(t, s, "alice", "10000")

	a, err := account(t, s, "alice")
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if !a.Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Cash = %s, want 10000", a.Cash)
	}
	if !a.CreatedAt.Equal(epoch) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, epoch)
	}

	if _, err := account(t, s, "bob"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Account(bob) error = %v, want ErrAccountNotFound", err)
	}
}

func testDuplicateAccount(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	mustCreate(t, s, "alice", "10000")

	err := s.Update(context.Background(), "alice", func(tx ledger.Tx) error {
		return tx.CreateAccount(context.Background(), model.Account{UserID: "alice", Cash: decimal.NewFromInt(1)})
	})
	if !errors.Is(err, ledger.ErrAccountExists) {
		t.Fatalf("duplicate CreateAccount error = %v, want ErrAccountExists", err)
	}

	a, _ := account(t, s, "alice")
	if !a.Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Cash = %s after duplicate create, want 10000", a.Cash)
	}
}

func testPutAccountRequiresExisting(t *testing.T, newStore Factory) {
	s := open(t, newStore)

	err := s.Update(context.Background(), "ghost", func(tx ledger.Tx) error {
		return tx.PutAccount(context.Background(), model.Account{UserID: "ghost", Cash: decimal.NewFromInt(5)})
	})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("PutAccount(ghost) error = %v, want ErrAccountNotFound", err)
	}
}

func testHoldingLifecycle(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "10000")

	err := s.Update(ctx, "alice", func(tx ledger.Tx) error {
		if err := tx.PutHolding(ctx, holding("alice", "MSFT", 5, "400")); err != nil {
			return err
		}
		return tx.PutHolding(ctx, holding("alice", "AAPL", 10, "150"))
	})
	if err != nil {
		t.Fatalf("PutHolding error = %v", err)
	}

	hs := holdings(t, s, "alice")
	if len(hs) != 2 {
		t.Fatalf("len(Holdings) = %d, want 2", len(hs))
	}
	if hs[0].Symbol != "AAPL" || hs[1].Symbol != "MSFT" {
		t.Errorf("Holdings order = [%s %s], want [AAPL MSFT]", hs[0].Symbol, hs[1].Symbol)
	}
	if !hs[0].Value.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("AAPL Value = %s, want 1500", hs[0].Value)
	}

	err = s.Update(ctx, "alice", func(tx ledger.Tx) error {
		return tx.DeleteHolding(ctx, "alice", "AAPL")
	})
	if err != nil {
		t.Fatalf("DeleteHolding error = %v", err)
	}

	var ok bool
	s.View(ctx, func(r ledger.Reader) error {
		_, ok, err = r.Holding(ctx, "alice", "AAPL")
		return err
	})
	if err != nil {
		t.Fatalf("Holding error = %v", err)
	}
	if ok {
		t.Error("AAPL holding still present after delete")
	}
	if got := len(holdings(t, s, "alice")); got != 1 {
		t.Errorf("len(Holdings) = %d after delete, want 1", got)
	}
}

func testRejectsNonPositiveHolding(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "10000")

	for _, shares := range []int64{0, -3} {
		err := s.Update(ctx, "alice", func(tx ledger.Tx) error {
			return tx.PutHolding(ctx, holding("alice", "AAPL", shares, "150"))
		})
		if !errors.Is(err, ledger.ErrInvalidRow) {
			t.Errorf("PutHolding(shares=%d) error = %v, want ErrInvalidRow", shares, err)
		}
	}
	if got := len(holdings(t, s, "alice")); got != 0 {
		t.Errorf("len(Holdings) = %d, want 0", got)
	}
}

func testTransactionsNewestFirst(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "10000")

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		tr := trade("alice", "AAPL", model.SideBuy, int64(i+1), "10", epoch.Add(time.Duration(i)*time.Second))
		ids = append(ids, tr.ID)
		if err := s.Update(ctx, "alice", func(tx ledger.Tx) error {
			return tx.AppendTransaction(ctx, tr)
		}); err != nil {
			t.Fatalf("AppendTransaction(%d) error = %v", i, err)
		}
	}

	all := transactions(t, s, "alice", 0)
	if len(all) != 5 {
		t.Fatalf("len(Transactions) = %d, want 5", len(all))
	}
	for i, tr := range all {
		if want := ids[len(ids)-1-i]; tr.ID != want {
			t.Errorf("Transactions[%d].ID = %s, want %s", i, tr.ID, want)
		}
	}
	if !all[0].Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("newest Total = %s, want 50", all[0].Total)
	}

	limited := transactions(t, s, "alice", 2)
	if len(limited) != 2 || limited[0].ID != ids[4] || limited[1].ID != ids[3] {
		t.Errorf("Transactions(limit=2) = %v, want two newest", limited)
	}
}

func testRollbackOnError(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "10000")

	boom := errors.New("boom")
	err := s.Update(ctx, "alice", func(tx ledger.Tx) error {
		if err := tx.PutAccount(ctx, model.Account{UserID: "alice", Cash: decimal.NewFromInt(1)}); err != nil {
			return err
		}
		if err := tx.PutHolding(ctx, holding("alice", "AAPL", 10, "150")); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, trade("alice", "AAPL", model.SideBuy, 10, "150", epoch)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	a, _ := account(t, s, "alice")
	if !a.Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Cash = %s after rollback, want 10000", a.Cash)
	}
	if got := len(holdings(t, s, "alice")); got != 0 {
		t.Errorf("len(Holdings) = %d after rollback, want 0", got)
	}
	if got := len(transactions(t, s, "alice", 0)); got != 0 {
		t.Errorf("len(Transactions) = %d after rollback, want 0", got)
	}
}

func testReadYourWrites(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "10000")

	err := s.Update(ctx, "alice", func(tx ledger.Tx) error {
		if err := tx.PutHolding(ctx, holding("alice", "AAPL", 10, "150")); err != nil {
			return err
		}
		h, ok, err := tx.Holding(ctx, "alice", "AAPL")
		if err != nil {
			return err
		}
		if !ok || h.Shares != 10 {
			return fmt.Errorf("staged holding = %+v, ok=%v", h, ok)
		}
		if err := tx.DeleteHolding(ctx, "alice", "AAPL"); err != nil {
			return err
		}
		if _, ok, _ := tx.Holding(ctx, "alice", "AAPL"); ok {
			return errors.New("staged delete not visible")
		}

		if err := tx.PutAccount(ctx, model.Account{UserID: "alice", Cash: decimal.NewFromInt(42)}); err != nil {
			return err
		}
		a, err := tx.Account(ctx, "alice")
		if err != nil {
			return err
		}
		if !a.Cash.Equal(decimal.NewFromInt(42)) {
			return fmt.Errorf("staged cash = %s", a.Cash)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}
}

func testUsersIsolated(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "100")
	mustCreate(t, s, "alice2", "100")

	err := s.Update(ctx, "alice2", func(tx ledger.Tx) error {
		if err := tx.PutHolding(ctx, holding("alice2", "AAPL", 1, "10")); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, trade("alice2", "AAPL", model.SideBuy, 1, "10", epoch))
	})
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}

	if got := len(holdings(t, s, "alice")); got != 0 {
		t.Errorf("alice holdings = %d, want 0", got)
	}
	if got := len(transactions(t, s, "alice", 0)); got != 0 {
		t.Errorf("alice transactions = %d, want 0", got)
	}
	if got := len(transactions(t, s, "alice2", 0)); got != 1 {
		t.Errorf("alice2 transactions = %d, want 1", got)
	}
}

func testConcurrentUpdates(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	ctx := context.Background()
	mustCreate(t, s, "alice", "0")

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := s.Update(ctx, "alice", func(tx ledger.Tx) error {
					a, err := tx.Account(ctx, "alice")
					if err != nil {
						return err
					}
					a.Cash = a.Cash.Add(decimal.NewFromInt(1))
					if err := tx.PutAccount(ctx, a); err != nil {
						return err
					}
					return tx.AppendTransaction(ctx, trade("alice", "AAPL", model.SideSell, 1, "1", time.Now()))
				})
				if err != nil {
					t.Errorf("Update error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	a, _ := account(t, s, "alice")
	if want := decimal.NewFromInt(workers * perWorker); !a.Cash.Equal(want) {
		t.Errorf("Cash = %s, want %s (lost update)", a.Cash, want)
	}
	if got := len(transactions(t, s, "alice", 0)); got != workers*perWorker {
		t.Errorf("len(Transactions) = %d, want %d", got, workers*perWorker)
	}
}
