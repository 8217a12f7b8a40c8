package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/money"
)

// TradeResult is the ledger state after a committed trade.
type TradeResult struct {
	Cash        decimal.Decimal   `json:"cash"`   // balance after the trade
	Shares      int64             `json:"shares"` // shares held afterwards, 0 when the position was closed
	Transaction model.Transaction `json:"transaction"`
}

// Message is the confirmation shown to the user.
func (r TradeResult) Message() string {
	verb := "bought"
	if r.Transaction.Side == model.SideSell {
		verb = "sold"
	}
	return fmt.Sprintf("%s %d shares of %s for %s", verb, r.Transaction.Shares, r.Transaction.Symbol, money.USD(r.Transaction.Total))
}

// Buy purchases shares of symbol for userID at the current quote.
func (e *Engine) Buy(ctx context.Context, userID, symbol string, shares int64) (TradeResult, error) {
	sym, err := validateTrade(userID, symbol, shares)
	if err != nil {
		return TradeResult{}, e.reject(err, "op", "buy", "user_id", userID)
	}

	q, err := e.resolve(ctx, sym)
	if err != nil {
		return TradeResult{}, e.reject(err, "op", "buy", "user_id", userID, "symbol", sym)
	}
	total := q.Price.Mul(decimal.NewFromInt(shares))

	var res TradeResult
	err = e.update(ctx, userID, func(tx ledger.Tx) error {
		acct, err := account(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acct.Cash.LessThan(total) {
			return newError(KindInsufficientFunds, nil, "%d %s costs %s, cash is %s",
				shares, q.Symbol, money.USD(total), money.USD(acct.Cash))
		}

		h, ok, err := tx.Holding(ctx, userID, q.Symbol)
		if err != nil {
			return err
		}
		if !ok {
			h = model.Holding{UserID: userID, Symbol: q.Symbol}
		}
		if h.Shares > math.MaxInt64-shares {
			return newError(KindInvalidInput, nil, "position in %s would overflow", q.Symbol)
		}

		now := e.timestamp()
		acct.Cash = acct.Cash.Sub(total)
		h = h.Revalue(h.Shares+shares, q.Price, now)

		if err := tx.PutAccount(ctx, acct); err != nil {
			return err
		}
		if err := tx.PutHolding(ctx, h); err != nil {
			return err
		}
		t := e.newTransaction(userID, q, model.SideBuy, shares, total, acct.Cash, now)
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}

		res = TradeResult{Cash: acct.Cash, Shares: h.Shares, Transaction: t}
		return nil
	}, func() { e.committed(res) })
	if err != nil {
		return TradeResult{}, e.reject(err, "op", "buy", "user_id", userID, "symbol", q.Symbol)
	}

	e.buys.Add(1)
	return res, nil
}

// Sell sells shares of symbol held by userID at the current quote.
func (e *Engine) Sell(ctx context.Context, userID, symbol string, shares int64) (TradeResult, error) {
	sym, err := validateTrade(userID, symbol, shares)
	if err != nil {
		return TradeResult{}, e.reject(err, "op", "sell", "user_id", userID)
	}

	q, err := e.resolve(ctx, sym)
	if err != nil {
		return TradeResult{}, e.reject(err, "op", "sell", "user_id", userID, "symbol", sym)
	}
	proceeds := q.Price.Mul(decimal.NewFromInt(shares))

	var res TradeResult
	err = e.update(ctx, userID, func(tx ledger.Tx) error {
		acct, err := account(ctx, tx, userID)
		if err != nil {
			return err
		}

		h, ok, err := tx.Holding(ctx, userID, q.Symbol)
		if err != nil {
			return err
		}
		if !ok || h.Shares <= 0 {
			return newError(KindNoSuchHolding, nil, "no shares of %s held", q.Symbol)
		}
		if shares > h.Shares {
			return newError(KindInvalidShareCount, nil, "selling %d shares of %s, only %d held", shares, q.Symbol, h.Shares)
		}

		now := e.timestamp()
		acct.Cash = acct.Cash.Add(proceeds)
		remaining := h.Shares - shares

		if err := tx.PutAccount(ctx, acct); err != nil {
			return err
		}
		if remaining <= 0 {
			err = tx.DeleteHolding(ctx, userID, q.Symbol)
		} else {
			err = tx.PutHolding(ctx, h.Revalue(remaining, q.Price, now))
		}
		if err != nil {
			return err
		}
		t := e.newTransaction(userID, q, model.SideSell, shares, proceeds, acct.Cash, now)
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}

		res = TradeResult{Cash: acct.Cash, Shares: max(remaining, 0), Transaction: t}
		return nil
	}, func() { e.committed(res) })
	if err != nil {
		return TradeResult{}, e.reject(err, "op", "sell", "user_id", userID, "symbol", q.Symbol)
	}

	e.sells.Add(1)
	return res, nil
}

// Trade dispatches to Buy or Sell.
func (e *Engine) Trade(ctx context.Context, side model.Side, userID, symbol string, shares int64) (TradeResult, error) {
	if !side.Valid() {
		return TradeResult{}, e.reject(newError(KindInvalidInput, nil, "side %q", side), "user_id", userID)
	}
	if side == model.SideSell {
		return e.Sell(ctx, userID, symbol, shares)
	}
	return e.Buy(ctx, userID, symbol, shares)
}

func (e *Engine) newTransaction(userID string, q model.Quote, side model.Side, shares int64, total, balance decimal.Decimal, at time.Time) model.Transaction {
	return model.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Symbol:       q.Symbol,
		Side:         side,
		Shares:       shares,
		Price:        q.Price,
		Total:        total,
		BalanceAfter: balance,
		ExecutedAt:   at,
	}
}

// committed logs and publishes a trade. Called with the user's lock held.
func (e *Engine) committed(res TradeResult) {
	t := res.Transaction
	e.logger.Info("trade committed",
		"user_id", t.UserID,
		"side", t.Side,
		"symbol", t.Symbol,
		"shares", t.Shares,
		"price", t.Price,
		"total", t.Total,
		"balance_after", t.BalanceAfter,
	)
	if e.publisher != nil {
		e.publisher.Publish(t)
	}
}

// account reads userID's account inside an update.
func account(ctx context.Context, r ledger.Reader, userID string) (model.Account, error) {
	acct, err := r.Account(ctx, userID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return model.Account{}, newError(KindNoSuchAccount, nil, "%s", userID)
	}
	return acct, err
}
