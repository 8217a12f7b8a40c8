package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
)

// Position is one holding in a portfolio view.
type Position struct {
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"` // last trade price
	Value     decimal.Decimal `json:"value"` // Shares x Price
	UpdatedAt time.Time       `json:"updated_at"`

	// Set only when the portfolio was revalued.
	Name        string              `json:"name,omitempty"`
	MarketPrice decimal.NullDecimal `json:"market_price"`
	MarketValue decimal.NullDecimal `json:"market_value"`
	Stale       bool                `json:"stale,omitempty"` // revaluation failed, Value used instead
}

// Portfolio is the account overview: cash plus every open position.
type Portfolio struct {
	UserID        string          `json:"user_id"`
	Cash          decimal.Decimal `json:"cash"`
	Positions     []Position      `json:"positions"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	Total         decimal.Decimal `json:"total"`

	MarketTotal decimal.NullDecimal `json:"market_total"`
	AsOf        time.Time           `json:"as_of"`
}

// Quote validates symbol and looks it up.
func (e *Engine) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	sym, err := validateSymbol(symbol)
	if err != nil {
		return model.Quote{}, e.reject(err, "op", "quote")
	}
	q, err := e.resolve(ctx, sym)
	if err != nil {
		return model.Quote{}, e.reject(err, "op", "quote", "symbol", sym)
	}
	return q, nil
}

// Portfolio returns the holdings and cash of userID sorted by symbol. With
// revalue set, current quotes are fetched concurrently and market values
// reported next to the stored last-trade values. Nothing is written.
func (e *Engine) Portfolio(ctx context.Context, userID string, revalue bool) (Portfolio, error) {
	if err := validateUserID(userID); err != nil {
		return Portfolio{}, e.reject(err, "op", "portfolio")
	}

	var (
		acct     model.Account
		holdings []model.Holding
	)
	err := e.view(ctx, userID, func(r ledger.Reader) error {
		var err error
		if acct, err = account(ctx, r, userID); err != nil {
			return err
		}
		holdings, err = r.Holdings(ctx, userID)
		return err
	})
	if err != nil {
		return Portfolio{}, e.reject(err, "op", "portfolio", "user_id", userID)
	}

	p := Portfolio{
		UserID:        userID,
		Cash:          acct.Cash,
		Positions:     make([]Position, len(holdings)),
		HoldingsValue: decimal.Zero,
		AsOf:          e.timestamp(),
	}
	for i, h := range holdings {
		p.Positions[i] = Position{
			Symbol:    h.Symbol,
			Shares:    h.Shares,
			Price:     h.Price,
			Value:     h.Value,
			UpdatedAt: h.UpdatedAt,
		}
		p.HoldingsValue = p.HoldingsValue.Add(h.Value)
	}
	p.Total = p.Cash.Add(p.HoldingsValue)

	if revalue {
		e.revalue(ctx, &p)
	}
	return p, nil
}

// revalue fills market prices. Each position is written by exactly one goroutine.
func (e *Engine) revalue(ctx context.Context, p *Portfolio) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.QuoteConcurrency)

	for i := range p.Positions {
		pos := &p.Positions[i]
		g.Go(func() error {
			q, err := e.resolve(gctx, pos.Symbol)
			if err != nil {
				e.logger.Warn("revaluation failed", "symbol", pos.Symbol, "error", err)
				pos.Stale = true
				return nil
			}
			pos.Name = q.Name
			pos.MarketPrice = decimal.NewNullDecimal(q.Price)
			pos.MarketValue = decimal.NewNullDecimal(q.Price.Mul(decimal.NewFromInt(pos.Shares)))
			return nil
		})
	}
	g.Wait()

	total := p.Cash
	for _, pos := range p.Positions {
		if pos.MarketValue.Valid {
			total = total.Add(pos.MarketValue.Decimal)
		} else {
			total = total.Add(pos.Value)
		}
	}
	p.MarketTotal = decimal.NewNullDecimal(total)
}

// History returns the trades of userID, most recent first. limit <= 0 returns all.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if err := validateUserID(userID); err != nil {
		return nil, e.reject(err, "op", "history")
	}

	var txs []model.Transaction
	err := e.view(ctx, userID, func(r ledger.Reader) error {
		if _, err := account(ctx, r, userID); err != nil {
			return err
		}
		var err error
		txs, err = r.Transactions(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, e.reject(err, "op", "history", "user_id", userID)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return txs, nil
}
