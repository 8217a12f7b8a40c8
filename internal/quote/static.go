package quote

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/model"
)

// Static serves quotes from an in-memory table. Prices can be changed at runtime.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
	errs   map[string]error
}

// NewStatic creates a provider with the given symbol -> price table.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{
		quotes: make(map[string]model.Quote, len(prices)),
		errs:   make(map[string]error),
	}
	for sym, p := range prices {
		s.Set(sym, p)
	}
	return s
}

// ParseStatic builds a Static provider from textual prices.
func ParseStatic(prices map[string]string) (*Static, error) {
	table := make(map[string]decimal.Decimal, len(prices))
	for sym, text := range prices {
		p, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", sym, err)
		}
		table[sym] = p
	}
	return NewStatic(table), nil
}

// Set installs or replaces the price of symbol and clears any injected failure.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	sym := NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[sym] = model.Quote{Symbol: sym, Name: sym, Price: price}
	delete(s.errs, sym)
}

// Fail makes lookups of symbol return err until the next Set.
func (s *Static) Fail(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[NormalizeSymbol(symbol)] = err
}

// Lookup returns the table entry for symbol.
func (s *Static) Lookup(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	sym := NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.errs[sym]; ok {
		return model.Quote{}, fmt.Errorf("quote %s: %w", sym, err)
	}
	q, ok := s.quotes[sym]
	if !ok {
		return model.Quote{}, fmt.Errorf("quote %s: %w", sym, ErrNotFound)
	}
	if !q.Price.IsPositive() {
		return model.Quote{}, fmt.Errorf("quote %s: %w: price %s", sym, ErrUnavailable, q.Price)
	}
	return q, nil
}
