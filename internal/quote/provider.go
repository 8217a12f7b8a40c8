package quote

import (
	"context"
	"errors"
	"strings"

	"github.com/rickgao/papertrade/internal/model"
)

var (
	// ErrNotFound means the source does not know the symbol.
	ErrNotFound = errors.New("symbol not found")

	// ErrUnavailable means no usable quote could be obtained.
	ErrUnavailable = errors.New("quote unavailable")
)

// Provider looks up the current quote for a symbol.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (model.Quote, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, symbol string) (model.Quote, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, symbol string) (model.Quote, error) {
	return f(ctx, symbol)
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
