package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/model"
)

// quoteResponse is the subset of the IEX quote object we read.
type quoteResponse struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	LatestPrice decimal.Decimal `json:"latestPrice"`
}

// Lookup fetches the latest quote for symbol.
func (c *Client) Lookup(ctx context.Context, symbol string) (model.Quote, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return model.Quote{}, fmt.Errorf("quote %q: %w", symbol, ErrNotFound)
	}

	var query url.Values
	if c.apiKey != "" {
		query = url.Values{"token": {c.apiKey}}
	}

	body, err := c.doWithRetry(ctx, "/stock/"+url.PathEscape(sym)+"/quote", query)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return model.Quote{}, fmt.Errorf("quote %s: %w", sym, ErrNotFound)
		}
		c.logger.Warn("quote lookup failed", "symbol", sym, "error", err)
		return model.Quote{}, fmt.Errorf("quote %s: %w: %w", sym, ErrUnavailable, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w: unmarshal response: %w", sym, ErrUnavailable, err)
	}
	if !resp.LatestPrice.IsPositive() {
		return model.Quote{}, fmt.Errorf("quote %s: %w: price %s", sym, ErrUnavailable, resp.LatestPrice)
	}

	q := model.Quote{
		Symbol: NormalizeSymbol(resp.Symbol),
		Name:   resp.CompanyName,
		Price:  resp.LatestPrice,
	}
	if q.Symbol == "" {
		q.Symbol = sym
	}
	return q, nil
}
