package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Ledger Types
// -----------------------------------------------------------------------------

// Account holds the cash balance of one user.
type Account struct {
	UserID    string          `json:"user_id"`    // Primary key
	Cash      decimal.Decimal `json:"cash"`       // Never negative
	CreatedAt time.Time       `json:"created_at"` // Account opening time
}

// Holding is a user's position in one symbol.
type Holding struct {
	UserID    string          `json:"user_id"`    // Key part 1
	Symbol    string          `json:"symbol"`     // Key part 2 (canonical ticker)
	Shares    int64           `json:"shares"`     // > 0 while the row exists
	Price     decimal.Decimal `json:"price"`      // Last trade price applied to the row
	Value     decimal.Decimal `json:"value"`      // Shares x Price
	UpdatedAt time.Time       `json:"updated_at"` // Last trade touching the row
}

// Revalue returns a copy of h with Shares replaced and Value recomputed at price.
func (h Holding) Revalue(shares int64, price decimal.Decimal, at time.Time) Holding {
	h.Shares = shares
	h.Price = price
	h.Value = price.Mul(decimal.NewFromInt(shares))
	h.UpdatedAt = at
	return h
}

// -----------------------------------------------------------------------------
// Transaction Log Types
// -----------------------------------------------------------------------------

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) String() string { return string(s) }

// Transaction is one executed trade. It is never modified after it is appended.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`            // Primary key
	UserID       string          `json:"user_id"`       // Owning account
	Symbol       string          `json:"symbol"`        // Canonical ticker
	Side         Side            `json:"side"`          // buy or sell
	Shares       int64           `json:"shares"`        // Always positive
	Price        decimal.Decimal `json:"price"`         // Quote at execution
	Total        decimal.Decimal `json:"total"`         // Shares x Price
	BalanceAfter decimal.Decimal `json:"balance_after"` // Account cash after the trade
	ExecutedAt   time.Time       `json:"executed_at"`   // Commit timestamp
}

// CashDelta returns the signed effect of t on the account's cash.
func (t Transaction) CashDelta() decimal.Decimal {
	if t.Side == SideSell {
		return t.Total
	}
	return t.Total.Neg()
}

// ShareDelta returns the signed effect of t on the holding's share count.
func (t Transaction) ShareDelta() int64 {
	if t.Side == SideSell {
		return -t.Shares
	}
	return t.Shares
}

// -----------------------------------------------------------------------------
// Quote Types
// -----------------------------------------------------------------------------

// Quote is a point-in-time price for a symbol.
type Quote struct {
	Symbol string          `json:"symbol"` // Canonical ticker, may differ in casing from the request
	Name   string          `json:"name"`   // Company name
	Price  decimal.Decimal `json:"price"`  // Always positive
}
