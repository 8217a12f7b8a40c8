// Package model defines the ledger types shared by the engine, the stores and the API.
//
// Conventions:
//   - Money: decimal.Decimal in major units (dollars), never rounded by the ledger
//   - Shares: int64 whole shares, always positive on a persisted row
//   - Timestamps: time.Time in UTC
//   - IDs: string user IDs and tickers, uuid.UUID for transaction IDs
package model
