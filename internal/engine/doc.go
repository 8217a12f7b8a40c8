// Package engine implements the trade engine: it validates buy and sell
// requests, prices them through a quote.Provider and applies the cash,
// holding and transaction-log writes of one trade as a single ledger update.
//
// Trades against the same account are serialized by a per-user lock held
// only around the ledger update. Quote lookups happen before the lock.
// Rejected or failed trades leave the ledger untouched.
package engine
