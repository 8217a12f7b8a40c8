// Package database provides the PostgreSQL ledger backend.
//
// Tables (see schema.go):
//   - accounts:     one row per user, cash as NUMERIC
//   - holdings:     (user_id, symbol) primary key, row exists only while shares > 0
//   - transactions: append-only trade log ordered by a BIGSERIAL sequence
//
// Each ledger update runs in one database transaction that first locks the
// account row with SELECT ... FOR UPDATE, then sends its writes as a pgx.Batch.
package database
