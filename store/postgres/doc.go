// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: compare-and-swap status transitions, transactional plan
// inserts, embedded SQL migrations.
package postgres
