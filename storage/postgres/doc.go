// Package postgres stores accounts and company links in PostgreSQL through
// database/sql and the pgx driver. The schema ships as embedded goose
// migrations applied by [Migrate].
//
// The failed-login counter is updated by one conditional UPDATE, which makes
// lockout accounting atomic per account without explicit transactions.
package postgres
