// Package storage persists the delivery log.
//
// Drivers:
//   - "file": JSON Lines file, no external service
//   - "sqlite": single-file database (modernc.org/sqlite, pure Go)
//   - "postgres": pgx pool with embedded golang-migrate migrations
package storage
