// Package testutil provides test utilities, including:
//   - Miniredis helpers for Redis-backed catalog, ledger, locks and queues (miniredis.go)
//   - Raw MovieLens fixtures laid out the way the ingestor expects (fixtures.go)
package testutil
