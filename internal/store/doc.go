// Package store provides the SQLite-backed results ledger.
//
// Every execution gets one row in executions and one row per scenario in
// scenario_results, keyed by (execution_id, suite, ordinal). Expected and
// observed repository state are stored as canonical JSON so that rows from
// different executions can be compared byte for byte.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as RFC 3339 text in UTC.
package store
