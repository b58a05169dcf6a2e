// Package store provides a SQLite-backed sink that persists log records.
//
// The store is append-only. Each record becomes one row in the records
// table:
//   - id: UUIDv7 assigned at write time
//   - seq: insertion order (INTEGER PRIMARY KEY AUTOINCREMENT)
//   - time, level, auto, success, service_name, message: copied columns
//   - function: the wrapped function name, for auto records
//   - fields: every field as canonical JSON, keys sorted
//
// schema.sql holds the version 0 table. Open migrates older databases step
// by step through PRAGMA user_version, backfilling function from fields.
//
// Reads are ordered by seq, never by the record time, so records from
// skewed clocks still come back in arrival order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
