// Package index provides the SQLite-backed structured side of the
// record store: one row per canonical key, used for querying.
//
// Every insert runs in a single transaction, so a concurrent reader
// never observes a partial row. Driver errors are classified at this
// boundary: lock contention (SQLITE_BUSY, SQLITE_LOCKED) surfaces as
// *TransientError for the retry wrapper, while corruption and I/O
// failures surface as *FailureError and should trigger an integrity
// check, never a retry.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Schema changes are tracked through PRAGMA user_version.
package index
