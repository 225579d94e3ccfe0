// Package library is the SQLite-backed conversion ledger. One row per
// conversion run: where the song came from, where the assembled folder
// went, and the headline numbers from the conversion report.
//
// Charts themselves live on disk in their song folders; the ledger only
// records that they were made, so the history command can answer "what
// did I convert last month" without crawling the filesystem.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Record IDs are UUIDv7, so ordering by id is ordering by creation time.
// Queries never order by the created_at column.
package library
