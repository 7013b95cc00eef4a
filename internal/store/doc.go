// Package store provides SQLite-backed storage for vaultguard records and
// the instruction log.
//
// The store holds:
//   - Records: the current state of every record, keyed by address
//   - Instructions: an append-only log of processed instructions, committed
//     or rejected
//   - Record writes: which record states each committed instruction produced
//
// # Critical Patterns
//
// Atomic commit:
//   - CommitInstruction writes the log entry and every mutated record in one
//     transaction. Either all rows land or none do.
//
// No deletion:
//   - Records are only ever upserted. Closing a record is a lifecycle value,
//     not removal.
//
// Deterministic reads:
//   - Log queries order by seq ASC, id ASC COLLATE BINARY
//   - Record listings order by address ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Pass ":memory:" to Open for an in-memory store.
package store
