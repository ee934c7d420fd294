// Package db owns the recorder's SQLite store: opening and configuring the
// database, the two physical schema eras, schema-version bookkeeping, and
// recorder-run boundaries.
//
// Two layouts coexist in the wild:
//
//   - Legacy (< version 31): states carry string entity ids and
//     datetime-string timestamp columns, attributes may be inline text.
//   - Modern (>= version 31): states reference states_meta surrogate ids and
//     store epoch-second timestamps; attributes always live in the shared
//     content-hashed blob table.
//
// The query layer branches on Era exactly once per query; migrations are
// atomic from its point of view, so the version read at Open stays valid for
// the lifetime of the store handle.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// The connection pool is capped at one writer plus read-only sessions; all
// mutating access must come from the single writer context (see record).
package db
