// Package meta resolves string keys (entity ids, event types) to the small
// integer surrogate ids the modern schema stores, with as few database
// round-trips as the single-writer design allows.
//
// Two managers exist, one per surrogate table:
//
//   - EntityIDManager: states_meta (entity_id -> metadata_id)
//   - EventTypeManager: event_types (event_type -> event_type_id)
//
// Each keeps a bounded LRU of committed mappings plus a separate pending map
// for rows inserted inside a not-yet-committed transaction. Pending entries
// are promoted to the committed cache only by PostCommitPending, called
// exactly once after a successful commit; a rollback instead discards them
// via Reset. Caching an id before its transaction commits would let a
// rollback poison every later write, which is why the two maps never mix.
//
// Concurrency contract: the managers have no internal locking. All mutating
// access must come from the single writer context that owns the recorder's
// database session (see package record). Eviction never affects correctness,
// only lookup cost: a miss always falls back to one batched SELECT.
package meta
