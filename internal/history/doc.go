// Package history answers "what was the state of these entities between time
// A and time B" against either physical schema era.
//
// The pipeline is: build a Plan (projection, filters, joins, ordering) for
// the store's era, execute it through the store's session, decode the
// ordered rows lazily (attributes are parsed only when first touched and
// memoized per shared blob), and assemble the rows into per-entity ordered
// state sequences, applying minimal-response compaction and start-of-window
// stitching.
//
// Three request shapes exist:
//
//   - significant states for N entities over a window
//   - raw state changes for one entity over a window
//   - the last N changes for one entity (no window)
//
// All three fail fast on an empty entity selection: silently widening to
// "all entities" would be a correctness and privacy bug.
//
// Statement building never executes anything; execution and decoding are
// synchronous, blocking by design. Callers needing an event loop dispatch to
// a worker.
package history
