// Package record implements the single-writer batch path: buffered state
// change and event ingest, one transaction per flush, with surrogate-id and
// attribute-blob dedup. Exactly one Writer may exist per store.
package record
