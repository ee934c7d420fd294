// Package model defines the value types shared by the recorder's write and
// query paths.
//
// A State is the decoded, in-memory view of one persisted state row. A
// StateChangedEvent is the input shape the (external) state bus delivers to
// the write path. Neither type knows about the physical schema; the db and
// history packages own column layouts.
//
// Attribute payloads are content-addressed: identical attribute dictionaries
// share one stored blob, keyed by an FNV-1a/32 hash of their canonical JSON
// form. Canonical JSON here means: object keys sorted by UTF-16 code units,
// NFC-normalized strings, no HTML escaping. See canonical.go and hash.go.
package model
