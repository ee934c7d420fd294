// Package filters implements include/exclude entity selection, both as an
// in-process predicate for the write path and as a SQL predicate for queries
// that do not name entities explicitly.
package filters
