package model

import (
	"strings"
	"time"
)

// Context carries the provenance of a state change: which interaction caused
// it, which user triggered it, and the parent interaction if any. Set once at
// write time, never mutated.
type Context struct {
	ID       string
	UserID   string
	ParentID string
}

// IsZero reports whether no provenance was recorded.
func (c Context) IsZero() bool {
	return c.ID == "" && c.UserID == "" && c.ParentID == ""
}

// State is the decoded form of one persisted state row.
//
// LastChanged is the time the state *value* last changed; LastUpdated is the
// time of this row. LastChanged is always equal to or earlier than
// LastUpdated; equality means this row is a real value change rather than an
// attributes-only update.
type State struct {
	EntityID    string
	State       string
	Attributes  map[string]any
	LastChanged time.Time
	LastUpdated time.Time
	Context     Context
}

// StateChangedEvent is the shape the external state bus hands to the write
// path. Removed=true records the entity leaving the state machine; the stored
// state value is then the empty string.
type StateChangedEvent struct {
	EntityID    string
	State       string
	Removed     bool
	Attributes  map[string]any
	LastChanged time.Time
	LastUpdated time.Time
	Context     Context
}

// Event is a generic bus event persisted to the events table. State changes
// are persisted through StateChangedEvent instead; Event covers everything
// else (service calls, automations firing, and so on).
type Event struct {
	Type      string
	Data      map[string]any
	TimeFired time.Time
	Context   Context
}

// Domain returns the domain part of an entity id: "sensor.temp" -> "sensor".
// An id without a dot is its own domain.
func Domain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return entityID
}
