package history

import (
	"time"

	"github.com/roach88/hearth/internal/model"
)

// Entry is one element of an assembled history response. A full entry
// carries everything; a compact entry (Compact=true) carries only the state
// value and change time, the rest being implied by the preceding full entry
// for the same entity.
type Entry struct {
	EntityID    string
	State       string
	Attributes  map[string]any
	LastChanged time.Time
	LastUpdated time.Time
	Context     model.Context
	Compact     bool
}

// Verbose renders the entry with full key names and ISO 8601 timestamps;
// epoch numbers are the compressed encoding's trait. LastChanged is omitted
// when it equals LastUpdated; consumers fall back to last_updated.
func (e Entry) Verbose() map[string]any {
	if e.Compact {
		return map[string]any{
			"state":        e.State,
			"last_changed": isoTime(e.LastChanged),
		}
	}
	out := map[string]any{
		"entity_id":    e.EntityID,
		"state":        e.State,
		"attributes":   e.Attributes,
		"last_updated": isoTime(e.LastUpdated),
	}
	if !e.LastChanged.Equal(e.LastUpdated) {
		out["last_changed"] = isoTime(e.LastChanged)
	}
	if !e.Context.IsZero() {
		out["context"] = map[string]any{
			"id":        e.Context.ID,
			"user_id":   e.Context.UserID,
			"parent_id": e.Context.ParentID,
		}
	}
	return out
}

// Compressed renders the entry with short key names for the wire:
// s=state, a=attributes, lu=last_updated, lc=last_changed. lc is omitted
// when it equals lu.
func (e Entry) Compressed() map[string]any {
	if e.Compact {
		return map[string]any{
			"s":  e.State,
			"lc": model.TS(e.LastChanged),
		}
	}
	out := map[string]any{
		"s":  e.State,
		"a":  e.Attributes,
		"lu": model.TS(e.LastUpdated),
	}
	if !e.LastChanged.Equal(e.LastUpdated) {
		out["lc"] = model.TS(e.LastChanged)
	}
	return out
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
