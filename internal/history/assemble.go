package history

import (
	"log/slog"

	"github.com/roach88/hearth/internal/model"
)

// assembleOptions controls how scanned rows become response entries.
type assembleOptions struct {
	// minimal emits compact entries after the first full one per entity,
	// and only when the state value actually changed. Entities in domains
	// that always need attributes are exempt and stay full.
	minimal bool

	// compressed has no effect on assembly itself; it is threaded through
	// so render sites pick the short-key encoding.
	compressed bool
}

// assemble folds a sorted row slice into per-entity entry lists. Rows must
// arrive grouped by entity and ordered by timestamp with synthesized
// snapshot rows first within an instant; that is exactly what the statement
// builders' ORDER BY produces.
//
// Entities with no rows are absent from the result. Callers that need an
// explicit empty marker per requested entity add it themselves.
func assemble(rows []stateRow, opts assembleOptions, logger *slog.Logger) map[string][]Entry {
	out := make(map[string][]Entry)
	cache := newAttrCache(logger)

	var (
		prevEntity string
		prevTS     float64
		prevState  string
		haveFirst  bool
	)
	for _, row := range rows {
		if row.entityID == "" {
			// A surrogate id with no states_meta row; nothing to attribute
			// the state to.
			continue
		}
		if row.entityID != prevEntity {
			prevEntity = row.entityID
			haveFirst = false
		} else if row.lastUpdatedTS == prevTS {
			// Same instant as the previous row for this entity. The
			// snapshot branch sorts first, so the duplicate real row is
			// the one dropped.
			continue
		}
		prevTS = row.lastUpdatedTS

		ls := newLazyState(row, cache)
		full := !opts.minimal || !haveFirst || needsFullAttributes(model.Domain(row.entityID))
		if full {
			out[row.entityID] = append(out[row.entityID], Entry{
				EntityID:    row.entityID,
				State:       ls.State(),
				Attributes:  ls.Attributes(),
				LastChanged: ls.LastChanged(),
				LastUpdated: ls.LastUpdated(),
				Context:     *ls.Context(),
			})
			haveFirst = true
			prevState = row.state
			continue
		}

		// Compact mode: attribute-only updates carry no new information
		// once attributes are elided, so they are dropped outright.
		if row.state == prevState {
			continue
		}
		prevState = row.state
		out[row.entityID] = append(out[row.entityID], Entry{
			EntityID:    row.entityID,
			State:       ls.State(),
			LastChanged: ls.LastChanged(),
			LastUpdated: ls.LastUpdated(),
			Compact:     true,
		})
	}
	return out
}

// reverseRows flips row order in place. Used by the newest-first lookup to
// present results oldest-first like every other query.
func reverseRows(rows []stateRow) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
