package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/model"
)

// stateRow is one scanned result row, normalized across eras: legacy
// datetime strings are parsed to epoch seconds at scan time so everything
// downstream sees one shape.
type stateRow struct {
	entityID       string
	state          string
	lastUpdatedTS  float64
	lastChangedTS  float64
	hasLastChanged bool
	attributesID   int64 // 0 = none
	attrs          string
	hasAttrs       bool
	ctxID          string
	ctxUserID      string
	ctxParentID    string
	synthesized    bool
}

// scanRows drains a result set into memory. metaToEntity resolves modern
// surrogate ids back to entity ids; nil for the legacy era.
func scanRows(rows *sql.Rows, era db.Era, metaToEntity map[int64]string) ([]stateRow, error) {
	var out []stateRow
	for rows.Next() {
		var row stateRow
		var err error
		if era == db.EraModern {
			row, err = scanRowModern(rows, metaToEntity)
		} else {
			row, err = scanRowLegacy(rows)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return out, nil
}

func scanRowModern(rows *sql.Rows, metaToEntity map[int64]string) (stateRow, error) {
	var (
		metadataID  int64
		state       sql.NullString
		updated     sql.NullFloat64
		changed     sql.NullFloat64
		attrsID     sql.NullInt64
		attrs       sql.NullString
		ctxID       sql.NullString
		ctxUser     sql.NullString
		ctxParent   sql.NullString
		synthesized int
	)
	if err := rows.Scan(
		&metadataID, &state, &updated, &changed, &attrsID, &attrs,
		&ctxID, &ctxUser, &ctxParent, &synthesized,
	); err != nil {
		return stateRow{}, fmt.Errorf("scan state row: %w", err)
	}
	return stateRow{
		entityID:       metaToEntity[metadataID],
		state:          state.String,
		lastUpdatedTS:  updated.Float64,
		lastChangedTS:  changed.Float64,
		hasLastChanged: changed.Valid,
		attributesID:   attrsID.Int64,
		attrs:          attrs.String,
		hasAttrs:       attrs.Valid,
		ctxID:          ctxID.String,
		ctxUserID:      ctxUser.String,
		ctxParentID:    ctxParent.String,
		synthesized:    synthesized != 0,
	}, nil
}

func scanRowLegacy(rows *sql.Rows) (stateRow, error) {
	var (
		entityID    sql.NullString
		state       sql.NullString
		updated     sql.NullString
		changed     sql.NullString
		attrsID     sql.NullInt64
		attrs       sql.NullString
		ctxID       sql.NullString
		ctxUser     sql.NullString
		ctxParent   sql.NullString
		synthesized int
	)
	if err := rows.Scan(
		&entityID, &state, &updated, &changed, &attrsID, &attrs,
		&ctxID, &ctxUser, &ctxParent, &synthesized,
	); err != nil {
		return stateRow{}, fmt.Errorf("scan legacy state row: %w", err)
	}

	updatedAt, err := model.ParseLegacy(updated.String)
	if err != nil {
		return stateRow{}, fmt.Errorf("parse last_updated %q: %w", updated.String, err)
	}
	row := stateRow{
		entityID:      entityID.String,
		state:         state.String,
		lastUpdatedTS: model.TS(updatedAt),
		attributesID:  attrsID.Int64,
		attrs:         attrs.String,
		hasAttrs:      attrs.Valid,
		ctxID:         ctxID.String,
		ctxUserID:     ctxUser.String,
		ctxParentID:   ctxParent.String,
		synthesized:   synthesized != 0,
	}
	if changed.Valid && changed.String != "" {
		changedAt, err := model.ParseLegacy(changed.String)
		if err != nil {
			return stateRow{}, fmt.Errorf("parse last_changed %q: %w", changed.String, err)
		}
		row.lastChangedTS = model.TS(changedAt)
		row.hasLastChanged = true
	}
	return row, nil
}

// attrCache memoizes decoded attribute payloads per shared blob for the
// lifetime of one assembler pass. Scoped per query on purpose: a global memo
// would grow without bound across queries.
type attrCache struct {
	byBlob map[int64]map[string]any
	logger *slog.Logger
}

func newAttrCache(logger *slog.Logger) *attrCache {
	return &attrCache{byBlob: make(map[int64]map[string]any), logger: logger}
}

// decode parses an attributes payload, memoizing by blob id. Malformed
// stored JSON must not abort the whole query: it is logged and an empty map
// stands in for that blob.
func (c *attrCache) decode(blobID int64, raw string) map[string]any {
	if blobID != 0 {
		if cached, ok := c.byBlob[blobID]; ok {
			return cached
		}
	}
	decoded := decodeAttributes(raw, c.logger)
	if blobID != 0 {
		c.byBlob[blobID] = decoded
	}
	return decoded
}

func decodeAttributes(raw string, logger *slog.Logger) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logger.Error("error decoding stored attributes, substituting empty",
			"error", err)
		return map[string]any{}
	}
	if decoded == nil {
		return map[string]any{}
	}
	return decoded
}

// LazyState is a read-only state view over one raw row. Attributes are
// decoded on first access and shared through the per-query memo; the context
// is built lazily because historical rows are rarely inspected for
// provenance.
type LazyState struct {
	row        stateRow
	cache      *attrCache
	attributes map[string]any
	context    *model.Context
}

func newLazyState(row stateRow, cache *attrCache) *LazyState {
	return &LazyState{row: row, cache: cache}
}

func (s *LazyState) EntityID() string { return s.row.entityID }
func (s *LazyState) State() string    { return s.row.state }

func (s *LazyState) LastUpdated() time.Time {
	return model.FromTS(s.row.lastUpdatedTS)
}

// LastChanged returns the stored change time, which equals LastUpdated when
// no separate change time was recorded.
func (s *LazyState) LastChanged() time.Time {
	if s.row.hasLastChanged && s.row.lastChangedTS != s.row.lastUpdatedTS {
		return model.FromTS(s.row.lastChangedTS)
	}
	return s.LastUpdated()
}

// Attributes decodes and caches the attribute payload. Rows selected with
// NoAttributes return an empty map.
func (s *LazyState) Attributes() map[string]any {
	if s.attributes == nil {
		s.attributes = s.cache.decode(s.row.attributesID, s.row.attrs)
	}
	return s.attributes
}

// Context returns the provenance context, constructed on first access.
func (s *LazyState) Context() *model.Context {
	if s.context == nil {
		s.context = &model.Context{
			ID:       s.row.ctxID,
			UserID:   s.row.ctxUserID,
			ParentID: s.row.ctxParentID,
		}
	}
	return s.context
}
