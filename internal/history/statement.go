package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/model"
)

// Statement builders. Each returns (sql, args) for one of the three request
// shapes, branching once on the store's schema era. Building never executes.
//
// Projection is fixed per era so every statement (including the UNION ALL
// start-time branch) scans identically:
//
//	entity key, state, last_updated, last_changed, attributes_id,
//	shared_attrs, context_id, context_user_id, context_parent_id,
//	synthesized
//
// The synthesized marker distinguishes the start-of-window snapshot branch;
// it sorts before a real row at the same instant so the assembler can drop
// the duplicate deterministically.

type buildParams struct {
	era   db.Era
	start time.Time
	end   time.Time // zero = open-ended

	// Modern era entity selection (surrogate ids); sigMetaIDs is the subset
	// in significance-exempt domains.
	metaIDs    []int64
	sigMetaIDs []int64

	// Legacy era entity selection (string ids).
	entityIDs    []string
	sigEntityIDs []string

	noAttributes    bool
	significantOnly bool
	includeStart    bool
	descending      bool
	limit           int

	// runStart bounds how far back the start-time snapshot may scan; zero
	// means no recorder run is open and no floor applies.
	runStart time.Time
}

// entityCount reports how many entities the selection names, era-agnostic.
func (p buildParams) entityCount() int {
	if p.era == db.EraModern {
		return len(p.metaIDs)
	}
	return len(p.entityIDs)
}

// allSignificant reports whether every selected entity is in a
// significance-exempt domain, in which case the filter is a no-op.
func (p buildParams) allSignificant() bool {
	if p.era == db.EraModern {
		return len(p.sigMetaIDs) == len(p.metaIDs)
	}
	return len(p.sigEntityIDs) == len(p.entityIDs)
}

// Column names per era.
func (p buildParams) entityCol() string {
	if p.era == db.EraModern {
		return "s.metadata_id"
	}
	return "s.entity_id"
}

func (p buildParams) updatedCol() string {
	if p.era == db.EraModern {
		return "s.last_updated_ts"
	}
	return "s.last_updated"
}

func (p buildParams) changedCol() string {
	if p.era == db.EraModern {
		return "s.last_changed_ts"
	}
	return "s.last_changed"
}

func (p buildParams) updatedAlias() string {
	if p.era == db.EraModern {
		return "last_updated_ts"
	}
	return "last_updated"
}

// tsValue renders a time as the era's column value.
func (p buildParams) tsValue(t time.Time) any {
	if p.era == db.EraModern {
		return model.TS(t)
	}
	return model.FormatLegacy(t)
}

// basePlan builds the shared SELECT ... FROM states skeleton.
func basePlan(p buildParams, synthesized bool) Plan {
	plan := Plan{From: "states s"}

	var updated, changed string
	if synthesized {
		// The snapshot row is presented as if its timestamp were exactly
		// the window start.
		updated = "? AS " + p.updatedAlias()
		changed = "NULL AS last_changed"
		if p.era == db.EraModern {
			changed = "NULL AS last_changed_ts"
		}
		plan.Args = append(plan.Args, p.tsValue(p.start))
	} else {
		updated = p.updatedCol() + " AS " + p.updatedAlias()
		if p.era == db.EraModern {
			changed = "s.last_changed_ts AS last_changed_ts"
		} else {
			changed = "s.last_changed AS last_changed"
		}
	}

	var attrs string
	switch {
	case p.noAttributes:
		attrs = "NULL AS shared_attrs"
	case p.era == db.EraModern:
		attrs = "sa.shared_attrs AS shared_attrs"
		plan.Joins = append(plan.Joins,
			"LEFT JOIN state_attributes sa ON s.attributes_id = sa.attributes_id")
	default:
		// Oldest legacy rows carry inline attributes; newer legacy rows
		// reference the shared blob table.
		attrs = "CASE WHEN sa.shared_attrs IS NULL THEN s.attributes ELSE sa.shared_attrs END AS shared_attrs"
		plan.Joins = append(plan.Joins,
			"LEFT JOIN state_attributes sa ON s.attributes_id = sa.attributes_id")
	}

	synthCol := "0 AS synthesized"
	if synthesized {
		synthCol = "1 AS synthesized"
	}

	entityAlias := "entity_id"
	if p.era == db.EraModern {
		entityAlias = "metadata_id"
	}

	plan.Columns = []string{
		p.entityCol() + " AS " + entityAlias,
		"s.state AS state",
		updated,
		changed,
		"s.attributes_id AS attributes_id",
		attrs,
		"s.context_id AS context_id",
		"s.context_user_id AS context_user_id",
		"s.context_parent_id AS context_parent_id",
		synthCol,
	}
	return plan
}

// entityPredicate appends the entity-selection filter.
func entityPredicate(p buildParams, plan *Plan) {
	if p.era == db.EraModern {
		placeholders, args := int64InClause(p.metaIDs)
		plan.Where = append(plan.Where, fmt.Sprintf("s.metadata_id IN (%s)", placeholders))
		plan.Args = append(plan.Args, args...)
		return
	}
	placeholders, args := stringInClause(p.entityIDs)
	plan.Where = append(plan.Where, fmt.Sprintf("s.entity_id IN (%s)", placeholders))
	plan.Args = append(plan.Args, args...)
}

// changeOnlyPredicate is the "state actually changed" filter: a row whose
// last_changed differs from last_updated records an attributes-only update.
func changeOnlyPredicate(p buildParams) string {
	return fmt.Sprintf("(%s = %s OR %s IS NULL)",
		p.changedCol(), p.updatedCol(), p.changedCol())
}

// significancePredicate appends the significance filter: entities in exempt
// domains keep every row, everyone else keeps only real value changes. With
// a single non-exempt entity this degenerates to the plain change filter,
// which is the documented single-entity optimization.
func significancePredicate(p buildParams, plan *Plan) {
	changeOnly := changeOnlyPredicate(p)
	if p.era == db.EraModern && len(p.sigMetaIDs) > 0 {
		placeholders, args := int64InClause(p.sigMetaIDs)
		plan.Where = append(plan.Where,
			fmt.Sprintf("(s.metadata_id IN (%s) OR %s)", placeholders, changeOnly))
		plan.Args = append(plan.Args, args...)
		return
	}
	if p.era == db.EraLegacy && len(p.sigEntityIDs) > 0 {
		placeholders, args := stringInClause(p.sigEntityIDs)
		plan.Where = append(plan.Where,
			fmt.Sprintf("(s.entity_id IN (%s) OR %s)", placeholders, changeOnly))
		plan.Args = append(plan.Args, args...)
		return
	}
	plan.Where = append(plan.Where, changeOnly)
}

// windowPredicate appends [start, end) bounds on last_updated.
func windowPredicate(p buildParams, plan *Plan) {
	if !p.start.IsZero() {
		plan.Where = append(plan.Where, p.updatedCol()+" >= ?")
		plan.Args = append(plan.Args, p.tsValue(p.start))
	}
	if !p.end.IsZero() {
		plan.Where = append(plan.Where, p.updatedCol()+" < ?")
		plan.Args = append(plan.Args, p.tsValue(p.end))
	}
}

// orderBy returns the outer ordering: grouped by entity, then time in the
// requested direction. The synthesized marker sorts the snapshot branch
// before a real row at the same instant.
func orderBy(p buildParams) []string {
	entityAlias := "entity_id"
	if p.era == db.EraModern {
		entityAlias = "metadata_id"
	}
	direction := ""
	if p.descending {
		direction = " DESC"
	}
	return []string{
		entityAlias,
		p.updatedAlias() + direction,
		"synthesized DESC",
	}
}

// startTimeBranch builds the sub-query that finds, per entity, the newest
// row strictly before the window start, bounded below by the run start so
// the scan cannot walk the whole table. Single-entity selections use a
// direct max-timestamp lookup; multi-entity selections use a group-by join
// because one query per entity would not scale.
func startTimeBranch(p buildParams) Plan {
	plan := basePlan(p, true)

	if p.entityCount() == 1 {
		sub := fmt.Sprintf(
			"(SELECT MAX(%s) FROM states WHERE %s = ? AND %s < ?%s)",
			strings.TrimPrefix(p.updatedCol(), "s."),
			strings.TrimPrefix(p.entityCol(), "s."),
			strings.TrimPrefix(p.updatedCol(), "s."),
			runFloor(p),
		)
		plan.Where = append(plan.Where,
			p.entityCol()+" = ?",
			p.updatedCol()+" = "+sub,
		)
		var entity any
		if p.era == db.EraModern {
			entity = p.metaIDs[0]
		} else {
			entity = p.entityIDs[0]
		}
		plan.Args = append(plan.Args, entity, entity, p.tsValue(p.start))
		if !p.runStart.IsZero() {
			plan.Args = append(plan.Args, p.tsValue(p.runStart))
		}
		return plan
	}

	keyCol := strings.TrimPrefix(p.entityCol(), "s.")
	updCol := strings.TrimPrefix(p.updatedCol(), "s.")
	var placeholders string
	var args []any
	if p.era == db.EraModern {
		placeholders, args = int64InClause(p.metaIDs)
	} else {
		placeholders, args = stringInClause(p.entityIDs)
	}
	join := fmt.Sprintf(
		"JOIN (SELECT %[1]s, MAX(%[2]s) AS max_ts FROM states"+
			" WHERE %[2]s < ?%[3]s AND %[1]s IN (%[4]s) GROUP BY %[1]s) AS most_recent"+
			" ON %[5]s = most_recent.%[1]s AND %[6]s = most_recent.max_ts",
		keyCol, updCol, runFloor(p), placeholders, p.entityCol(), p.updatedCol(),
	)
	// The attributes join must run after the snapshot join.
	plan.Joins = append([]string{join}, plan.Joins...)
	plan.Args = append(plan.Args, p.tsValue(p.start))
	if !p.runStart.IsZero() {
		plan.Args = append(plan.Args, p.tsValue(p.runStart))
	}
	plan.Args = append(plan.Args, args...)
	return plan
}

// runFloor renders the optional run-start lower bound inside a sub-query.
func runFloor(p buildParams) string {
	if p.runStart.IsZero() {
		return ""
	}
	col := strings.TrimPrefix(p.updatedCol(), "s.")
	return " AND " + col + " >= ?"
}

// significantStatesStmt builds request shape 1: significant states for N
// entities over [start, end).
func significantStatesStmt(p buildParams) (string, []any) {
	main := basePlan(p, false)
	entityPredicate(p, &main)
	windowPredicate(p, &main)
	if p.significantOnly && !p.allSignificant() {
		significancePredicate(p, &main)
	}
	main.OrderBy = orderBy(p)

	if p.includeStart {
		return UnionAll(startTimeBranch(p), main, orderBy(p), 0)
	}
	return main.SQL(), main.Args
}

// stateChangesStmt builds request shape 2: raw state changes for one entity
// over [start, end), with optional limit and direction. The change filter
// applies regardless of domain.
func stateChangesStmt(p buildParams) (string, []any) {
	main := basePlan(p, false)
	entityPredicate(p, &main)
	windowPredicate(p, &main)
	main.Where = append(main.Where, changeOnlyPredicate(p))
	main.OrderBy = orderBy(p)
	main.Limit = p.limit

	if p.includeStart && !p.start.IsZero() {
		return UnionAll(startTimeBranch(p), main, orderBy(p), p.limit)
	}
	return main.SQL(), main.Args
}

// lastStateChangesStmt builds request shape 3: the N newest changes for one
// entity with no time floor. Scanning backwards by row id avoids an
// unbounded walk of the ascending time index; the caller reverses the rows
// for oldest-first presentation.
func lastStateChangesStmt(p buildParams, n int) (string, []any) {
	main := basePlan(p, false)
	entityPredicate(p, &main)
	main.Where = append(main.Where, changeOnlyPredicate(p))
	main.OrderBy = []string{"s.state_id DESC"}
	main.Limit = n
	return main.SQL(), main.Args
}

func int64InClause(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	placeholders := make([]byte, 0, len(ids)*2-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}

func stringInClause(keys []string) (string, []any) {
	if len(keys) == 0 {
		return "", nil
	}
	placeholders := make([]byte, 0, len(keys)*2-1)
	args := make([]any, len(keys))
	for i, key := range keys {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = key
	}
	return string(placeholders), args
}
