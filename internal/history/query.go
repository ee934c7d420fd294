package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/filters"
	"github.com/roach88/hearth/internal/meta"
	"github.com/roach88/hearth/internal/model"
)

// Engine answers history queries against one store. The schema era is fixed
// at construction; queries never re-detect it.
type Engine struct {
	store    *db.Store
	entities *meta.EntityIDManager
	logger   *slog.Logger
}

// NewEngine creates a query engine. The entity manager may be shared with a
// writer on the same store; the engine only reads through it.
func NewEngine(store *db.Store, entities *meta.EntityIDManager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, entities: entities, logger: logger}
}

// SignificantStatesRequest describes a windowed significant-states query.
type SignificantStatesRequest struct {
	Start     time.Time
	End       time.Time // zero = open-ended
	EntityIDs []string

	// Filter is rejected when EntityIDs is non-empty; it exists so callers
	// holding a filter get a loud error instead of a silently ignored one.
	Filter *filters.Filter

	// IncludeStart synthesizes each entity's state as of Start from the
	// newest earlier row.
	IncludeStart bool

	// SignificantOnly keeps, for entities outside the exempt domains, only
	// rows whose state value actually changed.
	SignificantOnly bool

	// NoAttributes skips attribute retrieval entirely; every entry decodes
	// to an empty attribute map.
	NoAttributes bool

	// MinimalResponse compacts interior entries to {state, last_changed}.
	MinimalResponse bool

	// Compressed selects the short-key encoding at render time.
	Compressed bool
}

// StateChangesRequest describes a windowed single-entity change query.
type StateChangesRequest struct {
	Start        time.Time
	End          time.Time
	EntityID     string
	IncludeStart bool
	NoAttributes bool
	Descending   bool
	Limit        int // 0 = no limit
}

// GetSignificantStates returns, per entity, the ordered history entries over
// [Start, End). Entities with no qualifying rows are absent from the map.
func (e *Engine) GetSignificantStates(ctx context.Context, req SignificantStatesRequest) (map[string][]Entry, error) {
	if len(req.EntityIDs) == 0 {
		return nil, ErrNoEntityIDs
	}
	if req.Filter.HasConfig() {
		return nil, ErrFilterWithEntityIDs
	}

	p, metaToEntity, err := e.newBuildParams(ctx, req.EntityIDs)
	if err != nil {
		return nil, err
	}
	p.start = req.Start
	p.end = req.End
	p.noAttributes = req.NoAttributes
	p.significantOnly = req.SignificantOnly
	p.includeStart = req.IncludeStart

	if p.entityCount() == 0 {
		// None of the requested entities has ever been recorded.
		return map[string][]Entry{}, nil
	}
	if p.includeStart {
		if err := e.loadRunFloor(ctx, &p); err != nil {
			return nil, err
		}
	}

	query, args := significantStatesStmt(p)
	rows, err := e.queryRows(ctx, query, args, metaToEntity)
	if err != nil {
		return nil, err
	}
	return assemble(rows, assembleOptions{
		minimal:    req.MinimalResponse,
		compressed: req.Compressed,
	}, e.logger), nil
}

// StateChangesDuringPeriod returns every state change for one entity over
// [Start, End), oldest first unless Descending.
func (e *Engine) StateChangesDuringPeriod(ctx context.Context, req StateChangesRequest) ([]Entry, error) {
	if req.EntityID == "" {
		return nil, ErrNoEntityIDs
	}
	if req.Limit < 0 {
		return nil, ErrInvalidLimit
	}

	p, metaToEntity, err := e.newBuildParams(ctx, []string{req.EntityID})
	if err != nil {
		return nil, err
	}
	p.start = req.Start
	p.end = req.End
	p.noAttributes = req.NoAttributes
	p.includeStart = req.IncludeStart
	p.descending = req.Descending
	p.limit = req.Limit

	if p.entityCount() == 0 {
		return nil, nil
	}
	if p.includeStart {
		if err := e.loadRunFloor(ctx, &p); err != nil {
			return nil, err
		}
	}

	query, args := stateChangesStmt(p)
	rows, err := e.queryRows(ctx, query, args, metaToEntity)
	if err != nil {
		return nil, err
	}
	return assemble(rows, assembleOptions{}, e.logger)[req.EntityID], nil
}

// GetLastStateChanges returns the n newest state changes for one entity,
// presented oldest first. No time window applies.
func (e *Engine) GetLastStateChanges(ctx context.Context, entityID string, n int) ([]Entry, error) {
	if entityID == "" {
		return nil, ErrNoEntityIDs
	}
	if n <= 0 {
		return nil, ErrInvalidLimit
	}

	p, metaToEntity, err := e.newBuildParams(ctx, []string{entityID})
	if err != nil {
		return nil, err
	}
	if p.entityCount() == 0 {
		return nil, nil
	}

	query, args := lastStateChangesStmt(p, n)
	rows, err := e.queryRows(ctx, query, args, metaToEntity)
	if err != nil {
		return nil, err
	}
	reverseRows(rows)
	return assemble(rows, assembleOptions{}, e.logger)[entityID], nil
}

// newBuildParams resolves the entity selection for the store's era. In the
// modern era entity ids become surrogate ids in one batch lookup; ids that
// were never recorded simply drop out of the selection. The significant
// subset is computed per era alongside.
func (e *Engine) newBuildParams(ctx context.Context, entityIDs []string) (buildParams, map[int64]string, error) {
	p := buildParams{era: e.store.Era()}

	if p.era == db.EraLegacy {
		p.entityIDs = append([]string(nil), entityIDs...)
		sort.Strings(p.entityIDs)
		for _, id := range p.entityIDs {
			if isSignificantDomain(model.Domain(id)) {
				p.sigEntityIDs = append(p.sigEntityIDs, id)
			}
		}
		return p, nil, nil
	}

	ids, err := e.entities.GetMany(ctx, e.store.DB(), entityIDs)
	if err != nil {
		return buildParams{}, nil, fmt.Errorf("resolve entity ids: %w", err)
	}
	metaToEntity := make(map[int64]string, len(ids))
	for _, entityID := range entityIDs {
		metaID, ok := ids[entityID]
		if !ok {
			continue
		}
		metaToEntity[metaID] = entityID
		p.metaIDs = append(p.metaIDs, metaID)
		if isSignificantDomain(model.Domain(entityID)) {
			p.sigMetaIDs = append(p.sigMetaIDs, metaID)
		}
	}
	sort.Slice(p.metaIDs, func(i, j int) bool { return p.metaIDs[i] < p.metaIDs[j] })
	sort.Slice(p.sigMetaIDs, func(i, j int) bool { return p.sigMetaIDs[i] < p.sigMetaIDs[j] })
	return p, metaToEntity, nil
}

// loadRunFloor populates the start-time scan floor from the open recorder
// run. No open run means no floor.
func (e *Engine) loadRunFloor(ctx context.Context, p *buildParams) error {
	run, ok, err := e.store.CurrentRun(ctx)
	if err != nil {
		return err
	}
	if ok {
		p.runStart = run.Start
	}
	return nil
}

func (e *Engine) queryRows(ctx context.Context, query string, args []any, metaToEntity map[int64]string) ([]stateRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, e.store.Era(), metaToEntity)
}
