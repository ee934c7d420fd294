package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/history"
	"github.com/roach88/hearth/internal/model"
	"github.com/roach88/hearth/internal/record"
)

// Result holds the rendered output of every query in a scenario, keyed by
// query label, in scenario order.
type Result struct {
	ScenarioName string
	Outputs      []QueryOutput
}

// QueryOutput is one query's rendered response. Entries use the compressed
// encoding; map queries carry one list per requested entity, in request
// order, with an empty list for entities the result omits.
type QueryOutput struct {
	Label    string
	ByEntity map[string][]map[string]any
	Order    []string
}

// Run executes a scenario against a fresh in-memory store. The seed goes
// through the real write path so surrogate ids, attribute dedup, and run
// bookkeeping behave exactly as in production.
func Run(scenario *Scenario) (*Result, error) {
	store, err := db.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	writer, err := record.NewWriter(store, record.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	runStart, err := parseTime(scenario.RunStart)
	if err != nil {
		return nil, err
	}
	if err := writer.StartAt(ctx, runStart); err != nil {
		return nil, err
	}

	for i, seed := range scenario.Seed {
		ev, err := seedEvent(seed)
		if err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		if err := writer.RecordState(ctx, ev); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	if err := writer.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush seed: %w", err)
	}

	engine := history.NewEngine(store, writer.EntityIDs(), logger)

	result := &Result{ScenarioName: scenario.Name}
	for i, q := range scenario.Queries {
		output, err := runQuery(ctx, engine, q)
		if err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
		if output.Label == "" {
			output.Label = strconv.Itoa(i)
		}
		result.Outputs = append(result.Outputs, output)
	}
	return result, nil
}

func seedEvent(seed SeedState) (model.StateChangedEvent, error) {
	updated, err := parseTime(seed.LastUpdated)
	if err != nil {
		return model.StateChangedEvent{}, err
	}
	changed := updated
	if seed.LastChanged != "" {
		changed, err = parseTime(seed.LastChanged)
		if err != nil {
			return model.StateChangedEvent{}, err
		}
	}
	return model.StateChangedEvent{
		EntityID:    seed.EntityID,
		State:       seed.State,
		Attributes:  seed.Attributes,
		LastUpdated: updated,
		LastChanged: changed,
		Context:     model.Context{ID: "scenario-" + seed.EntityID},
	}, nil
}

func runQuery(ctx context.Context, engine *history.Engine, q Query) (QueryOutput, error) {
	output := QueryOutput{Label: q.Label, Order: q.EntityIDs}

	// Validation already checked the formats; an empty string stays the
	// zero time, meaning unbounded.
	start := optionalTime(q.Start)
	end := optionalTime(q.End)

	switch q.Type {
	case QuerySignificant:
		res, err := engine.GetSignificantStates(ctx, history.SignificantStatesRequest{
			Start:           start,
			End:             end,
			EntityIDs:       q.EntityIDs,
			IncludeStart:    q.IncludeStart,
			SignificantOnly: q.SignificantOnly,
			NoAttributes:    q.NoAttributes,
			MinimalResponse: q.MinimalResponse,
			Compressed:      true,
		})
		if err != nil {
			return QueryOutput{}, err
		}
		output.ByEntity = make(map[string][]map[string]any, len(q.EntityIDs))
		for _, entityID := range q.EntityIDs {
			output.ByEntity[entityID] = renderEntries(res[entityID])
		}
	case QueryChanges:
		entries, err := engine.StateChangesDuringPeriod(ctx, history.StateChangesRequest{
			Start:        start,
			End:          end,
			EntityID:     q.EntityIDs[0],
			IncludeStart: q.IncludeStart,
			NoAttributes: q.NoAttributes,
			Limit:        q.Limit,
		})
		if err != nil {
			return QueryOutput{}, err
		}
		output.ByEntity = map[string][]map[string]any{
			q.EntityIDs[0]: renderEntries(entries),
		}
	case QueryLast:
		entries, err := engine.GetLastStateChanges(ctx, q.EntityIDs[0], q.Limit)
		if err != nil {
			return QueryOutput{}, err
		}
		output.ByEntity = map[string][]map[string]any{
			q.EntityIDs[0]: renderEntries(entries),
		}
	}
	return output, nil
}

func renderEntries(entries []history.Entry) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = e.Compressed()
	}
	return out
}

func optionalTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
