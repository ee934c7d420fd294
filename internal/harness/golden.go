package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/hearth/internal/model"
)

// RunWithGolden executes a scenario and compares its rendered output against
// testdata/golden/{scenario.Name}.golden. Canonical JSON keeps the snapshot
// byte-stable across runs.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	snapshot, err := model.MarshalCanonical(result.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}

// toCanonicalMap renders the result as plain maps and slices for canonical
// serialization. Entity lists appear in request order.
func (r *Result) toCanonicalMap() map[string]any {
	queries := make([]any, len(r.Outputs))
	for i, output := range r.Outputs {
		entities := make([]any, 0, len(output.Order))
		for _, entityID := range output.Order {
			entries := output.ByEntity[entityID]
			list := make([]any, len(entries))
			for j, entry := range entries {
				list[j] = entry
			}
			entities = append(entities, map[string]any{
				"entity_id": entityID,
				"entries":   list,
			})
		}
		queries[i] = map[string]any{
			"label":    output.Label,
			"entities": entities,
		}
	}
	return map[string]any{
		"scenario_name": r.ScenarioName,
		"queries":       queries,
	}
}
