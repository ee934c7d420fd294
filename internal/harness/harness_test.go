package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarioGoldens(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, `
name: bad
description: typoed key
run_start: "2026-08-01T00:00:00Z"
sead:
  - entity_id: light.kitchen
queries:
  - type: last
    entity_ids: [light.kitchen]
    limit: 1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
}

func TestLoadScenarioValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing run_start", `
name: x
description: d
seed:
  - entity_id: a.b
    last_updated: "2026-08-01T00:00:00Z"
queries:
  - type: last
    entity_ids: [a.b]
    limit: 1
`},
		{"last without limit", `
name: x
description: d
run_start: "2026-08-01T00:00:00Z"
seed:
  - entity_id: a.b
    last_updated: "2026-08-01T00:00:00Z"
queries:
  - type: last
    entity_ids: [a.b]
`},
		{"changes with two entities", `
name: x
description: d
run_start: "2026-08-01T00:00:00Z"
seed:
  - entity_id: a.b
    last_updated: "2026-08-01T00:00:00Z"
queries:
  - type: changes
    entity_ids: [a.b, c.d]
    start: "2026-08-01T00:00:00Z"
`},
		{"unknown query type", `
name: x
description: d
run_start: "2026-08-01T00:00:00Z"
seed:
  - entity_id: a.b
    last_updated: "2026-08-01T00:00:00Z"
queries:
  - type: nonsense
    entity_ids: [a.b]
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "scenario.yaml")
			writeFile(t, path, tc.body)
			_, err := LoadScenario(path)
			require.Error(t, err)
		})
	}
}
