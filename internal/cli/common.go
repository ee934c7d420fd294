package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/history"
	"github.com/roach88/hearth/internal/meta"
)

// resolveDatabase picks the database path from the --db flag, falling back
// to the config file.
func resolveDatabase(flagValue string, cfg Config) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg.Database != "" {
		return cfg.Database, nil
	}
	return "", fmt.Errorf("no database path: pass --db or set database in the config")
}

// openStore opens an existing recorder database. Read-side commands refuse
// to create one: a typoed path should fail, not produce an empty history.
func openStore(path string) (*db.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return db.Open(path)
}

// newEngine builds a query engine with a fresh entity-id manager sized from
// the config.
func newEngine(store *db.Store, cfg Config) *history.Engine {
	entities := meta.NewEntityIDManager(cfg.EntityIDCacheSize)
	return history.NewEngine(store, entities, nil)
}

// parseTimeFlag parses an RFC 3339 time flag; empty means unset.
func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t.UTC(), nil
}

// renderEntries writes one entity's entries in the requested format.
func renderEntries(f *OutputFormatter, entityID string, entries []history.Entry) {
	f.Textf("%s (%d entries):", entityID, len(entries))
	for _, e := range entries {
		if e.Compact {
			f.Textf("  %s  %s", e.LastChanged.Format(time.RFC3339Nano), e.State)
			continue
		}
		f.Textf("  %s  %s  attrs=%d", e.LastUpdated.Format(time.RFC3339Nano), e.State, len(e.Attributes))
	}
}

// verboseEntries renders entries for the JSON format.
func verboseEntries(entries []history.Entry) []map[string]any {
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = e.Verbose()
	}
	return out
}
