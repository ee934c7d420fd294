package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/hearth/internal/filters"
)

// Config is the decoded hearth.cue configuration.
type Config struct {
	// Database is the SQLite file path. The --db flag overrides it.
	Database string `json:"database"`

	// BatchSize is the writer's flush threshold; 0 selects the default.
	BatchSize int `json:"batch_size"`

	// Cache capacities for the surrogate-id managers; 0 selects defaults.
	EntityIDCacheSize  int `json:"entity_id_cache_size"`
	EventTypeCacheSize int `json:"event_type_cache_size"`

	// Filter selects which entities the record command persists.
	Filter filters.Config `json:"filter"`
}

// LoadConfig reads and decodes a CUE config file. An empty path returns the
// zero config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config file: %w", err)
	}

	dir := filepath.Dir(path)
	instances := load.Instances([]string{filepath.Base(path)}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return Config{}, fmt.Errorf("load config %s: no CUE instances", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("build config %s: %w", path, err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}
