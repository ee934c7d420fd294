package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Query type names accepted in scenario files.
const (
	QuerySignificant = "significant"
	QueryChanges     = "changes"
	QueryLast        = "last"
)

// Scenario is one end-to-end history test: seed states recorded through the
// real write path, then queries whose rendered output is snapshotted.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// RunStart is the recorder run start, RFC 3339. Seed states must not
	// predate it or the start-time snapshot floor would hide them.
	RunStart string `yaml:"run_start"`

	// Seed lists state changes to record, in order.
	Seed []SeedState `yaml:"seed"`

	// Queries run after the seed is flushed.
	Queries []Query `yaml:"queries"`
}

// SeedState is one recorded state change. Times are RFC 3339; LastChanged
// defaults to LastUpdated.
type SeedState struct {
	EntityID    string         `yaml:"entity_id"`
	State       string         `yaml:"state"`
	Attributes  map[string]any `yaml:"attributes,omitempty"`
	LastUpdated string         `yaml:"last_updated"`
	LastChanged string         `yaml:"last_changed,omitempty"`
}

// Query describes one history request.
type Query struct {
	// Type is one of significant, changes, last.
	Type string `yaml:"type"`

	// Label names the query in the snapshot; defaults to its index.
	Label string `yaml:"label,omitempty"`

	EntityIDs []string `yaml:"entity_ids"`
	Start     string   `yaml:"start,omitempty"`
	End       string   `yaml:"end,omitempty"`

	IncludeStart    bool `yaml:"include_start,omitempty"`
	SignificantOnly bool `yaml:"significant_only,omitempty"`
	NoAttributes    bool `yaml:"no_attributes,omitempty"`
	MinimalResponse bool `yaml:"minimal_response,omitempty"`
	Limit           int  `yaml:"limit,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file. Unknown fields are
// rejected so a typoed key fails loudly instead of silently not applying.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.RunStart == "" {
		return fmt.Errorf("run_start is required")
	}
	if _, err := parseTime(s.RunStart); err != nil {
		return fmt.Errorf("run_start: %w", err)
	}
	if len(s.Seed) == 0 {
		return fmt.Errorf("seed list is required and must be non-empty")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i, seed := range s.Seed {
		if seed.EntityID == "" {
			return fmt.Errorf("seed[%d]: entity_id is required", i)
		}
		if _, err := parseTime(seed.LastUpdated); err != nil {
			return fmt.Errorf("seed[%d]: last_updated: %w", i, err)
		}
		if seed.LastChanged != "" {
			if _, err := parseTime(seed.LastChanged); err != nil {
				return fmt.Errorf("seed[%d]: last_changed: %w", i, err)
			}
		}
	}

	for i, q := range s.Queries {
		switch q.Type {
		case QuerySignificant:
			if len(q.EntityIDs) == 0 {
				return fmt.Errorf("queries[%d]: entity_ids is required", i)
			}
		case QueryChanges, QueryLast:
			if len(q.EntityIDs) != 1 {
				return fmt.Errorf("queries[%d]: %s takes exactly one entity id", i, q.Type)
			}
		default:
			return fmt.Errorf("queries[%d]: unknown query type %q", i, q.Type)
		}
		if q.Type == QueryLast && q.Limit <= 0 {
			return fmt.Errorf("queries[%d]: last requires a positive limit", i)
		}
		if q.Start != "" {
			if _, err := parseTime(q.Start); err != nil {
				return fmt.Errorf("queries[%d]: start: %w", i, err)
			}
		}
		if q.End != "" {
			if _, err := parseTime(q.End); err != nil {
				return fmt.Errorf("queries[%d]: end: %w", i, err)
			}
		}
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
