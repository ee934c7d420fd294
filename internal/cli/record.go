package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/filters"
	"github.com/roach88/hearth/internal/model"
	"github.com/roach88/hearth/internal/record"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Database string
}

// StateLogEntry is one entry of a YAML state log. Times are RFC 3339;
// last_changed defaults to last_updated.
type StateLogEntry struct {
	EntityID    string         `yaml:"entity_id"`
	State       string         `yaml:"state"`
	Removed     bool           `yaml:"removed,omitempty"`
	Attributes  map[string]any `yaml:"attributes,omitempty"`
	LastUpdated string         `yaml:"last_updated"`
	LastChanged string         `yaml:"last_changed,omitempty"`
}

// NewRecordCommand creates the record command: ingest a YAML state log.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <state-log.yaml>",
		Short: "Record a YAML state log into the database",
		Long: `Record a YAML state log through the batch write path.

The log is a list of state changes applied in order inside one recorder run.
Entities excluded by the configured filter are skipped.

Example:
  hearth record --db ./hearth.db states.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runRecord(opts *RecordOptions, logPath string, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	dbPath, err := resolveDatabase(opts.Database, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve database", err)
	}

	entries, err := loadStateLog(logPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load state log", err)
	}

	// Unlike the read commands, record creates the database on first use.
	store, err := db.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	writer, err := record.NewWriter(store, record.Options{
		BatchSize:          cfg.BatchSize,
		Filter:             filters.New(cfg.Filter),
		EntityIDCacheSize:  cfg.EntityIDCacheSize,
		EventTypeCacheSize: cfg.EventTypeCacheSize,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create writer", err)
	}

	ctx := cmd.Context()
	if err := writer.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start run", err)
	}

	for i, entry := range entries {
		ev, err := stateLogEvent(entry)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("state log entry %d", i), err)
		}
		if err := writer.RecordState(ctx, ev); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("record entry %d", i), err)
		}
	}
	if err := writer.Close(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to flush", err)
	}

	slog.Info("state log recorded", "entries", len(entries), "db", dbPath)
	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout, Verbose: opts.Verbose}
	if opts.Format == "json" {
		return f.JSON(map[string]any{"recorded": len(entries)})
	}
	f.Textf("recorded %d state changes", len(entries))
	return nil
}

func loadStateLog(path string) ([]StateLogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state log: %w", err)
	}
	var entries []StateLogEntry
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse state log: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("state log is empty")
	}
	return entries, nil
}

func stateLogEvent(entry StateLogEntry) (model.StateChangedEvent, error) {
	if entry.EntityID == "" {
		return model.StateChangedEvent{}, fmt.Errorf("entity_id is required")
	}
	updated, err := time.Parse(time.RFC3339, entry.LastUpdated)
	if err != nil {
		return model.StateChangedEvent{}, fmt.Errorf("last_updated: %w", err)
	}
	changed := updated
	if entry.LastChanged != "" {
		changed, err = time.Parse(time.RFC3339, entry.LastChanged)
		if err != nil {
			return model.StateChangedEvent{}, fmt.Errorf("last_changed: %w", err)
		}
	}
	return model.StateChangedEvent{
		EntityID:    entry.EntityID,
		State:       entry.State,
		Removed:     entry.Removed,
		Attributes:  entry.Attributes,
		LastUpdated: updated.UTC(),
		LastChanged: changed.UTC(),
	}, nil
}
