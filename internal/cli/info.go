package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Database string
}

// NewInfoCommand creates the info command: schema version, era, and the
// current recorder run.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "info",
		Short:         "Show database schema version and run state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runInfo(opts *InfoOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	dbPath, err := resolveDatabase(opts.Database, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve database", err)
	}

	store, err := openStore(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	run, hasRun, err := store.CurrentRun(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read current run", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout, Verbose: opts.Verbose}
	if opts.Format == "json" {
		data := map[string]any{
			"database":       dbPath,
			"schema_version": store.SchemaVersion(),
			"era":            store.Era().String(),
		}
		if hasRun {
			data["run"] = map[string]any{
				"run_id":  run.RunID,
				"run_uid": run.RunUID,
				"start":   run.Start.Format(time.RFC3339Nano),
			}
		}
		return f.JSON(data)
	}

	f.Textf("database:       %s", dbPath)
	f.Textf("schema version: %d", store.SchemaVersion())
	f.Textf("era:            %s", store.Era())
	if hasRun {
		f.Textf("open run:       %s (since %s)", run.RunUID, run.Start.Format(time.RFC3339))
	} else {
		f.Textf("open run:       none")
	}
	return nil
}
