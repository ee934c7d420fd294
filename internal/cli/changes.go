package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hearth/internal/history"
)

// ChangesOptions holds flags for the changes command.
type ChangesOptions struct {
	*RootOptions
	Database     string
	Start        string
	End          string
	IncludeStart bool
	NoAttributes bool
	Descending   bool
	Limit        int
}

// NewChangesCommand creates the changes command: every state change for one
// entity over a time window.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changes <entity-id>",
		Short: "List state changes for one entity over a time window",
		Long: `List every state change of a single entity during [start, end).

Attribute-only updates are excluded; use query for those.

Example:
  hearth changes --db ./hearth.db --start 2026-08-01T00:00:00Z --limit 50 light.kitchen`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Start, "start", "", "window start, RFC 3339 (required)")
	cmd.Flags().StringVar(&opts.End, "end", "", "window end, RFC 3339")
	cmd.Flags().BoolVar(&opts.IncludeStart, "include-start", false, "synthesize the state at the window start")
	cmd.Flags().BoolVar(&opts.NoAttributes, "no-attributes", false, "skip attribute retrieval")
	cmd.Flags().BoolVar(&opts.Descending, "descending", false, "newest first")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of rows (0 = unlimited)")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func runChanges(opts *ChangesOptions, entityID string, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	dbPath, err := resolveDatabase(opts.Database, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve database", err)
	}

	start, err := parseTimeFlag("start", opts.Start)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid time", err)
	}
	end, err := parseTimeFlag("end", opts.End)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid time", err)
	}

	store, err := openStore(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	engine := newEngine(store, cfg)
	entries, err := engine.StateChangesDuringPeriod(cmd.Context(), history.StateChangesRequest{
		Start:        start,
		End:          end,
		EntityID:     entityID,
		IncludeStart: opts.IncludeStart,
		NoAttributes: opts.NoAttributes,
		Descending:   opts.Descending,
		Limit:        opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout, Verbose: opts.Verbose}
	if opts.Format == "json" {
		return f.JSON(map[string]any{entityID: verboseEntries(entries)})
	}
	renderEntries(f, entityID, entries)
	return nil
}
