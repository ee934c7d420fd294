package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hearth/internal/history"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database        string
	Start           string
	End             string
	IncludeStart    bool
	SignificantOnly bool
	NoAttributes    bool
	Minimal         bool
}

// NewQueryCommand creates the query command: significant states for one or
// more entities over a time window.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <entity-id>...",
		Short: "Query significant states over a time window",
		Long: `Query the significant-state history of one or more entities.

Times are RFC 3339. An omitted --end leaves the window open.

Example:
  hearth query --db ./hearth.db --start 2026-08-01T00:00:00Z sensor.temp climate.living_room
  hearth query --db ./hearth.db --start 2026-08-01T00:00:00Z --include-start --minimal light.kitchen`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Start, "start", "", "window start, RFC 3339 (required)")
	cmd.Flags().StringVar(&opts.End, "end", "", "window end, RFC 3339")
	cmd.Flags().BoolVar(&opts.IncludeStart, "include-start", false, "synthesize each entity's state at the window start")
	cmd.Flags().BoolVar(&opts.SignificantOnly, "significant-only", false, "drop attribute-only updates outside exempt domains")
	cmd.Flags().BoolVar(&opts.NoAttributes, "no-attributes", false, "skip attribute retrieval")
	cmd.Flags().BoolVar(&opts.Minimal, "minimal", false, "compact interior entries to state and change time")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func runQuery(opts *QueryOptions, entityIDs []string, cmd *cobra.Command) error {
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
	result, err := engine.GetSignificantStates(cmd.Context(), history.SignificantStatesRequest{
		Start:           start,
		End:             end,
		EntityIDs:       entityIDs,
		IncludeStart:    opts.IncludeStart,
		SignificantOnly: opts.SignificantOnly,
		NoAttributes:    opts.NoAttributes,
		MinimalResponse: opts.Minimal,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout, Verbose: opts.Verbose}
	if opts.Format == "json" {
		data := make(map[string]any, len(entityIDs))
		for _, entityID := range entityIDs {
			data[entityID] = verboseEntries(result[entityID])
		}
		return f.JSON(data)
	}
	for _, entityID := range entityIDs {
		renderEntries(f, entityID, result[entityID])
	}
	return nil
}
