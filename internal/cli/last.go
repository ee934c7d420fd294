package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// LastOptions holds flags for the last command.
type LastOptions struct {
	*RootOptions
	Database string
	Count    int
}

// NewLastCommand creates the last command: the N newest state changes for
// one entity, presented oldest first.
func NewLastCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LastOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "last <entity-id>",
		Short: "Show the newest state changes for one entity",
		Long: `Show the N newest state changes of a single entity, oldest first.

No time window applies; this walks backwards from the newest row.

Example:
  hearth last --db ./hearth.db --count 5 light.kitchen`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLast(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of changes to return")

	return cmd
}

func runLast(opts *LastOptions, entityID string, cmd *cobra.Command) error {
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

	engine := newEngine(store, cfg)
	entries, err := engine.GetLastStateChanges(cmd.Context(), entityID, opts.Count)
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
