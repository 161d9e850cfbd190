package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// execute runs one command line and releases the store afterwards, whether
// or not the command succeeded.
func execute(ctx context.Context, args []string, stdout io.Writer) error {
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	root.SetArgs(args)
	if stdout != nil {
		root.SetOut(stdout)
	}
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "territoryctl",
		Short: "Inspect and maintain a territorycore store",
		Long: `territoryctl opens the configured entity store and runs the aggregation
engine over it.

Configuration is read from --config (YAML) and TERRITORYCORE_* environment
variables; a missing file falls back to defaults.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "territorycore.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newImportCmd(a),
		newTreeCmd(a),
		newKeysCmd(a),
		newRecentCmd(a),
		newRecallsCmd(a),
		newSearchCmd(a),
		newExportCmd(a),
		newWatchCmd(a),
	)
	return root
}
