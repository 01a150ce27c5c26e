// Package commands implements the rks command line: offline board and rating
// computation over local save and catalog files.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/okian/rks/pkg/logger"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "rks",
		Short: "Rating tools for local save files",
		Long: `rks computes best boards and overall ratings from a local save and a
difficulty catalog, and inspects recorded rating history.

Examples:
  rks best --save player.json --catalog difficulty.tsv
  rks best --save player.json --catalog difficulty.tsv --best 19 --json
  rks rating --acc 98.5 --level 15.8
  rks suggest --acc 98.5 --level 15.8
  rks history --dir data/history player`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := logger.Init(); err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(newBestCmd(), newRatingCmd(), newSuggestCmd(), newHistoryCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
