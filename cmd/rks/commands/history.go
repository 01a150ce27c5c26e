package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rks/internal/adapters/repository"
	"github.com/okian/rks/internal/domain/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		backend  string
		location string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "history IDENTITY",
		Short: "Print the recorded rating history of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := repository.Open(ctx, backend, location)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			identity := args[0]
			window, err := store.Window(ctx, identity)
			if err != nil {
				return err
			}
			timeline, err := store.Timeline(ctx, identity)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				byKey := make(map[string]model.Snapshot, len(timeline))
				for _, snap := range timeline {
					byKey[snap.Timestamp] = snap
				}
				return enc.Encode(map[string]any{"window": window, "timeline": byKey})
			}
			fmt.Fprintf(out, "window: %v (delta %+.4f)\n", []float64(window), window.Delta())
			for _, snap := range timeline {
				fmt.Fprintf(out, "%s  %.4f\n", snap.Timestamp, snap.Rating)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", repository.BackendFile, "history backend: file or sqlite")
	cmd.Flags().StringVar(&location, "dir", "data/history", "history directory, or database path for sqlite")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
