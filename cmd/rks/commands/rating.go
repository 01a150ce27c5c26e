package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/internal/domain/rating"
)

func newRatingCmd() *cobra.Command {
	var acc, level float64
	cmd := &cobra.Command{
		Use:   "rating",
		Short: "Print the rating of a single play",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkPlay(acc, level); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", rating.Round(rating.Single(acc, level)))
			return nil
		},
	}
	cmd.Flags().Float64Var(&acc, "acc", 0, "accuracy in percent")
	cmd.Flags().Float64Var(&level, "level", 0, "chart level constant")
	_ = cmd.MarkFlagRequired("acc")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func newSuggestCmd() *cobra.Command {
	var acc, level float64
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Print the accuracy needed to gain rating on a play",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkPlay(acc, level); err != nil {
				return err
			}
			current := rating.Single(acc, level)
			target, ok := rating.Suggest(acc, current, level)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no improvement possible")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", rating.Round(target))
			return nil
		},
	}
	cmd.Flags().Float64Var(&acc, "acc", 0, "accuracy in percent")
	cmd.Flags().Float64Var(&level, "level", 0, "chart level constant")
	_ = cmd.MarkFlagRequired("acc")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func checkPlay(acc, level float64) error {
	if acc < 0 || acc > model.PerfectAccuracy {
		return fmt.Errorf("acc must be within [0, 100], got %v", acc)
	}
	if level <= 0 {
		return fmt.Errorf("level must be positive, got %v", level)
	}
	return nil
}
