package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/rks/internal/adapters/savedata"
	"github.com/okian/rks/internal/domain/catalog"
	"github.com/okian/rks/internal/domain/rating"
	"github.com/okian/rks/internal/domain/selector"
	"github.com/okian/rks/internal/domain/types"
)

type bestOptions struct {
	savePath    string
	catalogPath string
	best        int
	phi         int
	asJSON      bool
}

func newBestCmd() *cobra.Command {
	var o bestOptions
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Print the best and perfect boards of a save",
		Long: `Rates every play in the save against the catalog and prints the best
board, the perfect board and the overall rating (sum of the best board
divided by --best).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBest(cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().StringVar(&o.savePath, "save", "", "save file (JSON)")
	cmd.Flags().StringVar(&o.catalogPath, "catalog", "", "difficulty catalog (TSV)")
	cmd.Flags().IntVar(&o.best, "best", 30, "best board size and overall divisor")
	cmd.Flags().IntVar(&o.phi, "phi", 3, "perfect board size")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print the board as JSON")
	_ = cmd.MarkFlagRequired("save")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

type bestOutput struct {
	types.Board
	RKS float64 `json:"rks"`
}

func runBest(w io.Writer, o bestOptions) error {
	f, err := os.Open(o.savePath)
	if err != nil {
		return fmt.Errorf("open save: %w", err)
	}
	defer func() { _ = f.Close() }()

	set, err := savedata.Decode(f)
	if err != nil {
		return err
	}
	cat, err := catalog.LoadFile(o.catalogPath)
	if err != nil {
		return err
	}
	res, err := selector.Select(set.Records, cat, o.best, o.phi)
	if err != nil {
		return err
	}
	overall := res.Overall(o.best)

	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(bestOutput{Board: res.View(), RKS: overall})
	}

	view := res.View()
	fmt.Fprintf(w, "save %s: %d rated, %d unratable\n", set.Timestamp, res.Rated, res.Unratable)
	fmt.Fprintf(w, "RKS %.4f\n\n", rating.Round(overall))
	printBoard(w, "Best", view.Best)
	printBoard(w, "Phi", view.Phi)
	return nil
}

func printBoard(w io.Writer, title string, board map[string]types.RecordView) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(board))
	labels := make([]string, 0, len(board))
	for label := range board {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, _ := strconv.Atoi(labels[i])
		b, _ := strconv.Atoi(labels[j])
		return a < b
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSONG\tLEVEL\tACC\tSCORE\tGRADE\tRKS\tPUSH")
	for _, label := range labels {
		r := board[label]
		push := "-"
		if r.PushAcc != nil {
			push = strconv.FormatFloat(*r.PushAcc, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\t%.4f\t%s\n",
			label, r.ID, r.Level, r.Acc, r.Score, r.Grade, r.RKS, push)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}
