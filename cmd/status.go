package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/finloom/internal/passage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress by stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		summary, err := s.Analytics.Summary(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tSTATUS\tCOUNT\tAVG MS\tLAST EVENT")
		for _, row := range summary {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%s\n",
				row.Stage, row.Status, row.Count, row.AvgMs, row.LastEvent)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if vectors, err := openVectors(ctx); err == nil {
			defer vectors.Close()
			if n, err := vectors.Count(ctx); err == nil {
				fmt.Printf("\nvector index: %d chunks\n", n)
			}
		}
		if keywords, err := openKeywords(); err == nil {
			defer keywords.Close()
			if n, err := keywords.Count(); err == nil {
				fmt.Printf("keyword index: %d chunks\n", n)
			}
		}
		if g, err := passage.Load(passageGraphPath()); err == nil {
			gs := g.Stats()
			fmt.Printf("passage graph: %d nodes, %d edges\n", gs.Nodes, gs.Edges)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
