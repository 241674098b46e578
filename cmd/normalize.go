package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/normalize"
)

var (
	normalizeTicker string
	normalizeDedupe bool
	normalizeDryRun bool
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Map reported XBRL concepts onto the canonical metric taxonomy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := normalize.SeedTaxonomy(ctx, s); err != nil {
			return err
		}

		engine := normalize.NewEngine(s)
		res, err := engine.Run(ctx, normalizeTicker)
		if err != nil {
			return err
		}
		zap.L().Info("normalization complete",
			zap.Int("filings", res.Filings),
			zap.Int("written", res.Written),
			zap.Int("skipped", res.Skipped),
			zap.Int("no_match", res.NoMatch))

		if normalizeDedupe {
			removed, err := s.Normalization.RemoveDuplicates(ctx, normalizeDryRun)
			if err != nil {
				return err
			}
			fmt.Printf("duplicates removed: %d (dry-run=%v)\n", removed, normalizeDryRun)
		}
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeTicker, "ticker", "", "limit to one ticker")
	normalizeCmd.Flags().BoolVar(&normalizeDedupe, "dedupe", false, "remove duplicate normalized rows after the run")
	normalizeCmd.Flags().BoolVar(&normalizeDryRun, "dry-run", false, "report duplicates without deleting")
	rootCmd.AddCommand(normalizeCmd)
}
