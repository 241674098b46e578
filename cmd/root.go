package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "finloom",
	Short: "10-K ingestion and multi-modal retrieval pipeline",
	Long:  "Downloads annual report filings, extracts XBRL facts and narrative sections, builds vector, keyword, knowledge-graph, and passage-graph indexes, and answers questions over them with multi-hop retrieval.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
