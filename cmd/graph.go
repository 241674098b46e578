package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/entities"
	"github.com/sells-group/finloom/internal/kg"
	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/store"
)

var (
	graphTicker      string
	graphCommunities bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the knowledge graph from processed filings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		g, err := kg.NewGraph(ctx, cfg.Graph)
		if err != nil {
			return err
		}
		defer g.Close(ctx)

		if err := g.Bootstrap(ctx); err != nil {
			return err
		}

		llm := llmClient()
		reader := entities.NewReader(llm, cfg.Anthropic.HaikuModel, cfg.Anthropic.MaxTokens, int64(cfg.Anthropic.Concurrency))

		companies, err := s.Companies.ListAll(ctx)
		if err != nil {
			return err
		}

		for _, c := range companies {
			if graphTicker != "" && c.Ticker != graphTicker {
				continue
			}
			if err := buildCompanyGraph(cmd, s, g, reader, c); err != nil {
				return err
			}
		}

		if graphCommunities {
			communities, err := g.DetectCommunities(ctx, cfg.Graph.LeidenSeed, cfg.Graph.MinCommunity)
			if err != nil {
				return err
			}
			if err := g.SummarizeCommunities(ctx, communities, llm, cfg.Anthropic.HaikuModel); err != nil {
				return err
			}
			zap.L().Info("communities summarized", zap.Int("count", len(communities)))
		}

		stats, err := g.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("graph: %d nodes, %d relationships\n", stats.Nodes, stats.Relationships)
		return nil
	},
}

func buildCompanyGraph(cmd *cobra.Command, s *store.Store, g *kg.Graph, reader *entities.Reader, c model.Company) error {
	ctx := cmd.Context()

	if err := g.UpsertCompany(ctx, &c); err != nil {
		return err
	}

	filings, err := s.Filings.ByCompany(ctx, c.CIK, "", nil, nil)
	if err != nil {
		return err
	}

	for i := range filings {
		f := &filings[i]
		if err := g.UpsertFiling(ctx, f, fiscalYearOf(f)); err != nil {
			return err
		}

		if f.SectionsProcessed {
			secs, err := s.Sections.ByFiling(ctx, f.AccessionNumber)
			if err != nil {
				return err
			}
			ptrs := make([]*model.Section, len(secs))
			for j := range secs {
				ptrs[j] = &secs[j]
			}
			results := reader.ExtractAll(ctx, ptrs)
			if err := g.ImportSections(ctx, f, results); err != nil {
				return err
			}
		}

		if f.XBRLProcessed {
			facts, err := s.Facts.Get(ctx, f.AccessionNumber, "")
			if err != nil {
				return err
			}
			ptrs := make([]*model.Fact, len(facts))
			for j := range facts {
				ptrs[j] = &facts[j]
			}
			imported, err := g.ImportFacts(ctx, f.AccessionNumber, ptrs, cfg.Graph.ImportAllFacts)
			if err != nil {
				return err
			}
			zap.L().Debug("facts imported",
				zap.String("accession", f.AccessionNumber),
				zap.Int("metrics", imported))
		}
	}

	if err := g.LinkFilingSequence(ctx, c.CIK, "10-K"); err != nil {
		return err
	}
	zap.L().Info("company graph built",
		zap.String("ticker", c.Ticker),
		zap.Int("filings", len(filings)))
	return nil
}

func init() {
	graphCmd.Flags().StringVar(&graphTicker, "ticker", "", "limit to one ticker")
	graphCmd.Flags().BoolVar(&graphCommunities, "communities", false, "run community detection and summarization after import")
	rootCmd.AddCommand(graphCmd)
}
