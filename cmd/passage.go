package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/embed"
	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/passage"
)

var passagePseudo bool

var passageCmd = &cobra.Command{
	Use:   "passage",
	Short: "Build the passage graph over indexed chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		companies, err := s.Companies.ListAll(ctx)
		if err != nil {
			return err
		}
		aliases := rosterAliases(companies)

		var chunks []*model.Chunk
		for _, c := range companies {
			cc, err := companyChunks(ctx, s, c)
			if err != nil {
				return err
			}
			chunks = append(chunks, cc...)
		}
		if len(chunks) == 0 {
			zap.L().Warn("no chunks available, run the index command first")
			return nil
		}

		g := passage.NewGraph()
		g.AddChunks(chunks)
		g.BuildEdges(chunks, passage.CompanyAliases(aliases), 0)

		if passagePseudo {
			if err := buildPseudoEdges(cmd, g, chunks); err != nil {
				return err
			}
		}

		return g.Save(passageGraphPath())
	},
}

func buildPseudoEdges(cmd *cobra.Command, g *passage.Graph, chunks []*model.Chunk) error {
	ctx := cmd.Context()

	llm := llmClient()
	if llm == nil {
		zap.L().Warn("no llm configured, skipping pseudo-query edges")
		return nil
	}

	provider, err := embed.NewProvider(ctx, cfg.Embedding)
	if err != nil {
		return err
	}
	embedder := embed.NewEmbedder(provider, cfg.Embedding.BatchSize)

	vectors, err := openVectors(ctx)
	if err != nil {
		return err
	}
	defer vectors.Close()

	texts := make(map[string]string, len(chunks))
	for _, c := range chunks {
		texts[c.ChunkID] = c.Text
	}

	builder := &passage.PseudoBuilder{
		Graph:          g,
		Questions:      &passage.LLMQuestionGenerator{Client: llm, Model: cfg.Anthropic.HaikuModel},
		Embedder:       embedder,
		Vectors:        vectors,
		MinSim:         cfg.HopRAG.PseudoSimilarity,
		Concurrency:    int64(cfg.HopRAG.PseudoConcurrency),
		CheckpointPath: filepath.Join(cfg.Paths.ProgressDir, "pseudo_checkpoint.json"),
	}
	if err := builder.Run(ctx, texts); err != nil {
		return err
	}

	removed := g.PrunePseudoQueryEdges(cfg.HopRAG.MaxPseudoPerNode)
	zap.L().Info("pseudo edges pruned", zap.Int("removed", removed))
	return nil
}

func init() {
	passageCmd.Flags().BoolVar(&passagePseudo, "pseudo", false, "generate LLM pseudo-query edges")
	rootCmd.AddCommand(passageCmd)
}
