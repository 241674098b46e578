package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/embed"
	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/internal/model"
)

var (
	indexTicker  string
	indexRebuild bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk processed filings, embed them, and load the vector and keyword indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

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

		keywords, err := openKeywords()
		if err != nil {
			return err
		}
		defer keywords.Close()

		companies, err := s.Companies.ListAll(ctx)
		if err != nil {
			return err
		}

		for _, c := range companies {
			if indexTicker != "" && c.Ticker != indexTicker {
				continue
			}
			chunks, err := companyChunks(ctx, s, c)
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				continue
			}

			if !indexRebuild {
				chunks, err = unindexedOnly(ctx, vectors, chunks)
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					zap.L().Info("company already indexed", zap.String("ticker", c.Ticker))
					continue
				}
			}

			if err := embedder.EmbedChunks(ctx, chunks); err != nil {
				return err
			}
			if err := vectors.Upsert(ctx, chunks); err != nil {
				return err
			}
			if err := keywords.Add(chunks); err != nil {
				return err
			}
			zap.L().Info("company indexed",
				zap.String("ticker", c.Ticker),
				zap.Int("chunks", len(chunks)))
		}

		total, err := vectors.Count(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("indexing complete",
			zap.Int("vectors", total),
			zap.Int64("embedding_tokens", embedder.TotalTokens()))
		return nil
	},
}

// unindexedOnly drops chunks that already have a vector row, so reruns
// only pay for what the last run missed.
func unindexedOnly(ctx context.Context, vectors *index.VectorIndex, chunks []*model.Chunk) ([]*model.Chunk, error) {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ChunkID
	}
	existing, err := vectors.FetchByChunkIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := chunks[:0]
	for _, ch := range chunks {
		if _, ok := existing[ch.ChunkID]; !ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func init() {
	indexCmd.Flags().StringVar(&indexTicker, "ticker", "", "limit to one ticker")
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "re-embed chunks that are already indexed")
	rootCmd.AddCommand(indexCmd)
}
