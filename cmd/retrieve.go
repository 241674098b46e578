package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/finloom/internal/embed"
	"github.com/sells-group/finloom/internal/retrieval"
)

var (
	retrieveTopK int
	retrieveHops int
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Answer a question over the indexed filings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		r, closeFn, err := buildRetriever(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		var maxHops *int
		if cmd.Flags().Changed("max-hops") {
			maxHops = &retrieveHops
		}

		resp, err := r.Retrieve(ctx, query, retrieveTopK, maxHops)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(resp), "encode response")
	},
}

// buildRetriever wires the full retrieval stack from configuration. The
// knowledge graph and reranker legs are optional and omitted when
// unreachable or unconfigured.
func buildRetriever(cmd *cobra.Command) (*retrieval.Retriever, func(), error) {
	ctx := cmd.Context()

	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	provider, err := embed.NewProvider(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}
	embedder := embed.NewEmbedder(provider, cfg.Embedding.BatchSize)

	vectors, err := openVectors(ctx)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { vectors.Close() })

	keywords, err := openKeywords()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, func() { keywords.Close() })

	companies, err := loadRoster()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	aliases := rosterAliases(companies)

	opts := retrieval.Options{
		LLM:      llmClient(),
		LLMModel: cfg.Anthropic.HaikuModel,
		Reranker: rerankClient(),
	}
	if g, err := openKnowledgeGraph(ctx); err == nil {
		opts.Graph = g
		closers = append(closers, func() { g.Close(ctx) })
	}

	r := retrieval.NewRetriever(embedder, vectors, keywords,
		loadPassageGraph(), retrieval.CompanyAliases(aliases), cfg.HopRAG, opts)
	return r, closeAll, nil
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 10, "number of results")
	retrieveCmd.Flags().IntVar(&retrieveHops, "max-hops", 0, "override the hop budget")
	rootCmd.AddCommand(retrieveCmd)
}
