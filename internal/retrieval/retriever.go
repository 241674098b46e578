package retrieval

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/config"
	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/internal/passage"
	"github.com/sells-group/finloom/pkg/anthropic"
	"github.com/sells-group/finloom/pkg/jina"
)

// Retriever answers queries by fusing hybrid search with multi-hop
// expansion over the passage graph.
type Retriever struct {
	router   *Router
	embedder QueryEmbedder
	vectors  VectorSearcher
	keywords KeywordSearcher
	graph    GraphSource
	passages *passage.Graph
	llm      anthropic.Client
	llmModel string
	reranker jina.Client
	cfg      config.HopRAGConfig
}

// Options carries the optional collaborators of a Retriever. Graph, LLM,
// and Reranker may each be nil; the affected stages degrade gracefully.
type Options struct {
	Graph    GraphSource
	LLM      anthropic.Client
	LLMModel string
	Reranker jina.Client
}

// NewRetriever wires the retrieval pipeline together.
func NewRetriever(embedder QueryEmbedder, vectors VectorSearcher, keywords KeywordSearcher, passages *passage.Graph, aliases CompanyAliases, cfg config.HopRAGConfig, opts Options) *Retriever {
	return &Retriever{
		router:   NewRouter(aliases, opts.LLM, opts.LLMModel),
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		graph:    opts.Graph,
		passages: passages,
		llm:      opts.LLM,
		llmModel: opts.LLMModel,
		reranker: opts.Reranker,
		cfg:      cfg,
	}
}

// Retrieve runs the full pipeline: classify, seed, expand, enrich,
// rerank, truncate. maxHops overrides the query type's hop budget when
// non-nil.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, maxHops *int) (*Response, error) {
	if topK <= 0 {
		topK = r.cfg.InitialTopK
	}

	qt := r.router.Classify(ctx, query)
	tickers := r.router.DetectTickers(query)

	hops := qt.MaxHops()
	if qt == ComplexAnalysis && r.cfg.DefaultMaxHops > 0 {
		hops = r.cfg.DefaultMaxHops
	}
	if maxHops != nil {
		hops = *maxHops
	}

	seedK := r.cfg.InitialTopK
	if topK > seedK {
		seedK = topK
	}

	var (
		results []Result
		err     error
	)
	if qt == CrossFiling && len(tickers) >= 2 {
		results, err = r.crossFilingSeeds(ctx, query, seedK, tickers)
	} else {
		results, err = r.hybridSearch(ctx, query, seedK, seedFilter(tickers), tickers)
	}
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: seed search")
	}
	if len(results) > seedK {
		results = results[:seedK]
	}

	var trace []TraceEntry
	if hops > 0 && r.passages != nil {
		trace = r.expandHops(ctx, query, qt, &results, hops)
		r.enrich(ctx, results)
	}

	results = r.rerank(ctx, query, results)
	if len(results) > topK {
		results = results[:topK]
	}

	return &Response{Results: results, QueryType: qt, Trace: trace}, nil
}

// enrich replaces hop-result previews with full chunk text from the
// vector store. A fetch failure leaves the previews in place.
func (r *Retriever) enrich(ctx context.Context, results []Result) {
	var ids []string
	for _, res := range results {
		if res.Metadata.HopNumber >= 1 && res.Metadata.ChunkID != "" {
			ids = append(ids, res.Metadata.ChunkID)
		}
	}
	if len(ids) == 0 {
		return
	}

	hits, err := r.vectors.FetchByChunkIDs(ctx, ids)
	if err != nil {
		zap.L().Warn("hop result enrichment failed, ranking on previews", zap.Error(err))
		return
	}
	for i := range results {
		if results[i].Metadata.HopNumber < 1 {
			continue
		}
		if hit, ok := hits[results[i].Metadata.ChunkID]; ok {
			results[i].Content = hit.Content
		}
	}
}

// rerank orders results with the cross-encoder when one is configured,
// otherwise by fused score.
func (r *Retriever) rerank(ctx context.Context, query string, results []Result) []Result {
	if r.reranker == nil || len(results) == 0 {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		return results
	}

	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Content
	}
	resp, err := r.reranker.Rerank(ctx, query, docs, len(docs))
	if err != nil {
		zap.L().Warn("rerank failed, falling back to fused scores", zap.Error(err))
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		return results
	}

	out := make([]Result, 0, len(results))
	for _, rr := range resp.Results {
		if rr.Index < 0 || rr.Index >= len(results) {
			continue
		}
		res := results[rr.Index]
		res.Score = rr.RelevanceScore
		out = append(out, res)
	}
	return out
}

// seedFilter narrows hop-0 search to the one detected company, if any.
func seedFilter(tickers []string) index.Filter {
	if len(tickers) == 1 {
		return index.Filter{Ticker: tickers[0]}
	}
	return index.Filter{}
}
