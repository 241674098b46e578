package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/internal/kg"
)

// Fusion weights for the three search primitives.
const (
	vectorWeight  = 0.7
	keywordWeight = 0.3
	graphWeight   = 0.5
)

const (
	maxGraphEntities    = 2
	graphRowsPerEntity  = 5
	graphRiskShare      = 3
	graphCommunityShare = 1
	graphExecutiveShare = 1
)

// hybridSearch fuses vector, keyword, and graph results for one query.
func (r *Retriever) hybridSearch(ctx context.Context, query string, topK int, filter index.Filter, tickers []string) ([]Result, error) {
	merged := map[string]*Result{}
	var order []string

	add := func(key string, res Result, weight float64, source string) {
		existing, ok := merged[key]
		if !ok {
			res.Score *= weight
			res.Metadata.Sources = []string{source}
			merged[key] = &res
			order = append(order, key)
			return
		}
		existing.Score += res.Score * weight
		existing.Metadata.Sources = append(existing.Metadata.Sources, source)
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	vectorHits, err := r.vectors.Search(ctx, vec, 2*topK, filter)
	if err != nil {
		return nil, err
	}
	for _, h := range vectorHits {
		add(h.ChunkID, hitResult(h), vectorWeight, "vector")
	}

	keywordTopK := keywordBudget(query, topK)
	keywordHits, err := r.keywords.Search(query, keywordTopK, filter)
	if err != nil {
		zap.L().Warn("keyword search failed", zap.Error(err))
	} else {
		for _, h := range normalizeScores(keywordHits) {
			add(h.ChunkID, hitResult(h), keywordWeight, "keyword")
		}
	}

	if r.graph != nil && len(tickers) > 0 {
		for _, row := range r.graphRows(ctx, tickers) {
			add(row.Key, Result{
				Content: row.Content,
				Score:   1.0,
				Metadata: ResultMetadata{
					Ticker: tickerFromKey(row.Key),
				},
			}, graphWeight, "graph")
		}
	}

	out := make([]Result, 0, len(order))
	for _, key := range order {
		res := merged[key]
		if res.Metadata.ChunkID == "" && !strings.HasPrefix(key, "graph:") {
			res.Metadata.ChunkID = key
		}
		out = append(out, *res)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// keywordBudget sizes the keyword leg relative to topK and query length.
func keywordBudget(query string, topK int) int {
	if len(strings.Fields(query)) >= 3 {
		if n := topK / 2; n > 10 {
			return n
		}
		return 10
	}
	if n := topK / 3; n < 5 {
		if n < 1 {
			return 1
		}
		return n
	}
	return 5
}

// graphRows fetches the per-entity allocation: risks get the largest
// share, community summaries next, executives a guaranteed slot.
func (r *Retriever) graphRows(ctx context.Context, tickers []string) []kg.EntityRow {
	if len(tickers) > maxGraphEntities {
		tickers = tickers[:maxGraphEntities]
	}

	var rows []kg.EntityRow
	for _, ticker := range tickers {
		fetch := []struct {
			limit int
			call  func(context.Context, string, int) ([]kg.EntityRow, error)
		}{
			{graphRiskShare, r.graph.RiskFactors},
			{graphCommunityShare, r.graph.CommunitySummaries},
			{graphExecutiveShare, r.graph.Executives},
		}
		got := 0
		for _, f := range fetch {
			part, err := f.call(ctx, ticker, f.limit)
			if err != nil {
				zap.L().Warn("graph search failed",
					zap.String("ticker", ticker),
					zap.Error(err))
				continue
			}
			for _, row := range part {
				if got >= graphRowsPerEntity {
					break
				}
				rows = append(rows, row)
				got++
			}
		}
	}
	return rows
}

// crossFilingSeeds splits the seed budget across tickers and merges the
// per-ticker hybrid results, deduplicating by chunk id.
func (r *Retriever) crossFilingSeeds(ctx context.Context, query string, topK int, tickers []string) ([]Result, error) {
	perTicker := topK / len(tickers)
	if perTicker < 1 {
		perTicker = 1
	}

	seen := map[string]bool{}
	var out []Result
	for _, ticker := range tickers {
		results, err := r.hybridSearch(ctx, query, perTicker, index.Filter{Ticker: ticker}, []string{ticker})
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			key := res.Metadata.ChunkID
			if key == "" {
				key = res.Content
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func hitResult(h index.Hit) Result {
	return Result{
		Content: h.Content,
		Score:   h.Score,
		Metadata: ResultMetadata{
			ChunkID:      h.ChunkID,
			Ticker:       h.Metadata.Ticker,
			CompanyName:  h.Metadata.CompanyName,
			SectionItem:  h.Metadata.SectionItem,
			SectionTitle: h.Metadata.SectionTitle,
			FilingDate:   h.Metadata.FilingDate,
		},
	}
}

// normalizeScores scales keyword scores so the best hit is 1.0, making
// them comparable to cosine similarities.
func normalizeScores(hits []index.Hit) []index.Hit {
	var max float64
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		return hits
	}
	out := make([]index.Hit, len(hits))
	for i, h := range hits {
		h.Score /= max
		out[i] = h
	}
	return out
}

// tickerFromKey recovers the ticker from a synthetic graph row key of the
// form graph:<kind>:<ticker>:<n>.
func tickerFromKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 3 {
		return parts[2]
	}
	return ""
}
