package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/finloom/pkg/anthropic"
)

// pruneBatchSize is how many candidates one pruning prompt carries.
const pruneBatchSize = 15

// candidate is a neighbor proposed during hop expansion.
type candidate struct {
	chunkID   string
	seedScore float64
	edgeType  string
	weight    float64
}

// expandHops walks the passage graph from the hop-0 results, pruning with
// the LLM at each hop. Results and visited are mutated in place.
func (r *Retriever) expandHops(ctx context.Context, query string, qt QueryType, results *[]Result, maxHops int) []TraceEntry {
	visited := map[string]bool{}
	for _, res := range *results {
		if res.Metadata.ChunkID != "" {
			visited[res.Metadata.ChunkID] = true
		}
	}

	var trace []TraceEntry
	for hop := 1; hop <= maxHops; hop++ {
		seeds := seedsForHop(*results, hop-1)
		if len(seeds) == 0 {
			break
		}

		candidates := r.collectCandidates(seeds, visited, qt)
		if len(candidates) == 0 {
			trace = append(trace, TraceEntry{Hop: hop, CandidatesCount: 0, KeptCount: 0})
			break
		}

		kept := r.pruneCandidates(ctx, query, *results, candidates)

		// Every candidate is spent whether kept or pruned.
		for _, c := range candidates {
			visited[c.chunkID] = true
		}

		decay := math.Pow(r.cfg.HopDecay, float64(hop))
		for _, c := range kept {
			node := r.passages.Node(c.chunkID)
			if node == nil {
				continue
			}
			*results = append(*results, Result{
				Content: node.TextPreview,
				Score:   c.seedScore * c.weight * decay,
				Metadata: ResultMetadata{
					ChunkID:      c.chunkID,
					Ticker:       node.Ticker,
					CompanyName:  node.CompanyName,
					SectionItem:  node.SectionItem,
					SectionTitle: node.SectionTitle,
					FilingDate:   node.FilingDate,
					Sources:      []string{fmt.Sprintf("hoprag_hop%d", hop)},
					HopNumber:    hop,
					EdgeType:     c.edgeType,
				},
			})
		}

		trace = append(trace, TraceEntry{
			Hop:             hop,
			CandidatesCount: len(candidates),
			KeptCount:       len(kept),
		})
		if len(kept) == 0 {
			break
		}
	}
	return trace
}

func seedsForHop(results []Result, hop int) []Result {
	var seeds []Result
	for _, res := range results {
		if res.Metadata.HopNumber == hop && res.Metadata.ChunkID != "" {
			seeds = append(seeds, res)
		}
	}
	return seeds
}

// collectCandidates gathers unvisited neighbors of each seed, strongest
// incoming edge winning across seeds.
func (r *Retriever) collectCandidates(seeds []Result, visited map[string]bool, qt QueryType) []candidate {
	best := map[string]candidate{}
	var order []string

	for _, seed := range seeds {
		seedNode := r.passages.Node(seed.Metadata.ChunkID)
		if seedNode == nil {
			continue
		}

		taken, crossTaken := 0, 0
		crossReserve := 0
		if qt == CrossFiling {
			crossReserve = r.cfg.NeighborsPerSeed / 2
		}

		for _, nbr := range r.passages.Neighbors(seed.Metadata.ChunkID) {
			if taken >= r.cfg.NeighborsPerSeed {
				break
			}
			if nbr.Edge.Weight < r.cfg.MinEdgeWeight || visited[nbr.ChunkID] {
				continue
			}
			node := r.passages.Node(nbr.ChunkID)
			if node == nil {
				continue
			}

			crossTicker := node.Ticker != seedNode.Ticker
			if crossReserve > 0 && !crossTicker {
				// Same-ticker neighbors may not squeeze out the
				// reserved cross-company slots.
				sameBudget := r.cfg.NeighborsPerSeed - crossReserve
				if taken-crossTaken >= sameBudget {
					continue
				}
			}

			c := candidate{
				chunkID:   nbr.ChunkID,
				seedScore: seed.Score,
				edgeType:  string(nbr.Edge.Type),
				weight:    nbr.Edge.Weight,
			}
			if prev, ok := best[nbr.ChunkID]; !ok {
				best[nbr.ChunkID] = c
				order = append(order, nbr.ChunkID)
			} else if c.weight > prev.weight {
				best[nbr.ChunkID] = c
			}

			taken++
			if crossTicker {
				crossTaken++
			}
		}
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].weight > out[j].weight })

	if len(out) > r.cfg.MaxCandidatesPerHop {
		out = out[:r.cfg.MaxCandidatesPerHop]
	}
	return out
}

const prunerSystem = `You prune retrieval candidates for a financial research query. Keep only passages likely to add evidence. Respond with JSON only: {"decisions": [{"id": 0, "action": "keep", "reason": "..."}]}.`

// pruneCandidates asks the LLM which candidates to keep, capped at
// KeepPerHop. On any LLM failure the batch is kept wholesale.
func (r *Retriever) pruneCandidates(ctx context.Context, query string, results []Result, candidates []candidate) []candidate {
	var kept []candidate
	for start := 0; start < len(candidates); start += pruneBatchSize {
		end := start + pruneBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		for _, idx := range r.pruneBatch(ctx, query, results, batch) {
			if len(kept) >= r.cfg.KeepPerHop {
				return kept
			}
			kept = append(kept, batch[idx])
		}
	}
	return kept
}

// pruneBatch returns the kept indexes within one batch.
func (r *Retriever) pruneBatch(ctx context.Context, query string, results []Result, batch []candidate) []int {
	keepAll := func() []int {
		all := make([]int, len(batch))
		for i := range batch {
			all[i] = i
		}
		return all
	}
	if r.llm == nil {
		return keepAll()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nContext so far:\n", query)
	for i, res := range results {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", truncate(res.Content, 500))
	}
	b.WriteString("\nCandidates:\n")
	for i, c := range batch {
		node := r.passages.Node(c.chunkID)
		if node == nil {
			continue
		}
		fmt.Fprintf(&b, "[%d][%s|%s|%s] %s\n",
			i, node.Ticker, node.SectionItem, node.FilingDate, node.TextPreview)
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.llmModel,
		MaxTokens: 1024,
		System:    []anthropic.SystemBlock{{Text: prunerSystem}},
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		zap.L().Warn("candidate pruning failed, keeping all", zap.Error(err))
		return keepAll()
	}

	var out struct {
		Decisions []struct {
			ID     int    `json:"id"`
			Action string `json:"action"`
			Reason string `json:"reason"`
		} `json:"decisions"`
	}
	if err := anthropic.ExtractJSON(resp.Text(), &out); err != nil {
		zap.L().Warn("candidate pruning unparsable, keeping all", zap.Error(err))
		return keepAll()
	}

	var keep []int
	for _, d := range out.Decisions {
		if d.Action == "keep" && d.ID >= 0 && d.ID < len(batch) {
			keep = append(keep, d.ID)
		}
	}
	return keep
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
