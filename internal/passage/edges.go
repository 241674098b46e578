package passage

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
)

// maxPerEntityDefault caps how many chunks per filing one entity can
// contribute to cooccurrence edges.
const maxPerEntityDefault = 5

// CompanyAliases maps a ticker to the name variants a chunk may use when
// mentioning that company.
type CompanyAliases map[string][]string

// BuildEdges runs the deterministic edge builders over the full chunk set.
// Chunks must already be registered as nodes.
func (g *Graph) BuildEdges(chunks []*model.Chunk, aliases CompanyAliases, maxPerEntity int) {
	if maxPerEntity <= 0 {
		maxPerEntity = maxPerEntityDefault
	}
	g.buildSequential(chunks)
	g.buildCrossSection(chunks)
	g.buildCooccurrence(chunks, aliases, maxPerEntity)
	g.buildTemporal(chunks)

	s := g.Stats()
	zap.L().Info("passage graph edges built",
		zap.Int("nodes", s.Nodes),
		zap.Int("edges", s.Edges),
		zap.Any("edges_by_type", s.EdgesByType))
}

// buildSequential links adjacent chunks within one section of one filing.
func (g *Graph) buildSequential(chunks []*model.Chunk) {
	groups := groupBy(chunks, func(c *model.Chunk) string {
		return c.AccessionNumber + "|" + c.SectionItem
	})
	for _, group := range groups {
		sortByIndex(group)
		for i := 0; i+1 < len(group); i++ {
			g.AddEdge(group[i].ChunkID, group[i+1].ChunkID,
				Edge{Type: EdgeSequential, Weight: weightSequential})
		}
	}
}

// buildCrossSection links the first chunk of each section in a filing to
// the first chunk of every other section.
func (g *Graph) buildCrossSection(chunks []*model.Chunk) {
	byFiling := groupBy(chunks, func(c *model.Chunk) string { return c.AccessionNumber })
	for _, filing := range byFiling {
		bySection := groupBy(filing, func(c *model.Chunk) string { return c.SectionItem })

		var firsts []*model.Chunk
		for _, group := range bySection {
			sortByIndex(group)
			firsts = append(firsts, group[0])
		}
		sort.Slice(firsts, func(i, j int) bool { return firsts[i].ChunkID < firsts[j].ChunkID })

		for i := 0; i < len(firsts); i++ {
			for j := i + 1; j < len(firsts); j++ {
				g.AddEdge(firsts[i].ChunkID, firsts[j].ChunkID,
					Edge{Type: EdgeCrossSection, Weight: weightCrossSection})
			}
		}
	}
}

// buildCooccurrence links chunks from different filings that mention the
// same company. A chunk mentioning its own company is ignored.
func (g *Graph) buildCooccurrence(chunks []*model.Chunk, aliases CompanyAliases, maxPerEntity int) {
	if len(aliases) == 0 {
		return
	}

	// ticker → filing → contributing chunks, capped per filing.
	mentions := map[string]map[string][]*model.Chunk{}
	for _, c := range chunks {
		lower := strings.ToLower(c.Text)
		for ticker, names := range aliases {
			if ticker == c.Ticker {
				continue
			}
			if !mentionsAny(lower, ticker, names) {
				continue
			}
			if mentions[ticker] == nil {
				mentions[ticker] = map[string][]*model.Chunk{}
			}
			perFiling := mentions[ticker][c.AccessionNumber]
			if len(perFiling) >= maxPerEntity {
				continue
			}
			mentions[ticker][c.AccessionNumber] = append(perFiling, c)
		}
	}

	perChunkCap := 5 * maxPerEntity
	degree := map[string]int{}

	tickers := make([]string, 0, len(mentions))
	for t := range mentions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	added := 0
	for _, ticker := range tickers {
		var pool []*model.Chunk
		filings := make([]string, 0, len(mentions[ticker]))
		for f := range mentions[ticker] {
			filings = append(filings, f)
		}
		sort.Strings(filings)
		for _, f := range filings {
			pool = append(pool, mentions[ticker][f]...)
		}

		for i := 0; i < len(pool); i++ {
			for j := i + 1; j < len(pool); j++ {
				a, b := pool[i], pool[j]
				if a.AccessionNumber == b.AccessionNumber {
					continue
				}
				if degree[a.ChunkID] >= perChunkCap || degree[b.ChunkID] >= perChunkCap {
					continue
				}
				if g.AddEdge(a.ChunkID, b.ChunkID, Edge{Type: EdgeEntityCooccurrence, Weight: weightCooccurrence}) {
					degree[a.ChunkID]++
					degree[b.ChunkID]++
					added++
				}
			}
		}
	}

	zap.L().Debug("entity cooccurrence edges built", zap.Int("edges", added))
}

// buildTemporal aligns chunks positionally across consecutive fiscal years
// of the same (ticker, section) pair, allowing a gap of up to two years.
func (g *Graph) buildTemporal(chunks []*model.Chunk) {
	groups := groupBy(chunks, func(c *model.Chunk) string {
		return c.Ticker + "|" + c.SectionItem
	})
	for _, group := range groups {
		byYear := map[int][]*model.Chunk{}
		for _, c := range group {
			if c.Ticker == "" || c.FiscalYear == 0 {
				continue
			}
			byYear[c.FiscalYear] = append(byYear[c.FiscalYear], c)
		}

		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)

		for i := 0; i+1 < len(years); i++ {
			cur, next := years[i], years[i+1]
			if next-cur > 2 {
				continue
			}
			a, b := byYear[cur], byYear[next]
			sortByIndex(a)
			sortByIndex(b)
			n := len(a)
			if len(b) < n {
				n = len(b)
			}
			for k := 0; k < n; k++ {
				g.AddEdge(a[k].ChunkID, b[k].ChunkID,
					Edge{Type: EdgeTemporal, Weight: weightTemporal})
			}
		}
	}
}

func mentionsAny(lowerText, ticker string, names []string) bool {
	for _, name := range names {
		if name != "" && strings.Contains(lowerText, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

func groupBy(chunks []*model.Chunk, key func(*model.Chunk) string) map[string][]*model.Chunk {
	out := map[string][]*model.Chunk{}
	for _, c := range chunks {
		k := key(c)
		out[k] = append(out[k], c)
	}
	return out
}

func sortByIndex(chunks []*model.Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
}
