package passage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/internal/model"
)

func chunk(id, accession, section string, idx int, opts ...func(*model.Chunk)) *model.Chunk {
	c := &model.Chunk{
		ChunkID:         id,
		AccessionNumber: accession,
		SectionItem:     section,
		ChunkIndex:      idx,
		Text:            "passage text for " + id,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func withFiling(ticker string, fiscalYear int) func(*model.Chunk) {
	return func(c *model.Chunk) {
		c.Ticker = ticker
		c.FiscalYear = fiscalYear
	}
}

func withText(text string) func(*model.Chunk) {
	return func(c *model.Chunk) { c.Text = text }
}

func TestBuildEdges_SameFiling(t *testing.T) {
	chunks := []*model.Chunk{
		chunk("C1", "F", "item_1", 0),
		chunk("C2", "F", "item_1", 1),
		chunk("C3", "F", "item_7", 0),
	}
	g := NewGraph()
	g.AddChunks(chunks)
	g.BuildEdges(chunks, nil, 0)

	e, ok := g.EdgeBetween("C1", "C2")
	require.True(t, ok)
	assert.Equal(t, EdgeSequential, e.Type)
	assert.Equal(t, 0.8, e.Weight)

	e, ok = g.EdgeBetween("C1", "C3")
	require.True(t, ok)
	assert.Equal(t, EdgeCrossSection, e.Type)
	assert.Equal(t, 0.5, e.Weight)

	assert.False(t, g.HasEdge("C2", "C3"))
	assert.Equal(t, 2, g.Stats().Edges)
}

func TestBuildEdges_Temporal(t *testing.T) {
	chunks := []*model.Chunk{
		chunk("A23_0", "F2023", "item_7", 0, withFiling("AAPL", 2023)),
		chunk("A23_1", "F2023", "item_7", 1, withFiling("AAPL", 2023)),
		chunk("A24_0", "F2024", "item_7", 0, withFiling("AAPL", 2024)),
		chunk("A28_0", "F2028", "item_7", 0, withFiling("AAPL", 2028)),
	}
	g := NewGraph()
	g.AddChunks(chunks)
	g.buildTemporal(chunks)

	e, ok := g.EdgeBetween("A23_0", "A24_0")
	require.True(t, ok)
	assert.Equal(t, EdgeTemporal, e.Type)
	assert.Equal(t, 0.7, e.Weight)

	// Second chunk of 2023 has no positional counterpart in 2024.
	assert.False(t, g.HasEdge("A23_1", "A24_0"))
	// Year gap over two is not linked.
	assert.False(t, g.HasEdge("A24_0", "A28_0"))
}

func TestBuildEdges_EntityCooccurrence(t *testing.T) {
	aliases := CompanyAliases{
		"MSFT": {"Microsoft"},
		"AAPL": {"Apple"},
	}
	chunks := []*model.Chunk{
		chunk("A1", "FA", "item_1", 0, withFiling("AAPL", 2023), withText("We compete with Microsoft in several markets.")),
		chunk("G1", "FG", "item_1", 0, withFiling("GOOG", 2023), withText("Microsoft remains our largest competitor.")),
		chunk("M1", "FM", "item_1", 0, withFiling("MSFT", 2023), withText("Microsoft develops software.")),
	}
	g := NewGraph()
	g.AddChunks(chunks)
	g.buildCooccurrence(chunks, aliases, 5)

	// Both non-Microsoft filings mention Microsoft.
	assert.True(t, g.HasEdge("A1", "G1"))
	// The Microsoft chunk's own-company mention is suppressed.
	assert.False(t, g.HasEdge("M1", "A1"))
	assert.False(t, g.HasEdge("M1", "G1"))
}

func TestNeighbors_SortedByWeight(t *testing.T) {
	chunks := []*model.Chunk{
		chunk("C1", "F", "item_1", 0),
		chunk("C2", "F", "item_1", 1),
		chunk("C3", "F", "item_7", 0),
	}
	g := NewGraph()
	g.AddChunks(chunks)
	g.BuildEdges(chunks, nil, 0)

	nbrs := g.Neighbors("C1")
	require.Len(t, nbrs, 2)
	assert.Equal(t, "C2", nbrs[0].ChunkID)
	assert.Equal(t, "C3", nbrs[1].ChunkID)
}

func TestStats(t *testing.T) {
	chunks := []*model.Chunk{
		chunk("C1", "F", "item_1", 0),
		chunk("C2", "F", "item_1", 1),
		chunk("ISO", "F2", "item_1", 0),
	}
	g := NewGraph()
	g.AddChunks(chunks)
	g.AddEdge("C1", "C2", Edge{Type: EdgeSequential, Weight: 0.8})

	s := g.Stats()
	assert.Equal(t, 3, s.Nodes)
	assert.Equal(t, 1, s.Edges)
	assert.Equal(t, 1, s.EdgesByType[string(EdgeSequential)])
	assert.Equal(t, 1, s.IsolatedNodes)
	assert.Equal(t, 2, s.ConnectedComponents)
	assert.Equal(t, 1, s.MaxDegree)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	chunks := []*model.Chunk{
		chunk("C1", "F", "item_1", 0),
		chunk("C2", "F", "item_1", 1),
	}
	g := NewGraph()
	g.AddChunks(chunks)
	g.AddEdge("C1", "C2", Edge{Type: EdgeSequential, Weight: 0.8})

	path := filepath.Join(t.TempDir(), "passage.gob")
	require.NoError(t, g.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.NodeCount())
	e, ok := loaded.EdgeBetween("C1", "C2")
	require.True(t, ok)
	assert.Equal(t, EdgeSequential, e.Type)
	assert.Equal(t, "F", loaded.Node("C1").AccessionNumber)
}

func TestPrunePseudoQueryEdges(t *testing.T) {
	var chunks []*model.Chunk
	ids := []string{"HUB", "N1", "N2", "N3"}
	for i, id := range ids {
		chunks = append(chunks, chunk(id, "F"+id, "item_1", i))
	}
	g := NewGraph()
	g.AddChunks(chunks)

	g.AddEdge("HUB", "N1", Edge{Type: EdgePseudoQuery, Weight: 0.85})
	g.AddEdge("HUB", "N2", Edge{Type: EdgePseudoQuery, Weight: 0.75})
	g.AddEdge("HUB", "N3", Edge{Type: EdgePseudoQuery, Weight: 0.65})
	g.AddEdge("N1", "N2", Edge{Type: EdgeSequential, Weight: 0.8})

	removed := g.PrunePseudoQueryEdges(1)
	// HUB keeps N1; N2 and N3 each keep their only pseudo edge back to
	// HUB, so every edge survives through the endpoint union.
	assert.Zero(t, removed)

	g.AddEdge("N2", "N3", Edge{Type: EdgePseudoQuery, Weight: 0.95})
	removed = g.PrunePseudoQueryEdges(1)
	// Now N2's and N3's top pick is each other, so HUB-N2 and HUB-N3
	// lose both votes.
	assert.Equal(t, 2, removed)
	assert.True(t, g.HasEdge("HUB", "N1"))
	assert.False(t, g.HasEdge("HUB", "N2"))
	assert.False(t, g.HasEdge("HUB", "N3"))
	assert.True(t, g.HasEdge("N2", "N3"))
	assert.True(t, g.HasEdge("N1", "N2"))
}

// fakeQuestions returns fixed questions.
type fakeQuestions struct{}

func (fakeQuestions) Questions(_ context.Context, _ string) ([]string, error) {
	return []string{"what about revenue?", "what about risk?", "what changed?"}, nil
}

// fakeEmbedder returns a constant vector.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// fakeSearcher returns preset hits.
type fakeSearcher struct {
	hits []index.Hit
}

func (f fakeSearcher) Search(_ context.Context, _ []float32, _ int, _ index.Filter) ([]index.Hit, error) {
	return f.hits, nil
}

func TestPseudoBuilder_Run(t *testing.T) {
	chunks := []*model.Chunk{
		chunk("SRC", "F1", "item_1", 0),
		chunk("NBR", "F2", "item_1", 0),
		chunk("WEAK", "F3", "item_1", 0),
	}
	g := NewGraph()
	g.AddChunks(chunks)

	b := &PseudoBuilder{
		Graph:     g,
		Questions: fakeQuestions{},
		Embedder:  fakeEmbedder{},
		Vectors: fakeSearcher{hits: []index.Hit{
			{ChunkID: "SRC", Score: 0.99}, // self-loop skipped
			{ChunkID: "NBR", Score: 0.80},
			{ChunkID: "WEAK", Score: 0.30}, // below similarity floor
		}},
		CheckpointPath: filepath.Join(t.TempDir(), "pseudo.json"),
	}
	require.NoError(t, b.Run(context.Background(), map[string]string{
		"SRC": "source text",
	}))

	e, ok := g.EdgeBetween("SRC", "NBR")
	require.True(t, ok)
	assert.Equal(t, EdgePseudoQuery, e.Type)
	assert.InDelta(t, 0.9*0.80, e.Weight, 1e-9)
	assert.False(t, g.HasEdge("SRC", "WEAK"))

	// A second run skips the checkpointed chunk.
	b2 := &PseudoBuilder{
		Graph:          g,
		Questions:      fakeQuestions{},
		Embedder:       fakeEmbedder{},
		Vectors:        fakeSearcher{},
		CheckpointPath: b.CheckpointPath,
	}
	require.NoError(t, b2.Run(context.Background(), map[string]string{
		"SRC": "source text",
	}))
	assert.True(t, b2.processed["SRC"])
}
