package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/model"
)

func testChunks() []*model.Chunk {
	return []*model.Chunk{
		{
			ChunkID:         "0000320193-23-000106_item_7_0",
			AccessionNumber: "0000320193-23-000106",
			SectionItem:     "item_7",
			SectionTitle:    "Management's Discussion and Analysis",
			ChunkIndex:      0,
			TokenCount:      12,
			Text:            "Total net sales decreased 3 percent during fiscal 2023 compared to 2022.",
			Ticker:          "AAPL",
			CompanyName:     "Apple Inc.",
			FilingDate:      "2023-11-03",
			FormType:        "10-K",
			FiscalYear:      2023,
			ContainsNumbers: true,
			Embedding:       []float32{1, 0, 0, 0},
		},
		{
			ChunkID:         "0000320193-23-000106_item_1a_1",
			AccessionNumber: "0000320193-23-000106",
			SectionItem:     "item_1a",
			SectionTitle:    "Risk Factors",
			ChunkIndex:      1,
			TokenCount:      10,
			Text:            "The Company faces substantial supply chain and foreign currency risks.",
			Ticker:          "AAPL",
			CompanyName:     "Apple Inc.",
			FilingDate:      "2023-11-03",
			FormType:        "10-K",
			FiscalYear:      2023,
			Embedding:       []float32{0, 1, 0, 0},
		},
		{
			ChunkID:         "0000789019-23-000014_item_7_0",
			AccessionNumber: "0000789019-23-000014",
			SectionItem:     "item_7",
			SectionTitle:    "Management's Discussion and Analysis",
			ChunkIndex:      0,
			TokenCount:      9,
			Text:            "Revenue increased driven by growth in cloud services.",
			Ticker:          "MSFT",
			CompanyName:     "Microsoft Corporation",
			FilingDate:      "2023-07-27",
			FormType:        "10-K",
			FiscalYear:      2023,
			Embedding:       []float32{0.9, 0.1, 0, 0},
		},
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("0000320193-23-000106_item_7_0")
	b := PointID("0000320193-23-000106_item_7_0")
	c := PointID("0000320193-23-000106_item_7_1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestVectorIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	v, err := OpenVectorIndex(ctx, filepath.Join(t.TempDir(), "vectors.db"), 4)
	require.NoError(t, err)
	defer v.Close()

	chunks := testChunks()
	require.NoError(t, v.Upsert(ctx, chunks))

	// Idempotent: same ids overwrite.
	require.NoError(t, v.Upsert(ctx, chunks))
	n, err := v.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := v.Search(ctx, []float32{1, 0, 0, 0}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "0000320193-23-000106_item_7_0", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "0000789019-23-000014_item_7_0", hits[1].ChunkID)
	assert.Equal(t, "Apple Inc.", hits[0].Metadata.CompanyName)
	assert.True(t, hits[0].Metadata.ContainsNumbers)
}

func TestVectorIndex_FilteredSearch(t *testing.T) {
	ctx := context.Background()
	v, err := OpenVectorIndex(ctx, filepath.Join(t.TempDir(), "vectors.db"), 4)
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.Upsert(ctx, testChunks()))

	hits, err := v.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{Ticker: "MSFT"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "MSFT", hits[0].Metadata.Ticker)

	hits, err = v.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{SectionItem: "item_1a"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "item_1a", hits[0].Metadata.SectionItem)

	hits, err = v.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{FilingDateFrom: "2023-08-01"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestVectorIndex_FetchByChunkIDs(t *testing.T) {
	ctx := context.Background()
	v, err := OpenVectorIndex(ctx, filepath.Join(t.TempDir(), "vectors.db"), 4)
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.Upsert(ctx, testChunks()))

	got, err := v.FetchByChunkIDs(ctx, []string{
		"0000320193-23-000106_item_1a_1",
		"missing_chunk",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	hit := got["0000320193-23-000106_item_1a_1"]
	assert.Contains(t, hit.Content, "supply chain")

	empty, err := v.FetchByChunkIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	v, err := OpenVectorIndex(ctx, filepath.Join(t.TempDir(), "vectors.db"), 4)
	require.NoError(t, err)
	defer v.Close()

	bad := testChunks()[:1]
	bad[0].Embedding = []float32{1, 0}
	assert.Error(t, v.Upsert(ctx, bad))

	_, err = v.Search(ctx, []float32{1, 0}, 5, Filter{})
	assert.Error(t, err)
}

func TestKeywordIndex_SearchAndFilter(t *testing.T) {
	k, err := OpenKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	defer k.Close()

	require.NoError(t, k.Add(testChunks()))
	n, err := k.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	hits, err := k.Search("revenue", 10, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "0000789019-23-000014_item_7_0", hits[0].ChunkID)
	assert.Equal(t, "Microsoft Corporation", hits[0].Metadata.CompanyName)
	assert.Equal(t, 2023, hits[0].Metadata.FiscalYear)

	hits, err = k.Search("sales", 10, Filter{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "AAPL", hits[0].Metadata.Ticker)

	hits, err = k.Search("risks", 10, Filter{SectionItem: "item_7"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordIndex_ReAddReplaces(t *testing.T) {
	k, err := OpenKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	defer k.Close()

	chunks := testChunks()
	require.NoError(t, k.Add(chunks))
	require.NoError(t, k.Add(chunks))

	n, err := k.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}
