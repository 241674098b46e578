package embed

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/model"
)

// fakeProvider records batch sizes and can fail the first n calls.
type fakeProvider struct {
	dims       int
	batchSizes []int
	failures   int
}

func (f *fakeProvider) Dimensions() int { return f.dims }

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, eris.New("resource exhausted")
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func makeChunks(n int) []*model.Chunk {
	chunks := make([]*model.Chunk, n)
	for i := range chunks {
		chunks[i] = &model.Chunk{
			ChunkID:    "acc_item_1_" + string(rune('a'+i)),
			Text:       "some chunk text",
			TokenCount: 3,
		}
	}
	return chunks
}

func TestEmbedChunks_Batches(t *testing.T) {
	p := &fakeProvider{dims: 4}
	e := NewEmbedder(p, 2)

	chunks := makeChunks(5)
	require.NoError(t, e.EmbedChunks(context.Background(), chunks))

	assert.Equal(t, []int{2, 2, 1}, p.batchSizes)
	for _, ch := range chunks {
		require.Len(t, ch.Embedding, 4)
	}
	assert.Equal(t, int64(15), e.TotalTokens())
}

func TestEmbedChunks_RetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{dims: 4, failures: 1}
	e := NewEmbedder(p, 100)

	chunks := makeChunks(2)
	require.NoError(t, e.EmbedChunks(context.Background(), chunks))
	require.Len(t, chunks[0].Embedding, 4)
}

func TestEmbedChunks_ExhaustsRetries(t *testing.T) {
	p := &fakeProvider{dims: 4, failures: 10}
	e := NewEmbedder(p, 100)

	err := e.EmbedChunks(context.Background(), makeChunks(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource exhausted")
}

func TestEmbedQuery(t *testing.T) {
	p := &fakeProvider{dims: 4}
	e := NewEmbedder(p, 100)

	v, err := e.EmbedQuery(context.Background(), "what was revenue growth")
	require.NoError(t, err)
	require.Len(t, v, 4)
	assert.Equal(t, int64(4), e.TotalTokens())
}
