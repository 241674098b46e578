// Package embed turns chunk text into dense vectors via the Gemini
// embeddings API.
package embed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sells-group/finloom/internal/chunk"
	"github.com/sells-group/finloom/internal/config"
	"github.com/sells-group/finloom/internal/model"
)

// Provider produces embeddings for batches of texts. Implemented by the
// Gemini-backed client; faked in tests.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// geminiProvider calls the Gemini embeddings endpoint.
type geminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewProvider creates a Gemini embeddings provider.
func NewProvider(ctx context.Context, cfg config.EmbeddingConfig) (Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embed: create genai client")
	}
	p := &geminiProvider{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	if p.model == "" {
		p.model = "gemini-embedding-001"
	}
	if p.dimensions <= 0 {
		p.dimensions = 768
	}
	return p, nil
}

func (p *geminiProvider) Dimensions() int {
	return p.dimensions
}

func (p *geminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	outputDim := int32(p.dimensions)
	cfg := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed content")
	}
	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, eris.Errorf("embed: expected %d embeddings, got %d", len(texts), got)
	}

	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		if len(e.Values) != p.dimensions {
			return nil, eris.Errorf("embed: dimension mismatch: expected %d, got %d", p.dimensions, len(e.Values))
		}
		out[i] = e.Values
	}
	return out, nil
}

// Embedder batches chunks through a Provider with retry and token
// accounting.
type Embedder struct {
	provider  Provider
	batchSize int
	tokens    atomic.Int64
}

// NewEmbedder wraps a provider. batchSize defaults to 100.
func NewEmbedder(provider Provider, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Embedder{provider: provider, batchSize: batchSize}
}

// TotalTokens reports the approximate input tokens embedded so far.
func (e *Embedder) TotalTokens() int64 {
	return e.tokens.Load()
}

// EmbedChunks fills the Embedding field of every chunk in place. Each batch
// is retried with doubling backoff before the whole call fails.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []*model.Chunk) error {
	for start := 0; start < len(chunks); start += e.batchSize {
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		vectors, err := e.embedWithRetry(ctx, texts)
		if err != nil {
			return eris.Wrapf(err, "embed: batch starting at chunk %d", start)
		}
		for i, v := range vectors {
			batch[i].Embedding = v
			e.tokens.Add(int64(batch[i].TokenCount))
		}

		zap.L().Debug("embedded batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int64("total_tokens", e.tokens.Load()))
	}
	return nil
}

// EmbedQuery embeds one query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embedWithRetry(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	e.tokens.Add(int64(chunk.CountTokens(query)))
	return vectors[0], nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		vectors, err := e.provider.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			zap.L().Warn("embedding batch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}
