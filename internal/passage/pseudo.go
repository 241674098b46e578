package passage

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/pkg/anthropic"
)

const (
	// pseudoQuestionChars truncates chunk text fed to question generation.
	pseudoQuestionChars = 1500
	// pseudoNeighborTopK is how many vector neighbors each question pulls.
	pseudoNeighborTopK = 5
	// checkpointEvery persists pseudo-edge progress after this many chunks.
	checkpointEvery = 500
)

// QuestionGenerator produces follow-up questions for a chunk's text.
type QuestionGenerator interface {
	Questions(ctx context.Context, text string) ([]string, error)
}

// QueryEmbedder embeds one query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorSearcher answers similarity queries; satisfied by index.VectorIndex.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Hit, error)
}

// LLMQuestionGenerator asks the model for three follow-up questions.
type LLMQuestionGenerator struct {
	Client anthropic.Client
	Model  string
}

const questionPrompt = `Generate exactly three follow-up questions a financial analyst would ask
after reading the passage below. Respond with JSON only:
{"questions": ["...", "...", "..."]}
Passage:

`

// Questions implements QuestionGenerator.
func (q *LLMQuestionGenerator) Questions(ctx context.Context, text string) ([]string, error) {
	if len(text) > pseudoQuestionChars {
		text = text[:pseudoQuestionChars]
	}
	resp, err := q.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     q.Model,
		MaxTokens: 512,
		Messages: []anthropic.Message{
			{Role: "user", Content: questionPrompt + text},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "passage: generate questions")
	}

	var out struct {
		Questions []string `json:"questions"`
	}
	if err := anthropic.ExtractJSON(resp.Text(), &out); err != nil {
		return nil, eris.Wrap(err, "passage: parse questions")
	}
	return out.Questions, nil
}

// PseudoBuilder generates pseudo-query edges for every node in the graph.
type PseudoBuilder struct {
	Graph       *Graph
	Questions   QuestionGenerator
	Embedder    QueryEmbedder
	Vectors     VectorSearcher
	MinSim      float64 // similarity floor, default 0.60
	Concurrency int64   // parallel chunks, default 20

	CheckpointPath string

	mu        sync.Mutex
	processed map[string]bool
}

// pseudoCheckpoint is the JSON persisted between runs.
type pseudoCheckpoint struct {
	Processed []string `json:"processed"`
}

// Run generates pseudo-query edges for all chunks whose full text is
// supplied, skipping chunks already processed per the checkpoint.
// Per-chunk failures are logged and skipped.
func (b *PseudoBuilder) Run(ctx context.Context, texts map[string]string) error {
	if b.MinSim <= 0 {
		b.MinSim = 0.60
	}
	if b.Concurrency <= 0 {
		b.Concurrency = 20
	}
	if err := b.loadCheckpoint(); err != nil {
		return err
	}

	ids := make([]string, 0, len(texts))
	for id := range texts {
		if b.Graph.Node(id) != nil && !b.processed[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	sem := semaphore.NewWeighted(b.Concurrency)
	var wg sync.WaitGroup
	done := 0
	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return eris.Wrap(err, "passage: acquire pseudo slot")
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := b.processChunk(ctx, id, texts[id]); err != nil {
				zap.L().Warn("pseudo-query edges failed for chunk",
					zap.String("chunk_id", id),
					zap.Error(err))
				return
			}
			b.mu.Lock()
			b.processed[id] = true
			done++
			flush := done%checkpointEvery == 0
			b.mu.Unlock()
			if flush {
				if err := b.saveCheckpoint(); err != nil {
					zap.L().Warn("pseudo checkpoint save failed", zap.Error(err))
				}
			}
		}(id)
	}
	wg.Wait()
	return b.saveCheckpoint()
}

func (b *PseudoBuilder) processChunk(ctx context.Context, chunkID, text string) error {
	questions, err := b.Questions.Questions(ctx, text)
	if err != nil {
		return err
	}

	for _, q := range questions {
		vec, err := b.Embedder.EmbedQuery(ctx, q)
		if err != nil {
			return err
		}
		hits, err := b.Vectors.Search(ctx, vec, pseudoNeighborTopK, index.Filter{})
		if err != nil {
			return err
		}
		for _, hit := range hits {
			if hit.ChunkID == chunkID || hit.Score < b.MinSim {
				continue
			}
			// AddEdge skips pairs already connected by any builder.
			b.Graph.AddEdge(chunkID, hit.ChunkID, Edge{
				Type:   EdgePseudoQuery,
				Weight: pseudoWeightFactor * hit.Score,
			})
		}
	}
	return nil
}

func (b *PseudoBuilder) loadCheckpoint() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.processed == nil {
		b.processed = map[string]bool{}
	}
	if b.CheckpointPath == "" {
		return nil
	}
	data, err := os.ReadFile(b.CheckpointPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "passage: read pseudo checkpoint")
	}
	var cp pseudoCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return eris.Wrap(err, "passage: parse pseudo checkpoint")
	}
	for _, id := range cp.Processed {
		b.processed[id] = true
	}
	return nil
}

func (b *PseudoBuilder) saveCheckpoint() error {
	if b.CheckpointPath == "" {
		return nil
	}
	b.mu.Lock()
	cp := pseudoCheckpoint{Processed: make([]string, 0, len(b.processed))}
	for id := range b.processed {
		cp.Processed = append(cp.Processed, id)
	}
	b.mu.Unlock()
	sort.Strings(cp.Processed)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "passage: marshal pseudo checkpoint")
	}
	if err := os.WriteFile(b.CheckpointPath, data, 0o644); err != nil {
		return eris.Wrap(err, "passage: write pseudo checkpoint")
	}
	return nil
}

// PrunePseudoQueryEdges keeps, per node, only the top maxPerNode
// pseudo-query edges by weight. An edge survives when either endpoint
// ranks it in its own top set. Other edge types are untouched.
func (g *Graph) PrunePseudoQueryEdges(maxPerNode int) int {
	if maxPerNode <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	keep := map[string]bool{}
	for id, nbrs := range g.adj {
		var pseudo []Neighbor
		for other, e := range nbrs {
			if e.Type == EdgePseudoQuery {
				pseudo = append(pseudo, Neighbor{ChunkID: other, Edge: e})
			}
		}
		sort.Slice(pseudo, func(i, j int) bool {
			if pseudo[i].Edge.Weight != pseudo[j].Edge.Weight {
				return pseudo[i].Edge.Weight > pseudo[j].Edge.Weight
			}
			return pseudo[i].ChunkID < pseudo[j].ChunkID
		})
		for i := 0; i < len(pseudo) && i < maxPerNode; i++ {
			keep[pairKey(id, pseudo[i].ChunkID)] = true
		}
	}

	removed := 0
	for a, nbrs := range g.adj {
		for b, e := range nbrs {
			if e.Type != EdgePseudoQuery || a > b {
				continue
			}
			if !keep[pairKey(a, b)] {
				delete(g.adj[a], b)
				delete(g.adj[b], a)
				removed++
			}
		}
	}
	return removed
}
