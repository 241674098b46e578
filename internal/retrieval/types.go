package retrieval

import (
	"context"

	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/internal/kg"
)

// Result is one retrieved passage or graph row.
type Result struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata ResultMetadata `json:"metadata"`
}

// ResultMetadata identifies where a result came from.
type ResultMetadata struct {
	ChunkID      string   `json:"chunk_id,omitempty"`
	Ticker       string   `json:"ticker,omitempty"`
	CompanyName  string   `json:"company_name,omitempty"`
	SectionItem  string   `json:"section_item,omitempty"`
	SectionTitle string   `json:"section_title,omitempty"`
	FilingDate   string   `json:"filing_date,omitempty"`
	Sources      []string `json:"sources"`
	HopNumber    int      `json:"hop_number"`
	EdgeType     string   `json:"edge_type,omitempty"`
}

// TraceEntry records one hop of multi-hop expansion.
type TraceEntry struct {
	Hop             int `json:"hop"`
	CandidatesCount int `json:"candidates_count"`
	KeptCount       int `json:"kept_count"`
}

// Response is the full output of one retrieval, including diagnostics.
type Response struct {
	Results   []Result     `json:"results"`
	QueryType QueryType    `json:"query_type"`
	Trace     []TraceEntry `json:"trace,omitempty"`
}

// VectorSearcher is the slice of index.VectorIndex retrieval depends on.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Hit, error)
	FetchByChunkIDs(ctx context.Context, chunkIDs []string) (map[string]index.Hit, error)
}

// KeywordSearcher is the slice of index.KeywordIndex retrieval depends on.
type KeywordSearcher interface {
	Search(text string, topK int, filter index.Filter) ([]index.Hit, error)
}

// QueryEmbedder embeds the query string for vector search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// GraphSource serves entity-centric rows from the knowledge graph;
// satisfied by kg.Graph.
type GraphSource interface {
	RiskFactors(ctx context.Context, ticker string, limit int) ([]kg.EntityRow, error)
	CommunitySummaries(ctx context.Context, ticker string, limit int) ([]kg.EntityRow, error)
	Executives(ctx context.Context, ticker string, limit int) ([]kg.EntityRow, error)
}
