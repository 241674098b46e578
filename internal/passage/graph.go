// Package passage maintains the in-memory chunk graph used for multi-hop
// retrieval: nodes are chunks, edges tie together passages that a reader
// would naturally traverse between.
package passage

import (
	"encoding/gob"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// EdgeType labels why two chunks are connected.
type EdgeType string

const (
	EdgeSequential         EdgeType = "sequential"
	EdgeCrossSection       EdgeType = "cross_section"
	EdgeEntityCooccurrence EdgeType = "entity_cooccurrence"
	EdgeTemporal           EdgeType = "temporal"
	EdgePseudoQuery        EdgeType = "pseudo_query"
)

// Edge weights for the deterministic builders.
const (
	weightSequential   = 0.8
	weightCrossSection = 0.5
	weightCooccurrence = 0.6
	weightTemporal     = 0.7
	pseudoWeightFactor = 0.9
)

// previewChars is how much chunk text a node carries.
const previewChars = 200

// Node holds the chunk metadata kept in memory for traversal.
type Node struct {
	ChunkID         string
	AccessionNumber string
	Ticker          string
	CompanyName     string
	FilingDate      string
	FiscalYear      int
	SectionItem     string
	SectionTitle    string
	ChunkIndex      int
	TextPreview     string
}

// Edge is one undirected connection between two chunks.
type Edge struct {
	Type   EdgeType
	Weight float64
}

// Neighbor pairs an adjacent chunk with the connecting edge.
type Neighbor struct {
	ChunkID string
	Edge    Edge
}

// Graph is an undirected simple graph keyed by chunk id. Safe for
// concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	adj   map[string]map[string]Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: map[string]*Node{},
		adj:   map[string]map[string]Edge{},
	}
}

// AddChunks registers nodes for the given chunks, replacing existing nodes
// with the same chunk id.
func (g *Graph) AddChunks(chunks []*model.Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range chunks {
		g.nodes[c.ChunkID] = &Node{
			ChunkID:         c.ChunkID,
			AccessionNumber: c.AccessionNumber,
			Ticker:          c.Ticker,
			CompanyName:     c.CompanyName,
			FilingDate:      c.FilingDate,
			FiscalYear:      c.FiscalYear,
			SectionItem:     c.SectionItem,
			SectionTitle:    c.SectionTitle,
			ChunkIndex:      c.ChunkIndex,
			TextPreview:     c.Preview(previewChars),
		}
	}
}

// Node returns the node for a chunk id, or nil.
func (g *Graph) Node(chunkID string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[chunkID]
}

// NodeCount reports the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// AddEdge connects a and b. Self-loops and pairs with an existing edge are
// ignored; the first edge between two chunks wins.
func (g *Graph) AddEdge(a, b string, edge Edge) bool {
	if a == b {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(a, b, edge)
}

func (g *Graph) addEdgeLocked(a, b string, edge Edge) bool {
	if g.nodes[a] == nil || g.nodes[b] == nil {
		return false
	}
	if _, exists := g.adj[a][b]; exists {
		return false
	}
	if g.adj[a] == nil {
		g.adj[a] = map[string]Edge{}
	}
	if g.adj[b] == nil {
		g.adj[b] = map[string]Edge{}
	}
	g.adj[a][b] = edge
	g.adj[b][a] = edge
	return true
}

// HasEdge reports whether a and b are connected.
func (g *Graph) HasEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adj[a][b]
	return ok
}

// EdgeBetween returns the edge connecting a and b, if any.
func (g *Graph) EdgeBetween(a, b string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.adj[a][b]
	return e, ok
}

// Neighbors returns a chunk's neighbors sorted by descending edge weight,
// ties broken by chunk id for determinism.
func (g *Graph) Neighbors(chunkID string) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	adj := g.adj[chunkID]
	out := make([]Neighbor, 0, len(adj))
	for id, e := range adj {
		out = append(out, Neighbor{ChunkID: id, Edge: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Edge.Weight != out[j].Edge.Weight {
			return out[i].Edge.Weight > out[j].Edge.Weight
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// Stats summarizes graph shape.
type Stats struct {
	Nodes               int            `json:"nodes"`
	Edges               int            `json:"edges"`
	EdgesByType         map[string]int `json:"edges_by_type"`
	AvgDegree           float64        `json:"avg_degree"`
	MaxDegree           int            `json:"max_degree"`
	IsolatedNodes       int            `json:"isolated_nodes"`
	ConnectedComponents int            `json:"connected_components"`
}

// Stats computes node, edge, degree, and component statistics.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Nodes: len(g.nodes), EdgesByType: map[string]int{}}

	totalDegree := 0
	for id := range g.nodes {
		deg := len(g.adj[id])
		totalDegree += deg
		if deg > s.MaxDegree {
			s.MaxDegree = deg
		}
		if deg == 0 {
			s.IsolatedNodes++
		}
	}
	s.Edges = totalDegree / 2
	if s.Nodes > 0 {
		s.AvgDegree = float64(totalDegree) / float64(s.Nodes)
	}

	counted := map[string]bool{}
	for a, nbrs := range g.adj {
		for b, e := range nbrs {
			key := pairKey(a, b)
			if counted[key] {
				continue
			}
			counted[key] = true
			s.EdgesByType[string(e.Type)]++
		}
	}

	visited := map[string]bool{}
	for id := range g.nodes {
		if visited[id] {
			continue
		}
		s.ConnectedComponents++
		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for nbr := range g.adj[cur] {
				if !visited[nbr] {
					visited[nbr] = true
					queue = append(queue, nbr)
				}
			}
		}
	}
	return s
}

func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

// persisted is the gob wire form of the graph.
type persisted struct {
	Nodes map[string]Node
	Edges []persistedEdge
}

type persistedEdge struct {
	A, B   string
	Type   EdgeType
	Weight float64
}

// Save writes the graph to path as a gob blob.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	p := persisted{Nodes: make(map[string]Node, len(g.nodes))}
	for id, n := range g.nodes {
		p.Nodes[id] = *n
	}
	seen := map[string]bool{}
	for a, nbrs := range g.adj {
		for b, e := range nbrs {
			key := pairKey(a, b)
			if seen[key] {
				continue
			}
			seen[key] = true
			p.Edges = append(p.Edges, persistedEdge{A: a, B: b, Type: e.Type, Weight: e.Weight})
		}
	}
	g.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "passage: create graph file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(p); err != nil {
		return eris.Wrap(err, "passage: encode graph")
	}
	return nil
}

// Load reads a graph previously written by Save.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "passage: open graph file")
	}
	defer f.Close()

	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, eris.Wrap(err, "passage: decode graph")
	}

	g := NewGraph()
	for id, n := range p.Nodes {
		node := n
		g.nodes[id] = &node
	}
	for _, e := range p.Edges {
		g.addEdgeLocked(e.A, e.B, Edge{Type: e.Type, Weight: e.Weight})
	}
	return g, nil
}
