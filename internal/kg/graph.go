// Package kg builds and maintains the Neo4j knowledge graph of companies,
// filings, sections, extracted entities, and reported metrics.
package kg

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/config"
)

// Relationship types written by the builder.
const (
	RelFiled           = "FILED"
	RelHasSection      = "HAS_SECTION"
	RelHasExecutive    = "HAS_EXECUTIVE"
	RelDisclosesRisk   = "DISCLOSES_RISK"
	RelReportsMetric   = "REPORTS_METRIC"
	RelOperatesSegment = "OPERATES_SEGMENT"
	RelDescribesEvent  = "DESCRIBES_EVENT"
	RelMentionsCompany = "MENTIONS_COMPANY"
	RelMentionsPerson  = "MENTIONS_PERSON"
	RelMentionsMetric  = "MENTIONS_METRIC"
	RelMentionsRisk    = "MENTIONS_RISK"
	RelAmends          = "AMENDS"
	RelNextFiling      = "NEXT_FILING"
	RelSimilarTo       = "SIMILAR_TO"
)

// Graph wraps the Neo4j driver with the project's session defaults.
type Graph struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
}

// NewGraph connects to Neo4j and verifies connectivity.
func NewGraph(ctx context.Context, cfg config.GraphConfig) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, eris.Wrap(err, "kg: create driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, eris.Wrap(err, "kg: verify connectivity")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &Graph{driver: driver, database: cfg.Database, batchSize: batch}, nil
}

// Close shuts down the driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// run executes one write query.
func (g *Graph) run(ctx context.Context, cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, g.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(g.database))
	return err
}

// query executes a read query and returns the eager result.
func (g *Graph) query(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, g.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(g.database))
}

// runBatched feeds rows through an UNWIND query in batches.
func (g *Graph) runBatched(ctx context.Context, cypher string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += g.batchSize {
		end := start + g.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := g.run(ctx, cypher, map[string]any{"rows": rows[start:end]}); err != nil {
			return eris.Wrapf(err, "kg: batch rows %d..%d", start, end)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE CONSTRAINT company_cik IF NOT EXISTS FOR (c:Company) REQUIRE c.cik IS UNIQUE`,
	`CREATE CONSTRAINT filing_accession IF NOT EXISTS FOR (f:Filing) REQUIRE f.accession_number IS UNIQUE`,
	`CREATE INDEX company_ticker IF NOT EXISTS FOR (c:Company) ON (c.ticker)`,
	`CREATE INDEX person_name IF NOT EXISTS FOR (p:Person) ON (p.name)`,
	`CREATE INDEX section_id IF NOT EXISTS FOR (s:Section) ON (s.section_id)`,
	`CREATE INDEX metric_concept IF NOT EXISTS FOR (m:FinancialMetric) ON (m.concept)`,
	`CREATE INDEX filing_fiscal_year IF NOT EXISTS FOR (f:Filing) ON (f.fiscal_year)`,
}

// Bootstrap creates uniqueness constraints and indexes. Safe to rerun.
func (g *Graph) Bootstrap(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := g.run(ctx, stmt, nil); err != nil {
			return eris.Wrap(err, "kg: bootstrap schema")
		}
	}
	zap.L().Info("knowledge graph schema ready",
		zap.Int("statements", len(schemaStatements)))
	return nil
}

// Stats reports node and relationship counts by label and type.
type Stats struct {
	Nodes         int64
	Relationships int64
	NodesByLabel  map[string]int64
	RelsByType    map[string]int64
}

// Stats collects graph-wide counts.
func (g *Graph) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{NodesByLabel: map[string]int64{}, RelsByType: map[string]int64{}}

	res, err := g.query(ctx, `MATCH (n) UNWIND labels(n) AS label RETURN label, count(*) AS n`, nil)
	if err != nil {
		return nil, eris.Wrap(err, "kg: count nodes")
	}
	for _, rec := range res.Records {
		label, _ := rec.Get("label")
		n, _ := rec.Get("n")
		count := n.(int64)
		s.NodesByLabel[label.(string)] = count
		s.Nodes += count
	}

	res, err = g.query(ctx, `MATCH ()-[r]->() RETURN type(r) AS t, count(*) AS n`, nil)
	if err != nil {
		return nil, eris.Wrap(err, "kg: count relationships")
	}
	for _, rec := range res.Records {
		t, _ := rec.Get("t")
		n, _ := rec.Get("n")
		count := n.(int64)
		s.RelsByType[t.(string)] = count
		s.Relationships += count
	}
	return s, nil
}
