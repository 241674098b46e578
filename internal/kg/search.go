package kg

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// EntityRow is one graph-sourced retrieval row for a company.
type EntityRow struct {
	Kind    string // "risk_factor", "community_summary", "executive"
	Key     string // stable synthetic identifier
	Content string
}

// RiskFactors returns the risks disclosed by a company's filings, most
// severe first.
func (g *Graph) RiskFactors(ctx context.Context, ticker string, limit int) ([]EntityRow, error) {
	res, err := g.query(ctx, `
		MATCH (:Company {ticker: $ticker})-[:FILED]->(f:Filing)-[:DISCLOSES_RISK]->(r:RiskFactor)
		RETURN DISTINCT r.category AS category, r.severity AS severity,
		       coalesce(r.description, '') AS description
		ORDER BY severity DESC
		LIMIT $limit`,
		map[string]any{"ticker": ticker, "limit": limit})
	if err != nil {
		return nil, eris.Wrap(err, "kg: fetch risk factors")
	}

	rows := make([]EntityRow, 0, len(res.Records))
	for i, rec := range res.Records {
		category, _ := rec.Get("category")
		severity, _ := rec.Get("severity")
		description, _ := rec.Get("description")
		rows = append(rows, EntityRow{
			Kind:    "risk_factor",
			Key:     fmt.Sprintf("graph:risk:%s:%d", ticker, i),
			Content: fmt.Sprintf("Risk (%v, severity %v): %v", category, severity, description),
		})
	}
	return rows, nil
}

// CommunitySummaries returns the distinct community summaries attached to
// a company and its filings.
func (g *Graph) CommunitySummaries(ctx context.Context, ticker string, limit int) ([]EntityRow, error) {
	res, err := g.query(ctx, `
		MATCH (c:Company {ticker: $ticker})
		OPTIONAL MATCH (c)-[:FILED]->(f:Filing)
		WITH collect(c.community_summary) + collect(f.community_summary) AS summaries
		UNWIND summaries AS s
		WITH DISTINCT s WHERE s IS NOT NULL
		RETURN s LIMIT $limit`,
		map[string]any{"ticker": ticker, "limit": limit})
	if err != nil {
		return nil, eris.Wrap(err, "kg: fetch community summaries")
	}

	rows := make([]EntityRow, 0, len(res.Records))
	for i, rec := range res.Records {
		s, _ := rec.Get("s")
		rows = append(rows, EntityRow{
			Kind:    "community_summary",
			Key:     fmt.Sprintf("graph:community:%s:%d", ticker, i),
			Content: fmt.Sprintf("Community summary: %v", s),
		})
	}
	return rows, nil
}

// Executives returns a company's known officers and directors.
func (g *Graph) Executives(ctx context.Context, ticker string, limit int) ([]EntityRow, error) {
	res, err := g.query(ctx, `
		MATCH (:Company {ticker: $ticker})-[:HAS_EXECUTIVE]->(p:Person)
		RETURN p.name AS name, coalesce(p.role, '') AS role
		ORDER BY name LIMIT $limit`,
		map[string]any{"ticker": ticker, "limit": limit})
	if err != nil {
		return nil, eris.Wrap(err, "kg: fetch executives")
	}

	rows := make([]EntityRow, 0, len(res.Records))
	for i, rec := range res.Records {
		name, _ := rec.Get("name")
		role, _ := rec.Get("role")
		rows = append(rows, EntityRow{
			Kind:    "executive",
			Key:     fmt.Sprintf("graph:executive:%s:%d", ticker, i),
			Content: fmt.Sprintf("Executive: %v, %v", name, role),
		})
	}
	return rows, nil
}
