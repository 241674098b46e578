package kg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/entities"
	"github.com/sells-group/finloom/internal/model"
)

// KeyConcepts are the XBRL concepts imported as FinancialMetric nodes when
// a full import is not requested.
var KeyConcepts = map[string]bool{
	"us-gaap:Revenues":                                                     true,
	"us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax":          true,
	"us-gaap:NetIncomeLoss":                                                true,
	"us-gaap:Assets":                                                       true,
	"us-gaap:Liabilities":                                                  true,
	"us-gaap:StockholdersEquity":                                           true,
	"us-gaap:EarningsPerShareBasic":                                        true,
	"us-gaap:EarningsPerShareDiluted":                                      true,
	"us-gaap:OperatingIncomeLoss":                                          true,
	"us-gaap:CashAndCashEquivalentsAtCarryingValue":                        true,
}

// UpsertCompany writes a Company node keyed by cik.
func (g *Graph) UpsertCompany(ctx context.Context, c *model.Company) error {
	err := g.run(ctx, `
		MERGE (co:Company {cik: $cik})
		SET co.ticker = $ticker, co.name = $name, co.sic = $sic`,
		map[string]any{
			"cik":    c.CIK,
			"ticker": c.Ticker,
			"name":   c.Name,
			"sic":    c.SIC,
		})
	return eris.Wrap(err, "kg: upsert company")
}

// UpsertFiling writes a Filing node and its FILED edge. Amendments get an
// AMENDS edge toward the original of the same form class and period.
func (g *Graph) UpsertFiling(ctx context.Context, f *model.Filing, fiscalYear int) error {
	err := g.run(ctx, `
		MERGE (fi:Filing {accession_number: $accession})
		SET fi.form_type = $form_type, fi.filing_date = $filing_date,
		    fi.fiscal_year = $fiscal_year
		WITH fi
		MATCH (co:Company {cik: $cik})
		MERGE (co)-[:FILED]->(fi)`,
		map[string]any{
			"accession":   f.AccessionNumber,
			"form_type":   f.FormType,
			"filing_date": f.FilingDate.Format("2006-01-02"),
			"fiscal_year": fiscalYear,
			"cik":         f.CIK,
		})
	if err != nil {
		return eris.Wrap(err, "kg: upsert filing")
	}

	if f.IsAmendment() {
		err = g.run(ctx, `
			MATCH (a:Filing {accession_number: $accession})
			MATCH (:Company {cik: $cik})-[:FILED]->(o:Filing {fiscal_year: $fiscal_year})
			WHERE o.form_type = $form_class AND o <> a
			MERGE (a)-[:AMENDS]->(o)`,
			map[string]any{
				"accession":   f.AccessionNumber,
				"cik":         f.CIK,
				"fiscal_year": fiscalYear,
				"form_class":  f.FormClass(),
			})
		if err != nil {
			return eris.Wrap(err, "kg: link amendment")
		}
	}
	return nil
}

// LinkFilingSequence chains a company's filings of one form class in
// fiscal-year order with NEXT_FILING edges.
func (g *Graph) LinkFilingSequence(ctx context.Context, cik, formClass string) error {
	err := g.run(ctx, `
		MATCH (:Company {cik: $cik})-[:FILED]->(f:Filing)
		WHERE f.form_type STARTS WITH $form_class
		WITH f ORDER BY f.fiscal_year
		WITH collect(f) AS filings
		UNWIND range(0, size(filings) - 2) AS i
		WITH filings[i] AS a, filings[i + 1] AS b
		MERGE (a)-[:NEXT_FILING]->(b)`,
		map[string]any{"cik": cik, "form_class": formClass})
	return eris.Wrap(err, "kg: link filing sequence")
}

// ImportSections writes Section nodes and the entity nodes and mention
// edges derived from each section's extraction result.
func (g *Graph) ImportSections(ctx context.Context, filing *model.Filing, results []*entities.SectionEntities) error {
	sectionRows := make([]map[string]any, 0, len(results))
	for _, res := range results {
		sectionRows = append(sectionRows, map[string]any{
			"section_id": sectionID(filing.AccessionNumber, string(res.SectionType)),
			"item":       string(res.SectionType),
			"accession":  filing.AccessionNumber,
		})
	}
	err := g.runBatched(ctx, `
		UNWIND $rows AS row
		MATCH (fi:Filing {accession_number: row.accession})
		MERGE (s:Section {section_id: row.section_id})
		SET s.item = row.item
		MERGE (fi)-[:HAS_SECTION]->(s)`, sectionRows)
	if err != nil {
		return eris.Wrap(err, "kg: import sections")
	}

	for _, res := range results {
		if err := g.importSectionEntities(ctx, filing, res); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) importSectionEntities(ctx context.Context, filing *model.Filing, res *entities.SectionEntities) error {
	sid := sectionID(filing.AccessionNumber, string(res.SectionType))

	var companyRows, personRows, metricRows, riskRows []map[string]any
	for _, e := range res.RawEntities {
		row := map[string]any{"section_id": sid, "name": strings.TrimSpace(e.Text)}
		switch e.Type {
		case "ORG":
			companyRows = append(companyRows, row)
		case "PERSON":
			personRows = append(personRows, row)
		case "METRIC":
			row["name"] = strings.ToLower(row["name"].(string))
			metricRows = append(metricRows, row)
		case "RISK":
			row["name"] = strings.ToLower(row["name"].(string))
			riskRows = append(riskRows, row)
		}
	}

	companyRows = dedupRows(g.dedupAgainstCompanies(ctx, companyRows))
	personRows = dedupRows(personRows)

	steps := []struct {
		cypher string
		rows   []map[string]any
	}{
		{`UNWIND $rows AS row
			MATCH (s:Section {section_id: row.section_id})
			MATCH (co:Company {name: row.name})
			MERGE (s)-[:` + RelMentionsCompany + `]->(co)`, companyRows},
		{`UNWIND $rows AS row
			MATCH (s:Section {section_id: row.section_id})
			MERGE (p:Person {name: row.name})
			MERGE (s)-[:` + RelMentionsPerson + `]->(p)`, personRows},
		{`UNWIND $rows AS row
			MATCH (s:Section {section_id: row.section_id})
			MERGE (m:FinancialMetric {concept: row.name})
			MERGE (s)-[:` + RelMentionsMetric + `]->(m)`, metricRows},
		{`UNWIND $rows AS row
			MATCH (s:Section {section_id: row.section_id})
			MERGE (r:RiskFactor {category: row.name})
			MERGE (s)-[:` + RelMentionsRisk + `]->(r)`, riskRows},
	}
	for _, step := range steps {
		if err := g.runBatched(ctx, step.cypher, step.rows); err != nil {
			return eris.Wrap(err, "kg: import section entities")
		}
	}

	if res.LLM != nil {
		if err := g.importLLMEntities(ctx, filing, sid, res.LLM); err != nil {
			return err
		}
	}
	return nil
}

// dedupAgainstCompanies rewrites mentioned company names to the canonical
// roster name when the fuzzy match clears the threshold, and drops rows
// matching nothing known.
func (g *Graph) dedupAgainstCompanies(ctx context.Context, rows []map[string]any) []map[string]any {
	if len(rows) == 0 {
		return rows
	}
	res, err := g.query(ctx, `MATCH (co:Company) RETURN co.name AS name`, nil)
	if err != nil {
		zap.L().Warn("company lookup for dedup failed", zap.Error(err))
		return nil
	}
	known := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		name, _ := rec.Get("name")
		known = append(known, name.(string))
	}

	var out []map[string]any
	for _, row := range rows {
		mention := row["name"].(string)
		for _, name := range known {
			if SameEntity(mention, name) {
				row["name"] = name
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func (g *Graph) importLLMEntities(ctx context.Context, filing *model.Filing, sid string, llm *entities.LLMExtraction) error {
	var execRows []map[string]any
	for _, p := range llm.People {
		execRows = append(execRows, map[string]any{
			"cik":        filing.CIK,
			"name":       p.Name,
			"role":       p.Role,
			"start_date": p.StartDate,
		})
	}
	err := g.runBatched(ctx, `
		UNWIND $rows AS row
		MATCH (co:Company {cik: row.cik})
		MERGE (p:Person {name: row.name})
		SET p.role = row.role, p.start_date = row.start_date
		MERGE (co)-[:`+RelHasExecutive+`]->(p)`, execRows)
	if err != nil {
		return eris.Wrap(err, "kg: import executives")
	}

	var riskRows []map[string]any
	for _, r := range llm.RiskFactors {
		riskRows = append(riskRows, map[string]any{
			"accession":   filing.AccessionNumber,
			"category":    r.Category,
			"severity":    r.Severity,
			"description": r.Description,
		})
	}
	err = g.runBatched(ctx, `
		UNWIND $rows AS row
		MATCH (fi:Filing {accession_number: row.accession})
		MERGE (r:RiskFactor {category: row.category, description: row.description})
		SET r.severity = row.severity
		MERGE (fi)-[:`+RelDisclosesRisk+`]->(r)`, riskRows)
	return eris.Wrap(err, "kg: import risk factors")
}

// ImportFacts writes REPORTS_METRIC edges for a filing's XBRL facts. When
// allConcepts is false only KeyConcepts are imported. Dimensioned and
// non-numeric facts are skipped.
func (g *Graph) ImportFacts(ctx context.Context, accession string, facts []*model.Fact, allConcepts bool) (int, error) {
	var rows []map[string]any
	for _, f := range facts {
		if !f.Value.IsNumeric() || len(f.Dimensions) > 0 {
			continue
		}
		if !allConcepts && !KeyConcepts[f.QualifiedName] {
			continue
		}
		rows = append(rows, map[string]any{
			"accession":    accession,
			"concept":      f.QualifiedName,
			"value":        f.Value.Numeric,
			"unit":         f.Unit,
			"period_start": fmtDate(f.PeriodStart),
			"period_end":   fmtDate(f.PeriodEnd),
		})
	}

	err := g.runBatched(ctx, `
		UNWIND $rows AS row
		MATCH (fi:Filing {accession_number: row.accession})
		MERGE (m:FinancialMetric {concept: row.concept, period_end: row.period_end, accession: row.accession})
		SET m.value = row.value, m.unit = row.unit, m.period_start = row.period_start
		MERGE (fi)-[:`+RelReportsMetric+`]->(m)`, rows)
	if err != nil {
		return 0, eris.Wrap(err, "kg: import facts")
	}

	zap.L().Info("imported metrics into graph",
		zap.String("accession_number", accession),
		zap.Int("metrics", len(rows)),
		zap.Bool("all_concepts", allConcepts))
	return len(rows), nil
}

func sectionID(accession, item string) string {
	return fmt.Sprintf("%s/%s", accession, item)
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// dedupRows removes duplicate (section_id, name) rows, keeping first
// occurrence order.
func dedupRows(rows []map[string]any) []map[string]any {
	seen := map[string]bool{}
	out := rows[:0]
	for _, row := range rows {
		key := fmt.Sprintf("%v|%v", row["section_id"], row["name"])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}
