package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
)

// NormalizationRepo persists the metric taxonomy, concept mappings, and
// normalized financial rows.
type NormalizationRepo struct {
	db *sql.DB
}

// UpsertMetric stores one canonical metric definition.
func (r *NormalizationRepo) UpsertMetric(ctx context.Context, m model.StandardizedMetric) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO standardized_metrics (metric_id, label, category, data_type, description, calculation)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(metric_id) DO UPDATE SET
			label       = excluded.label,
			category    = COALESCE(excluded.category, standardized_metrics.category),
			data_type   = COALESCE(excluded.data_type, standardized_metrics.data_type),
			description = COALESCE(excluded.description, standardized_metrics.description),
			calculation = COALESCE(excluded.calculation, standardized_metrics.calculation)`,
		m.MetricID, m.Label, nullable(m.Category), nullable(m.DataType),
		nullable(m.Description), nullable(m.Calculation))
	return eris.Wrapf(err, "store: upsert metric %s", m.MetricID)
}

// UpsertMapping stores one concept mapping, conflicting on
// (metric_id, concept_name).
func (r *NormalizationRepo) UpsertMapping(ctx context.Context, m model.ConceptMapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO concept_mappings (metric_id, concept_name, priority, confidence, industry_filter)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(metric_id, concept_name) DO UPDATE SET
			priority        = excluded.priority,
			confidence      = excluded.confidence,
			industry_filter = excluded.industry_filter`,
		m.MetricID, m.ConceptName, m.Priority, m.Confidence, nullable(m.IndustryFilter))
	return eris.Wrapf(err, "store: upsert mapping %s/%s", m.MetricID, m.ConceptName)
}

// Mappings lists every concept mapping ordered by metric then priority.
func (r *NormalizationRepo) Mappings(ctx context.Context) ([]model.ConceptMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT metric_id, concept_name, priority, confidence, COALESCE(industry_filter, '')
		FROM concept_mappings ORDER BY metric_id, priority`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list mappings")
	}
	defer rows.Close()

	var mappings []model.ConceptMapping
	for rows.Next() {
		var m model.ConceptMapping
		if err := rows.Scan(&m.MetricID, &m.ConceptName, &m.Priority, &m.Confidence, &m.IndustryFilter); err != nil {
			return nil, eris.Wrap(err, "store: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "store: mappings iterate")
}

// FilingWinner is the chosen filing for one (cik, fiscal_year).
type FilingWinner struct {
	CIK             string
	Ticker          string
	AccessionNumber string
	FormType        string
	FilingDate      string
	FiscalYear      int
}

// LatestFilingPerFiscalYear picks one filing per (cik, fiscal_year) across
// the given form types. The fiscal year comes from the filing's facts
// (latest fact period year), falling back to period_of_report. Amendments
// outrank originals; ties break on the most recent filing date.
func (r *NormalizationRepo) LatestFilingPerFiscalYear(ctx context.Context, formTypes []string, ticker string) ([]FilingWinner, error) {
	if len(formTypes) == 0 {
		formTypes = []string{"10-K", "10-K/A"}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(formTypes)), ",")
	args := make([]any, 0, len(formTypes)+1)
	for _, ft := range formTypes {
		args = append(args, ft)
	}

	query := `
		WITH filing_years AS (
			SELECT f.accession_number, f.cik, c.ticker, f.form_type, f.filing_date,
				COALESCE(
					(SELECT MAX(CAST(strftime('%Y', fa.period_end) AS INTEGER))
					 FROM facts fa WHERE fa.accession_number = f.accession_number),
					CAST(strftime('%Y', f.period_of_report) AS INTEGER)
				) AS fiscal_year
			FROM filings f
			JOIN companies c ON c.cik = f.cik
			WHERE f.form_type IN (` + placeholders + `)
				AND f.download_status = 'completed'`
	if ticker != "" {
		query += ` AND c.ticker = ?`
		args = append(args, ticker)
	}
	query += `
		),
		ranked AS (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY cik, fiscal_year
				ORDER BY CASE WHEN form_type LIKE '%/A' THEN 0 ELSE 1 END,
					filing_date DESC
			) AS rn
			FROM filing_years
			WHERE fiscal_year IS NOT NULL
		)
		SELECT cik, ticker, accession_number, form_type, filing_date, fiscal_year
		FROM ranked WHERE rn = 1
		ORDER BY ticker, fiscal_year`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: latest filing per fiscal year")
	}
	defer rows.Close()

	var winners []FilingWinner
	for rows.Next() {
		var w FilingWinner
		if err := rows.Scan(&w.CIK, &w.Ticker, &w.AccessionNumber, &w.FormType, &w.FilingDate, &w.FiscalYear); err != nil {
			return nil, eris.Wrap(err, "store: scan winner")
		}
		winners = append(winners, w)
	}
	return winners, eris.Wrap(rows.Err(), "store: winners iterate")
}

// UpsertNormalized applies the confidence rule: an existing row for the same
// (ticker, fiscal_year, fiscal_quarter, metric) with strictly higher
// confidence wins; otherwise the new row replaces it.
func (r *NormalizationRepo) UpsertNormalized(ctx context.Context, n model.NormalizedFinancial) (bool, error) {
	fq := 0
	if n.FiscalQuarter != nil {
		fq = *n.FiscalQuarter
	}

	var existing float64
	err := r.db.QueryRowContext(ctx, `
		SELECT confidence FROM normalized_financials
		WHERE company_ticker = ? AND fiscal_year = ? AND fiscal_quarter = ? AND metric_id = ?`,
		n.CompanyTicker, n.FiscalYear, fq, n.MetricID,
	).Scan(&existing)
	switch {
	case err == nil:
		if existing > n.Confidence {
			return false, nil
		}
	case err != sql.ErrNoRows:
		return false, eris.Wrap(err, "store: normalized lookup")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO normalized_financials (company_ticker, fiscal_year,
			fiscal_quarter, metric_id, value, source_concept,
			source_accession, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(company_ticker, fiscal_year, fiscal_quarter, metric_id)
		DO UPDATE SET
			value            = excluded.value,
			source_concept   = excluded.source_concept,
			source_accession = excluded.source_accession,
			confidence       = excluded.confidence,
			created_at       = excluded.created_at`,
		n.CompanyTicker, n.FiscalYear, fq, n.MetricID, n.Value,
		nullable(n.SourceConcept), nullable(n.SourceAccession), n.Confidence)
	if err != nil {
		return false, eris.Wrapf(err, "store: upsert normalized %s/%d/%s",
			n.CompanyTicker, n.FiscalYear, n.MetricID)
	}
	return true, nil
}

// Normalized lists normalized rows for a ticker (all tickers when empty),
// ordered by fiscal year then metric.
func (r *NormalizationRepo) Normalized(ctx context.Context, ticker string) ([]model.NormalizedFinancial, error) {
	query := `
		SELECT id, company_ticker, fiscal_year, fiscal_quarter, metric_id,
			value, COALESCE(source_concept, ''), COALESCE(source_accession, ''),
			confidence, created_at
		FROM normalized_financials`
	var args []any
	if ticker != "" {
		query += ` WHERE company_ticker = ?`
		args = append(args, ticker)
	}
	query += ` ORDER BY company_ticker, fiscal_year, metric_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list normalized")
	}
	defer rows.Close()

	var results []model.NormalizedFinancial
	for rows.Next() {
		var n model.NormalizedFinancial
		var fq int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.CompanyTicker, &n.FiscalYear, &fq,
			&n.MetricID, &n.Value, &n.SourceConcept, &n.SourceAccession,
			&n.Confidence, &createdAt); err != nil {
			return nil, eris.Wrap(err, "store: scan normalized")
		}
		if fq != 0 {
			n.FiscalQuarter = &fq
		}
		if t := parseTime(sql.NullString{String: createdAt, Valid: true}); t != nil {
			n.CreatedAt = *t
		}
		results = append(results, n)
	}
	return results, eris.Wrap(rows.Err(), "store: normalized iterate")
}

// DuplicateGroup is one set of conflicting normalized rows.
type DuplicateGroup struct {
	CompanyTicker string
	FiscalYear    int
	FiscalQuarter int
	MetricID      string
	KeeperID      int64
	RowIDs        []int64
	Confidences   []float64
}

// DetectDuplicates finds normalized rows sharing a logical key. The keeper
// is the highest-confidence, most recently created row. With the unique
// index in place this only finds rows predating it.
func (r *NormalizationRepo) DetectDuplicates(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.id, n.company_ticker, n.fiscal_year, n.fiscal_quarter,
			n.metric_id, n.confidence
		FROM normalized_financials n
		JOIN (
			SELECT company_ticker, fiscal_year, fiscal_quarter, metric_id
			FROM normalized_financials
			GROUP BY company_ticker, fiscal_year, fiscal_quarter, metric_id
			HAVING COUNT(*) > 1
		) d ON d.company_ticker = n.company_ticker
			AND d.fiscal_year = n.fiscal_year
			AND d.fiscal_quarter = n.fiscal_quarter
			AND d.metric_id = n.metric_id
		ORDER BY n.company_ticker, n.fiscal_year, n.fiscal_quarter,
			n.metric_id, n.confidence DESC, n.created_at DESC, n.id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "store: detect duplicates")
	}
	defer rows.Close()

	var groups []DuplicateGroup
	var current *DuplicateGroup
	for rows.Next() {
		var id int64
		var ticker, metric string
		var fy, fq int
		var conf float64
		if err := rows.Scan(&id, &ticker, &fy, &fq, &metric, &conf); err != nil {
			return nil, eris.Wrap(err, "store: scan duplicate")
		}

		if current == nil || current.CompanyTicker != ticker ||
			current.FiscalYear != fy || current.FiscalQuarter != fq ||
			current.MetricID != metric {
			groups = append(groups, DuplicateGroup{
				CompanyTicker: ticker, FiscalYear: fy, FiscalQuarter: fq,
				MetricID: metric, KeeperID: id,
			})
			current = &groups[len(groups)-1]
		}
		current.RowIDs = append(current.RowIDs, id)
		current.Confidences = append(current.Confidences, conf)
	}
	return groups, eris.Wrap(rows.Err(), "store: duplicates iterate")
}

// RemoveDuplicates deletes every non-keeper row inside one transaction,
// rolling back on any error. With dryRun the transaction is rolled back
// after counting.
func (r *NormalizationRepo) RemoveDuplicates(ctx context.Context, dryRun bool) (int, error) {
	groups, err := r.DetectDuplicates(ctx)
	if err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin duplicate cleanup")
	}
	defer tx.Rollback()

	deleted := 0
	for _, g := range groups {
		for _, id := range g.RowIDs {
			if id == g.KeeperID {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM normalized_financials WHERE id = ?`, id); err != nil {
				return 0, eris.Wrapf(err, "store: delete duplicate %d", id)
			}
			deleted++
		}
	}

	if dryRun {
		zap.L().Info("duplicate cleanup dry run", zap.Int("would_delete", deleted))
		return deleted, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "store: commit duplicate cleanup")
	}
	return deleted, nil
}
