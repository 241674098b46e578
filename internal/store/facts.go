package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// FactRepo persists XBRL facts with duplicate suppression.
type FactRepo struct {
	db *sql.DB
}

// Insert stores one fact. A fact with the same
// (accession, concept, period_end, dimensions) already present is not
// re-inserted; the existing row id is returned instead.
func (r *FactRepo) Insert(ctx context.Context, f model.Fact) (int64, error) {
	id, _, err := r.insert(ctx, r.db, f)
	return id, err
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *FactRepo) insert(ctx context.Context, q execQuerier, f model.Fact) (int64, bool, error) {
	dims := f.DimensionsJSON()

	var periodEnd string
	if f.PeriodEnd != nil {
		periodEnd = fmtDate(*f.PeriodEnd)
	}

	var existing int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM facts
		WHERE accession_number = ? AND qualified_name = ?
			AND COALESCE(period_end, '') = ? AND COALESCE(dimensions, '') = ?`,
		f.AccessionNumber, f.QualifiedName, periodEnd, dims,
	).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, eris.Wrap(err, "store: fact dedup lookup")
	}

	var valueNumeric, valueText any
	switch f.Value.Kind {
	case model.ValueNumeric:
		valueNumeric = f.Value.Numeric
	case model.ValueText:
		valueText = f.Value.Text
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO facts (accession_number, namespace, concept_name,
			qualified_name, value_numeric, value_text, unit, decimals,
			period_type, period_start, period_end, dimensions, is_custom,
			section, parent_concept, depth, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.AccessionNumber, nullable(f.Namespace), f.ConceptName, f.QualifiedName,
		valueNumeric, valueText, nullable(f.Unit), nullable(f.Decimals),
		string(f.PeriodType), fmtDatePtr(f.PeriodStart), fmtDatePtr(f.PeriodEnd),
		nullable(dims), boolToInt(f.IsCustom),
		nullable(f.Section), nullable(f.ParentConcept), f.Depth, nullable(f.Label))
	if err != nil {
		return 0, false, eris.Wrapf(err, "store: insert fact %s", f.QualifiedName)
	}
	id, err := res.LastInsertId()
	return id, true, eris.Wrap(err, "store: fact insert id")
}

// BatchInsert stores many facts in one transaction, returning how many were
// newly inserted and how many deduplicated against existing rows.
func (r *FactRepo) BatchInsert(ctx context.Context, facts []model.Fact) (inserted, duplicates int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: begin fact batch")
	}
	defer tx.Rollback()

	for _, f := range facts {
		_, created, err := r.insert(ctx, tx, f)
		if err != nil {
			return 0, 0, err
		}
		if created {
			inserted++
		} else {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, eris.Wrap(err, "store: commit fact batch")
	}
	return inserted, duplicates, nil
}

// Get lists a filing's facts, optionally filtered to one concept.
func (r *FactRepo) Get(ctx context.Context, accession, concept string) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts WHERE accession_number = ?`
	args := []any{accession}
	if concept != "" {
		query += ` AND qualified_name = ?`
		args = append(args, concept)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: facts for %s", accession)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// HistoryPoint is one period's value for a concept.
type HistoryPoint struct {
	AccessionNumber string
	PeriodEnd       string
	Value           float64
	Unit            string
}

// History returns a company's numeric values for one concept ordered by
// period end, undimensioned facts only.
func (r *FactRepo) History(ctx context.Context, cik, concept string, from, to *string) ([]HistoryPoint, error) {
	query := `
		SELECT fa.accession_number, fa.period_end, fa.value_numeric, COALESCE(fa.unit, '')
		FROM facts fa
		JOIN filings fi ON fi.accession_number = fa.accession_number
		WHERE fi.cik = ? AND fa.qualified_name = ?
			AND fa.value_numeric IS NOT NULL AND fa.dimensions IS NULL
			AND fa.period_end IS NOT NULL`
	args := []any{model.PadCIK(cik), concept}
	if from != nil {
		query += ` AND fa.period_end >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND fa.period_end <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY fa.period_end`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: history %s/%s", cik, concept)
	}
	defer rows.Close()

	var points []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.AccessionNumber, &p.PeriodEnd, &p.Value, &p.Unit); err != nil {
			return nil, eris.Wrap(err, "store: scan history")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "store: history iterate")
}

const factColumns = `id, accession_number, namespace, concept_name,
	qualified_name, value_numeric, value_text, unit, decimals, period_type,
	period_start, period_end, dimensions, is_custom, section, parent_concept,
	depth, label`

func scanFacts(rows *sql.Rows) ([]model.Fact, error) {
	var facts []model.Fact
	for rows.Next() {
		var f model.Fact
		var namespace, valueText, unit, decimals, periodType sql.NullString
		var periodStart, periodEnd, dims, section, parent, label sql.NullString
		var valueNumeric sql.NullFloat64
		var isCustom int

		err := rows.Scan(&f.ID, &f.AccessionNumber, &namespace, &f.ConceptName,
			&f.QualifiedName, &valueNumeric, &valueText, &unit, &decimals,
			&periodType, &periodStart, &periodEnd, &dims, &isCustom,
			&section, &parent, &f.Depth, &label)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan fact")
		}

		f.Namespace = namespace.String
		switch {
		case valueNumeric.Valid:
			f.Value = model.NumericValue(valueNumeric.Float64)
		case valueText.Valid:
			f.Value = model.TextValue(valueText.String)
		}
		f.Unit = unit.String
		f.Decimals = decimals.String
		f.PeriodType = model.PeriodType(periodType.String)
		f.PeriodStart = parseDate(periodStart)
		f.PeriodEnd = parseDate(periodEnd)
		if dims.Valid && dims.String != "" {
			var m map[string]string
			if jsonErr := json.Unmarshal([]byte(dims.String), &m); jsonErr == nil {
				f.Dimensions = m
			}
		}
		f.IsCustom = isCustom == 1
		f.Section = section.String
		f.ParentConcept = parent.String
		f.Label = label.String
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "store: facts iterate")
}
