package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// AnalyticsRepo records pipeline processing events and serves read-only
// summaries.
type AnalyticsRepo struct {
	db *sql.DB
}

// LogEntry is one pipeline processing event.
type LogEntry struct {
	Stage           string
	Status          string
	CIK             string
	AccessionNumber string
	Duration        time.Duration
	Message         string
	ContextJSON     string
}

// LogProcessing appends a processing event.
func (r *AnalyticsRepo) LogProcessing(ctx context.Context, e LogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_log (stage, status, cik, accession_number,
			duration_ms, message, context_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Stage, e.Status, nullable(e.CIK), nullable(e.AccessionNumber),
		e.Duration.Milliseconds(), nullable(e.Message), nullable(e.ContextJSON))
	return eris.Wrapf(err, "store: log %s/%s", e.Stage, e.Status)
}

// StageSummary aggregates one (stage, status) bucket.
type StageSummary struct {
	Stage      string
	Status     string
	Count      int
	AvgMs      float64
	LastEvent  string
}

// Summary aggregates the processing log by stage and status.
func (r *AnalyticsRepo) Summary(ctx context.Context) ([]StageSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT stage, status, COUNT(*), COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(created_at), '')
		FROM processing_log
		GROUP BY stage, status
		ORDER BY stage, status`)
	if err != nil {
		return nil, eris.Wrap(err, "store: summary")
	}
	defer rows.Close()

	var summaries []StageSummary
	for rows.Next() {
		var s StageSummary
		if err := rows.Scan(&s.Stage, &s.Status, &s.Count, &s.AvgMs, &s.LastEvent); err != nil {
			return nil, eris.Wrap(err, "store: scan summary")
		}
		summaries = append(summaries, s)
	}
	return summaries, eris.Wrap(rows.Err(), "store: summary iterate")
}

// Frame is a generic tabular query result.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Query runs arbitrary read-only SQL. Statements other than SELECT (or WITH
// … SELECT) are rejected.
func (r *AnalyticsRepo) Query(ctx context.Context, query string, args ...any) (*Frame, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "SELECT") && !strings.HasPrefix(trimmed, "WITH") {
		return nil, eris.New("store: analytics queries must be read-only SELECT statements")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: analytics query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "store: query columns")
	}

	frame := &Frame{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "store: scan query row")
		}
		frame.Rows = append(frame.Rows, values)
	}
	return frame, eris.Wrap(rows.Err(), "store: query iterate")
}
