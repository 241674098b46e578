package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// FilingRepo persists filing records and their processing state.
type FilingRepo struct {
	db *sql.DB
}

// Upsert inserts or refreshes a filing's download fields. Processing flags
// and markdown are preserved across re-upserts.
func (r *FilingRepo) Upsert(ctx context.Context, f model.Filing) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO filings (accession_number, cik, form_type, filing_date,
			period_of_report, acceptance_datetime, primary_document,
			primary_doc_desc, is_xbrl, is_inline_xbrl, local_path,
			download_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(accession_number) DO UPDATE SET
			form_type           = excluded.form_type,
			filing_date         = excluded.filing_date,
			period_of_report    = COALESCE(excluded.period_of_report, filings.period_of_report),
			acceptance_datetime = COALESCE(excluded.acceptance_datetime, filings.acceptance_datetime),
			primary_document    = excluded.primary_document,
			primary_doc_desc    = excluded.primary_doc_desc,
			is_xbrl             = excluded.is_xbrl,
			is_inline_xbrl      = excluded.is_inline_xbrl,
			local_path          = COALESCE(excluded.local_path, filings.local_path),
			download_status     = excluded.download_status`,
		f.AccessionNumber, model.PadCIK(f.CIK), f.FormType, fmtDate(f.FilingDate),
		fmtDatePtr(f.PeriodOfReport), fmtTimePtr(f.AcceptanceDatetime),
		f.PrimaryDocument, nullable(f.PrimaryDocDesc),
		boolToInt(f.IsXBRL), boolToInt(f.IsInlineXBRL),
		nullable(f.LocalPath), string(f.DownloadStatus))
	return eris.Wrapf(err, "store: upsert filing %s", f.AccessionNumber)
}

const filingColumns = `accession_number, cik, form_type, filing_date,
	period_of_report, acceptance_datetime, primary_document, primary_doc_desc,
	is_xbrl, is_inline_xbrl, local_path, download_status,
	xbrl_processed, sections_processed`

// Get fetches one filing; nil when absent. The markdown blob is loaded
// separately via GetFullMarkdown.
func (r *FilingRepo) Get(ctx context.Context, accession string) (*model.Filing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+filingColumns+` FROM filings WHERE accession_number = ?`, accession)
	f, err := scanFiling(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get filing %s", accession)
	}
	return f, nil
}

// ByCompany lists a company's filings, optionally filtered by form type and
// filing-date range, newest first.
func (r *FilingRepo) ByCompany(ctx context.Context, cik, formType string, from, to *string) ([]model.Filing, error) {
	query := `SELECT ` + filingColumns + ` FROM filings WHERE cik = ?`
	args := []any{model.PadCIK(cik)}

	if formType != "" {
		query += ` AND form_type = ?`
		args = append(args, formType)
	}
	if from != nil {
		query += ` AND filing_date >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND filing_date <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY filing_date DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: filings for %s", cik)
	}
	defer rows.Close()

	var filings []model.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan filing")
		}
		filings = append(filings, *f)
	}
	return filings, eris.Wrap(rows.Err(), "store: filings iterate")
}

// StatusUpdate carries the partial fields of an update; nil means unchanged.
type StatusUpdate struct {
	DownloadStatus    *model.DownloadStatus
	XBRLProcessed     *bool
	SectionsProcessed *bool
	LocalPath         *string
	PeriodOfReport    *string
	FullMarkdown      *string
}

// UpdateStatus applies a partial update to one filing.
func (r *FilingRepo) UpdateStatus(ctx context.Context, accession string, u StatusUpdate) error {
	query := `UPDATE filings SET accession_number = accession_number`
	var args []any

	if u.DownloadStatus != nil {
		query += `, download_status = ?`
		args = append(args, string(*u.DownloadStatus))
	}
	if u.XBRLProcessed != nil {
		query += `, xbrl_processed = ?`
		args = append(args, boolToInt(*u.XBRLProcessed))
	}
	if u.SectionsProcessed != nil {
		query += `, sections_processed = ?`
		args = append(args, boolToInt(*u.SectionsProcessed))
	}
	if u.LocalPath != nil {
		query += `, local_path = ?`
		args = append(args, *u.LocalPath)
	}
	if u.PeriodOfReport != nil {
		query += `, period_of_report = ?`
		args = append(args, *u.PeriodOfReport)
	}
	if u.FullMarkdown != nil {
		query += `, full_markdown = ?`
		args = append(args, *u.FullMarkdown)
	}

	query += ` WHERE accession_number = ?`
	args = append(args, accession)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "store: update filing %s", accession)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: filing not found: %s", accession)
	}
	return nil
}

// ProcessingKind selects which processing flag Unprocessed filters on.
type ProcessingKind string

const (
	ProcessingXBRL     ProcessingKind = "xbrl"
	ProcessingSections ProcessingKind = "sections"
)

// Unprocessed lists completed filings whose given processing flag is unset.
func (r *FilingRepo) Unprocessed(ctx context.Context, kind ProcessingKind) ([]model.Filing, error) {
	var flag string
	switch kind {
	case ProcessingXBRL:
		flag = "xbrl_processed"
	case ProcessingSections:
		flag = "sections_processed"
	default:
		return nil, eris.Errorf("store: unknown processing kind %q", kind)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+filingColumns+` FROM filings
		WHERE download_status = 'completed' AND `+flag+` = 0
		ORDER BY filing_date`)
	if err != nil {
		return nil, eris.Wrapf(err, "store: unprocessed %s", kind)
	}
	defer rows.Close()

	var filings []model.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan filing")
		}
		filings = append(filings, *f)
	}
	return filings, eris.Wrap(rows.Err(), "store: unprocessed iterate")
}

// GetFullMarkdown loads a filing's markdown blob.
func (r *FilingRepo) GetFullMarkdown(ctx context.Context, accession string) (string, error) {
	var markdown sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT full_markdown FROM filings WHERE accession_number = ?`, accession,
	).Scan(&markdown)
	if err == sql.ErrNoRows {
		return "", eris.Errorf("store: filing not found: %s", accession)
	}
	if err != nil {
		return "", eris.Wrapf(err, "store: markdown for %s", accession)
	}
	return markdown.String, nil
}

func scanFiling(row scannable) (*model.Filing, error) {
	var f model.Filing
	var filingDate string
	var periodOfReport, acceptance, primaryDoc, primaryDesc, localPath sql.NullString
	var isXBRL, isInline, xbrlDone, sectionsDone int

	err := row.Scan(&f.AccessionNumber, &f.CIK, &f.FormType, &filingDate,
		&periodOfReport, &acceptance, &primaryDoc, &primaryDesc,
		&isXBRL, &isInline, &localPath, &f.DownloadStatus,
		&xbrlDone, &sectionsDone)
	if err != nil {
		return nil, err
	}

	if d := parseDate(sql.NullString{String: filingDate, Valid: true}); d != nil {
		f.FilingDate = *d
	}
	f.PeriodOfReport = parseDate(periodOfReport)
	f.AcceptanceDatetime = parseTime(acceptance)
	f.PrimaryDocument = primaryDoc.String
	f.PrimaryDocDesc = primaryDesc.String
	f.LocalPath = localPath.String
	f.IsXBRL = isXBRL == 1
	f.IsInlineXBRL = isInline == 1
	f.XBRLProcessed = xbrlDone == 1
	f.SectionsProcessed = sectionsDone == 1
	return &f, nil
}
