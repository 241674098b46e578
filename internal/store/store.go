// Package store is the embedded analytical store behind repository facades.
// Consumers never see raw SQL.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store owns the database handle and exposes grouped repositories.
type Store struct {
	db *sql.DB

	Companies     *CompanyRepo
	Filings       *FilingRepo
	Facts         *FactRepo
	Concepts      *ConceptRepo
	Sections      *SectionRepo
	Analytics     *AnalyticsRepo
	Normalization *NormalizationRepo
}

// Open opens (or creates) the database, enables WAL, and runs the idempotent
// schema migration.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}

	s := &Store{db: db}
	s.Companies = &CompanyRepo{db: db}
	s.Filings = &FilingRepo{db: db}
	s.Facts = &FactRepo{db: db}
	s.Concepts = &ConceptRepo{db: db}
	s.Sections = &SectionRepo{db: db}
	s.Analytics = &AnalyticsRepo{db: db}
	s.Normalization = &NormalizationRepo{db: db}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS companies (
	cik                    TEXT PRIMARY KEY,
	ticker                 TEXT NOT NULL,
	name                   TEXT NOT NULL,
	sic                    TEXT,
	sic_description        TEXT,
	state_of_incorporation TEXT,
	fiscal_year_end        TEXT,
	ein                    TEXT,
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS filings (
	accession_number    TEXT PRIMARY KEY,
	cik                 TEXT NOT NULL REFERENCES companies(cik),
	form_type           TEXT NOT NULL,
	filing_date         TEXT NOT NULL,
	period_of_report    TEXT,
	acceptance_datetime TEXT,
	primary_document    TEXT,
	primary_doc_desc    TEXT,
	is_xbrl             INTEGER NOT NULL DEFAULT 0,
	is_inline_xbrl      INTEGER NOT NULL DEFAULT 0,
	local_path          TEXT,
	download_status     TEXT NOT NULL DEFAULT 'pending',
	xbrl_processed      INTEGER NOT NULL DEFAULT 0,
	sections_processed  INTEGER NOT NULL DEFAULT 0,
	full_markdown       TEXT
);

CREATE TABLE IF NOT EXISTS facts (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	accession_number TEXT NOT NULL REFERENCES filings(accession_number),
	namespace        TEXT,
	concept_name     TEXT NOT NULL,
	qualified_name   TEXT NOT NULL,
	value_numeric    REAL,
	value_text       TEXT,
	unit             TEXT,
	decimals         TEXT,
	period_type      TEXT,
	period_start     TEXT,
	period_end       TEXT,
	dimensions       TEXT,
	is_custom        INTEGER NOT NULL DEFAULT 0,
	section          TEXT,
	parent_concept   TEXT,
	depth            INTEGER NOT NULL DEFAULT 0,
	label            TEXT
);

CREATE TABLE IF NOT EXISTS concept_categories (
	concept_name   TEXT PRIMARY KEY,
	section        TEXT,
	parent_concept TEXT,
	depth          INTEGER NOT NULL DEFAULT 0,
	label          TEXT,
	data_type      TEXT
);

CREATE TABLE IF NOT EXISTS sections (
	accession_number  TEXT NOT NULL REFERENCES filings(accession_number),
	section_type      TEXT NOT NULL,
	title             TEXT,
	content_text      TEXT,
	content_html      TEXT,
	content_markdown  TEXT,
	word_count        INTEGER NOT NULL DEFAULT 0,
	char_count        INTEGER NOT NULL DEFAULT 0,
	paragraph_count   INTEGER NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0,
	part              TEXT,
	table_count       INTEGER NOT NULL DEFAULT 0,
	list_count        INTEGER NOT NULL DEFAULT 0,
	footnote_count    INTEGER NOT NULL DEFAULT 0,
	cross_references  TEXT,
	heading_hierarchy TEXT,
	quality_score     REAL NOT NULL DEFAULT 0,
	issues            TEXT,
	PRIMARY KEY (accession_number, section_type)
);

CREATE TABLE IF NOT EXISTS processing_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	stage            TEXT NOT NULL,
	status           TEXT NOT NULL,
	cik              TEXT,
	accession_number TEXT,
	duration_ms      INTEGER,
	message          TEXT,
	context_json     TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS standardized_metrics (
	metric_id   TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	category    TEXT,
	data_type   TEXT,
	description TEXT,
	calculation TEXT
);

CREATE TABLE IF NOT EXISTS concept_mappings (
	metric_id       TEXT NOT NULL REFERENCES standardized_metrics(metric_id),
	concept_name    TEXT NOT NULL,
	priority        INTEGER NOT NULL,
	confidence      REAL NOT NULL,
	industry_filter TEXT,
	PRIMARY KEY (metric_id, concept_name)
);

CREATE TABLE IF NOT EXISTS normalized_financials (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_ticker   TEXT NOT NULL,
	fiscal_year      INTEGER NOT NULL,
	fiscal_quarter   INTEGER NOT NULL DEFAULT 0,
	metric_id        TEXT NOT NULL,
	value            REAL NOT NULL,
	source_concept   TEXT,
	source_accession TEXT,
	confidence       REAL NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_filings_cik ON filings(cik, form_type, filing_date);
CREATE INDEX IF NOT EXISTS idx_facts_accession ON facts(accession_number, qualified_name);
CREATE INDEX IF NOT EXISTS idx_facts_concept ON facts(qualified_name, period_end);
CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_dedup
	ON facts(accession_number, qualified_name, COALESCE(period_end, ''), COALESCE(dimensions, ''));
CREATE UNIQUE INDEX IF NOT EXISTS idx_normalized_unique
	ON normalized_financials(company_ticker, fiscal_year, fiscal_quarter, metric_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_stage ON processing_log(stage, status);
CREATE INDEX IF NOT EXISTS idx_sections_accession ON sections(accession_number);
`

// Migrate applies the schema. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for read-only analytics; writes go through repos.
func (s *Store) DB() *sql.DB {
	return s.db
}

// date and datetime codecs shared by the repos. Dates are stored as
// YYYY-MM-DD text, timestamps as RFC3339 UTC.

func fmtDate(t time.Time) string { return t.Format("2006-01-02") }

func fmtDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtDate(*t)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	if d, err := time.Parse("2006-01-02", s.String); err == nil {
		return &d
	}
	return nil
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s.String); err == nil {
		return &t
	}
	return parseDate(s)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}
