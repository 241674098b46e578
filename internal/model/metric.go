package model

import "time"

// StandardizedMetric is one entry in the canonical metric taxonomy.
type StandardizedMetric struct {
	MetricID    string `json:"metric_id"`
	Label       string `json:"label"`
	Category    string `json:"category"`
	DataType    string `json:"data_type"`
	Description string `json:"description,omitempty"`
	Calculation string `json:"calculation,omitempty"`
}

// ConceptMapping maps a reporter concept onto a canonical metric. Lower
// priority numbers are preferred when several concepts are present.
type ConceptMapping struct {
	MetricID       string  `json:"metric_id"`
	ConceptName    string  `json:"concept_name"`
	Priority       int     `json:"priority"`
	Confidence     float64 `json:"confidence"`
	IndustryFilter string  `json:"industry_filter,omitempty"`
}

// NormalizedFinancial is one canonical metric value for a company period.
// At most one row exists per (ticker, fiscal_year, fiscal_quarter, metric).
type NormalizedFinancial struct {
	ID              int64     `json:"id,omitempty"`
	CompanyTicker   string    `json:"company_ticker"`
	FiscalYear      int       `json:"fiscal_year"`
	FiscalQuarter   *int      `json:"fiscal_quarter,omitempty"`
	MetricID        string    `json:"metric_id"`
	Value           float64   `json:"value"`
	SourceConcept   string    `json:"source_concept"`
	SourceAccession string    `json:"source_accession"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}
