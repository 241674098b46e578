package model

import (
	"regexp"
	"strings"
	"time"
)

// DownloadStatus tracks a filing's download lifecycle.
type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadCompleted DownloadStatus = "completed"
	DownloadFailed    DownloadStatus = "failed"
)

// Filing is one archive filing, keyed by accession number.
type Filing struct {
	AccessionNumber    string         `json:"accession_number"`
	CIK                string         `json:"cik"`
	FormType           string         `json:"form_type"`
	FilingDate         time.Time      `json:"filing_date"`
	PeriodOfReport     *time.Time     `json:"period_of_report,omitempty"`
	AcceptanceDatetime *time.Time     `json:"acceptance_datetime,omitempty"`
	PrimaryDocument    string         `json:"primary_document"`
	PrimaryDocDesc     string         `json:"primary_doc_description,omitempty"`
	IsXBRL             bool           `json:"is_xbrl"`
	IsInlineXBRL       bool           `json:"is_inline_xbrl"`
	LocalPath          string         `json:"local_path,omitempty"`
	DownloadStatus     DownloadStatus `json:"download_status"`
	XBRLProcessed      bool           `json:"xbrl_processed"`
	SectionsProcessed  bool           `json:"sections_processed"`
	FullMarkdown       string         `json:"-"`
}

// IsAmendment reports whether the form type is an amendment (e.g. 10-K/A).
// Amendments supersede originals for the same fiscal period.
func (f Filing) IsAmendment() bool {
	return strings.HasSuffix(f.FormType, "/A")
}

// FormClass strips the amendment suffix, so 10-K/A and 10-K share a class.
func (f Filing) FormClass() string {
	return strings.TrimSuffix(f.FormType, "/A")
}

var accessionRe = regexp.MustCompile(`^\d{10}-\d{2}-\d{6}$`)

// ValidAccession reports whether s matches the NNNNNNNNNN-YY-NNNNNN pattern.
func ValidAccession(s string) bool {
	return accessionRe.MatchString(s)
}

// AccessionNoDashes strips dashes, as used in archive paths and local layout.
func AccessionNoDashes(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}

// FilingDocument is one entry in a filing's directory listing.
type FilingDocument struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// FilingMetadata is the metadata.json payload written next to each
// downloaded filing's document set.
type FilingMetadata struct {
	AccessionNumber    string           `json:"accession_number"`
	CIK                string           `json:"cik"`
	FormType           string           `json:"form_type"`
	FilingDate         string           `json:"filing_date"`
	PrimaryDocument    string           `json:"primary_document"`
	PrimaryDocDesc     string           `json:"primary_doc_description,omitempty"`
	IsXBRL             bool             `json:"is_xbrl"`
	IsInlineXBRL       bool             `json:"is_inline_xbrl"`
	Documents          []FilingDocument `json:"documents"`
	DownloadTimestamp  string           `json:"download_timestamp"`
	AcceptanceDatetime string           `json:"acceptance_datetime,omitempty"`
}
