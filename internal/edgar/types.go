package edgar

import (
	"fmt"
	"time"
)

// Submissions is the archive's per-CIK submissions payload. Recent filings
// arrive as parallel arrays keyed by index.
type Submissions struct {
	CIK             string   `json:"cik"`
	Name            string   `json:"name"`
	Tickers         []string `json:"tickers"`
	Exchanges       []string `json:"exchanges"`
	SIC             string   `json:"sic"`
	SICDescription  string   `json:"sicDescription"`
	StateOfInc      string   `json:"stateOfIncorporation"`
	FiscalYearEnd   string   `json:"fiscalYearEnd"`
	EIN             string   `json:"ein"`
	Filings         filings  `json:"filings"`
}

type filings struct {
	Recent FilingIndex  `json:"recent"`
	Files  []ShardFile  `json:"files"`
}

// FilingIndex holds the parallel filing arrays from the submissions endpoint.
type FilingIndex struct {
	AccessionNumber    []string `json:"accessionNumber"`
	Form               []string `json:"form"`
	FilingDate         []string `json:"filingDate"`
	ReportDate         []string `json:"reportDate"`
	AcceptanceDateTime []string `json:"acceptanceDateTime"`
	PrimaryDocument    []string `json:"primaryDocument"`
	PrimaryDocDesc     []string `json:"primaryDocDescription"`
	IsXBRL             []int    `json:"isXBRL"`
	IsInlineXBRL       []int    `json:"isInlineXBRL"`
}

// Len returns the number of entries in the index.
func (fi FilingIndex) Len() int { return len(fi.AccessionNumber) }

// ShardFile describes one older-filings shard for long-history companies.
type ShardFile struct {
	Name     string `json:"name"`
	Count    int    `json:"filingCount"`
	FromDate string `json:"filingFrom"`
	ToDate   string `json:"filingTo"`
}

// FilingDescriptor is a flattened filing entry from the submissions index.
type FilingDescriptor struct {
	AccessionNumber    string
	FormType           string
	FilingDate         time.Time
	ReportDate         *time.Time
	AcceptanceDatetime *time.Time
	PrimaryDocument    string
	PrimaryDocDesc     string
	IsXBRL             bool
	IsInlineXBRL       bool
}

// DirectoryListing is the per-filing index.json payload.
type DirectoryListing struct {
	Directory struct {
		Items []DirectoryItem `json:"item"`
		Name  string          `json:"name"`
	} `json:"directory"`
}

// DirectoryItem is one file in a filing directory.
type DirectoryItem struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         string `json:"size"`
	LastModified string `json:"last-modified"`
}

// APIError is a non-retryable archive response failure.
type APIError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("edgar: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
}

// RateLimitError indicates the archive refused the request with a 429.
type RateLimitError struct {
	URL        string
	RetryAfter *time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("edgar: rate limited on %s", e.URL)
}

// DownloadError indicates a document fetch failed after retries.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("edgar: download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
