// Package index maintains the vector and keyword indexes over chunks and
// serves filtered similarity and full-text queries.
package index

import (
	"fmt"

	"github.com/sells-group/finloom/internal/model"
)

// Hit is a uniform search result across the vector and keyword indexes.
type Hit struct {
	ChunkID  string   `json:"chunk_id"`
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Metadata is the chunk payload carried on every hit.
type Metadata struct {
	AccessionNumber string `json:"accession_number"`
	Ticker          string `json:"ticker"`
	CompanyName     string `json:"company_name"`
	FilingDate      string `json:"filing_date"`
	FormType        string `json:"form_type"`
	FiscalYear      int    `json:"fiscal_year"`
	SectionItem     string `json:"section_item"`
	SectionTitle    string `json:"section_title"`
	ChunkIndex      int    `json:"chunk_index"`
	TokenCount      int    `json:"token_count"`
	ContainsTables  bool   `json:"contains_tables"`
	ContainsLists   bool   `json:"contains_lists"`
	ContainsNumbers bool   `json:"contains_numbers"`
}

// Filter narrows a search. Zero-value fields are ignored.
type Filter struct {
	Ticker         string
	SectionItem    string
	FilingDateFrom string // inclusive, YYYY-MM-DD
	FilingDateTo   string // inclusive, YYYY-MM-DD
}

// contextPrefix is the short provenance line indexed ahead of chunk content.
func contextPrefix(c *model.Chunk) string {
	return fmt.Sprintf("%s (%s) %s FY%d | %s", c.CompanyName, c.Ticker, c.FormType, c.FiscalYear, c.SectionTitle)
}

func metadataFromChunk(c *model.Chunk) Metadata {
	return Metadata{
		AccessionNumber: c.AccessionNumber,
		Ticker:          c.Ticker,
		CompanyName:     c.CompanyName,
		FilingDate:      c.FilingDate,
		FormType:        c.FormType,
		FiscalYear:      c.FiscalYear,
		SectionItem:     c.SectionItem,
		SectionTitle:    c.SectionTitle,
		ChunkIndex:      c.ChunkIndex,
		TokenCount:      c.TokenCount,
		ContainsTables:  c.ContainsTables,
		ContainsLists:   c.ContainsLists,
		ContainsNumbers: c.ContainsNumbers,
	}
}
