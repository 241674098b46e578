package model

// Chunk is a retrievable passage produced by the chunker. Chunk ids are
// stable across rebuilds: {accession}_{section_item}_{chunk_index}.
type Chunk struct {
	ChunkID         string    `json:"chunk_id"`
	AccessionNumber string    `json:"accession_number"`
	SectionItem     string    `json:"section_item"`
	SectionTitle    string    `json:"section_title"`
	ChunkIndex      int       `json:"chunk_index"`
	TokenCount      int       `json:"token_count"`
	CharStart       int       `json:"char_start"`
	CharEnd         int       `json:"char_end"`
	Text            string    `json:"text"`
	ContainsTables  bool      `json:"contains_tables"`
	ContainsLists   bool      `json:"contains_lists"`
	ContainsNumbers bool      `json:"contains_numbers"`
	Embedding       []float32 `json:"-"`

	// Denormalized filing context carried into index payloads.
	Ticker      string `json:"ticker,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	FilingDate  string `json:"filing_date,omitempty"`
	FormType    string `json:"form_type,omitempty"`
	FiscalYear  int    `json:"fiscal_year,omitempty"`
}

// Preview returns the first n characters of the chunk text, used as the
// lightweight payload carried on passage-graph nodes.
func (c Chunk) Preview(n int) string {
	runes := []rune(c.Text)
	if len(runes) <= n {
		return c.Text
	}
	return string(runes[:n])
}
