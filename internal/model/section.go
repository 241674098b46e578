package model

// SectionType identifies a canonical 10-K item, e.g. "item_1a".
type SectionType string

// KnownSectionTypes lists every accepted 10-K item id with its conventional
// title and the part it belongs to.
var KnownSectionTypes = map[SectionType]struct {
	Title string
	Part  string
}{
	"item_1":   {"Business", "Part I"},
	"item_1a":  {"Risk Factors", "Part I"},
	"item_1b":  {"Unresolved Staff Comments", "Part I"},
	"item_1c":  {"Cybersecurity", "Part I"},
	"item_2":   {"Properties", "Part I"},
	"item_3":   {"Legal Proceedings", "Part I"},
	"item_4":   {"Mine Safety Disclosures", "Part I"},
	"item_5":   {"Market for Registrant's Common Equity", "Part II"},
	"item_6":   {"Selected Financial Data", "Part II"},
	"item_7":   {"Management's Discussion and Analysis", "Part II"},
	"item_7a":  {"Quantitative and Qualitative Disclosures About Market Risk", "Part II"},
	"item_8":   {"Financial Statements and Supplementary Data", "Part II"},
	"item_9":   {"Changes in and Disagreements with Accountants", "Part II"},
	"item_9a":  {"Controls and Procedures", "Part II"},
	"item_9b":  {"Other Information", "Part II"},
	"item_9c":  {"Disclosure Regarding Foreign Jurisdictions", "Part II"},
	"item_10":  {"Directors, Executive Officers and Corporate Governance", "Part III"},
	"item_11":  {"Executive Compensation", "Part III"},
	"item_12":  {"Security Ownership", "Part III"},
	"item_13":  {"Certain Relationships and Related Transactions", "Part III"},
	"item_14":  {"Principal Accountant Fees and Services", "Part III"},
	"item_15":  {"Exhibits and Financial Statement Schedules", "Part IV"},
	"item_16":  {"Form 10-K Summary", "Part IV"},
}

// CrossReference is an in-text pointer to another item, note, or table.
type CrossReference struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

// Section is one extracted 10-K item for a filing.
type Section struct {
	AccessionNumber string          `json:"accession_number"`
	SectionType     SectionType     `json:"section_type"`
	Title           string          `json:"title"`
	ContentText     string          `json:"content_text"`
	ContentHTML     string          `json:"content_html,omitempty"`
	ContentMarkdown string          `json:"content_markdown,omitempty"`
	WordCount       int             `json:"word_count"`
	CharCount       int             `json:"char_count"`
	ParagraphCount  int             `json:"paragraph_count"`
	Confidence      float64         `json:"extraction_confidence"`
	Part            string          `json:"part,omitempty"`
	TableCount      int             `json:"table_count"`
	ListCount       int             `json:"list_count"`
	FootnoteCount   int             `json:"footnote_count"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
	HeadingHierarchy []string       `json:"heading_hierarchy,omitempty"`
	QualityScore    float64         `json:"extraction_quality"`
	Issues          []string        `json:"extraction_issues,omitempty"`
}
