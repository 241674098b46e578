package index

import (
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// keywordBatchSize is how many documents are flushed per bleve batch.
const keywordBatchSize = 1000

// KeywordIndex is the full-text index over chunk content and identifying
// fields, filterable by ticker, section item, and filing date.
type KeywordIndex struct {
	idx bleve.Index
}

// OpenKeywordIndex opens the bleve index at path, creating it on first use.
func OpenKeywordIndex(path string) (*KeywordIndex, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &KeywordIndex{idx: idx}, nil
	}
	if !eris.Is(err, bleve.ErrorIndexPathDoesNotExist) && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "index: open keyword index")
	}

	idx, err = bleve.New(path, keywordMapping())
	if err != nil {
		return nil, eris.Wrap(err, "index: create keyword index")
	}
	return &KeywordIndex{idx: idx}, nil
}

func keywordMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("section_title", text)
	doc.AddFieldMappingsAt("company_name", text)
	doc.AddFieldMappingsAt("ticker", exact)
	doc.AddFieldMappingsAt("section_item", exact)
	doc.AddFieldMappingsAt("filing_date", exact)
	doc.AddFieldMappingsAt("accession_number", exact)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	return k.idx.Close()
}

// Add indexes chunks in batches, keyed by chunk_id. Re-adding a chunk_id
// replaces the previous document.
func (k *KeywordIndex) Add(chunks []*model.Chunk) error {
	batch := k.idx.NewBatch()
	for i, c := range chunks {
		doc := map[string]any{
			"content":          c.Text,
			"section_title":    c.SectionTitle,
			"company_name":     c.CompanyName,
			"ticker":           c.Ticker,
			"section_item":     c.SectionItem,
			"filing_date":      c.FilingDate,
			"accession_number": c.AccessionNumber,
			"form_type":        c.FormType,
			"fiscal_year":      c.FiscalYear,
			"chunk_index":      c.ChunkIndex,
			"token_count":      c.TokenCount,
		}
		if err := batch.Index(c.ChunkID, doc); err != nil {
			return eris.Wrapf(err, "index: batch chunk %s", c.ChunkID)
		}
		if (i+1)%keywordBatchSize == 0 {
			if err := k.idx.Batch(batch); err != nil {
				return eris.Wrap(err, "index: flush keyword batch")
			}
			batch = k.idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := k.idx.Batch(batch); err != nil {
			return eris.Wrap(err, "index: flush keyword batch")
		}
	}
	return nil
}

// Search runs a full-text query over content, section_title, company_name,
// and ticker, restricted by the filter.
func (k *KeywordIndex) Search(text string, topK int, filter Filter) ([]Hit, error) {
	fields := []string{"content", "section_title", "company_name", "ticker"}
	match := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		q := bleve.NewMatchQuery(text)
		q.SetField(f)
		match = append(match, q)
	}

	var full query.Query = bleve.NewDisjunctionQuery(match...)
	if conds := filterQueries(filter); len(conds) > 0 {
		conds = append(conds, full)
		full = bleve.NewConjunctionQuery(conds...)
	}

	req := bleve.NewSearchRequestOptions(full, topK, 0, false)
	req.Fields = []string{"*"}

	res, err := k.idx.Search(req)
	if err != nil {
		return nil, eris.Wrap(err, "index: keyword search")
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ChunkID: h.ID,
			Content: fieldString(h.Fields, "content"),
			Score:   h.Score,
			Metadata: Metadata{
				AccessionNumber: fieldString(h.Fields, "accession_number"),
				Ticker:          fieldString(h.Fields, "ticker"),
				CompanyName:     fieldString(h.Fields, "company_name"),
				FilingDate:      fieldString(h.Fields, "filing_date"),
				FormType:        fieldString(h.Fields, "form_type"),
				FiscalYear:      fieldInt(h.Fields, "fiscal_year"),
				SectionItem:     fieldString(h.Fields, "section_item"),
				SectionTitle:    fieldString(h.Fields, "section_title"),
				ChunkIndex:      fieldInt(h.Fields, "chunk_index"),
				TokenCount:      fieldInt(h.Fields, "token_count"),
			},
		})
	}
	return hits, nil
}

// Count reports the number of indexed documents.
func (k *KeywordIndex) Count() (uint64, error) {
	n, err := k.idx.DocCount()
	return n, eris.Wrap(err, "index: keyword doc count")
}

func filterQueries(f Filter) []query.Query {
	var out []query.Query
	if f.Ticker != "" {
		q := bleve.NewTermQuery(f.Ticker)
		q.SetField("ticker")
		out = append(out, q)
	}
	if f.SectionItem != "" {
		q := bleve.NewTermQuery(f.SectionItem)
		q.SetField("section_item")
		out = append(out, q)
	}
	if f.FilingDateFrom != "" || f.FilingDateTo != "" {
		// Empty endpoints are unbounded.
		inclusive := true
		q := bleve.NewTermRangeInclusiveQuery(f.FilingDateFrom, f.FilingDateTo, &inclusive, &inclusive)
		q.SetField("filing_date")
		out = append(out, q)
	}
	return out
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]any, key string) int {
	if v, ok := fields[key].(float64); ok {
		return int(v)
	}
	return 0
}
