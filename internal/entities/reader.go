package entities

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/pkg/anthropic"
)

// Person is an executive or director extracted from item_10.
type Person struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	StartDate string `json:"start_date,omitempty"`
}

// RiskFactor is one categorized risk extracted from item_1a.
type RiskFactor struct {
	Category    string `json:"category"`
	Severity    int    `json:"severity"`
	Description string `json:"description"`
}

// LLMExtraction holds the structured LLM output for a section. Only the
// field matching the section type is populated.
type LLMExtraction struct {
	People      []Person     `json:"people,omitempty"`
	RiskFactors []RiskFactor `json:"risk_factors,omitempty"`
}

// SectionEntities is the full extraction result for one section.
type SectionEntities struct {
	AccessionNumber string            `json:"accession_number"`
	SectionType     model.SectionType `json:"section_type"`
	TotalEntities   int               `json:"total_entities"`
	EntitiesByType  map[string]int    `json:"entities_by_type"`
	RawEntities     []Entity          `json:"raw_entities"`
	LLM             *LLMExtraction    `json:"llm_extraction,omitempty"`
}

// llmSections maps section types eligible for the LLM phase to the prompt
// used for them.
var llmSections = map[model.SectionType]string{
	"item_10": `Extract every executive officer and director named in the text below.
Respond with JSON only, in this exact shape:
{"people": [{"name": "...", "role": "...", "start_date": "YYYY-MM-DD"}]}
Omit start_date when the text does not give one. Text:

`,
	"item_1a": `Extract the distinct risk factors from the text below. Assign each a
category (e.g. market, regulatory, operational, cybersecurity, supply_chain)
and a severity from 1 (minor) to 5 (existential). Respond with JSON only:
{"risk_factors": [{"category": "...", "severity": 3, "description": "..."}]}
Text:

`,
}

// maxLLMInputChars bounds how much section text is sent to the model.
const maxLLMInputChars = 50_000

// Reader extracts entities from filing sections. When llm is nil only the
// pattern phase runs.
type Reader struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
	sem       *semaphore.Weighted
}

// NewReader builds a Reader. concurrency bounds in-flight LLM calls.
func NewReader(llm anthropic.Client, llmModel string, maxTokens int64, concurrency int64) *Reader {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Reader{
		llm:       llm,
		model:     llmModel,
		maxTokens: maxTokens,
		sem:       semaphore.NewWeighted(concurrency),
	}
}

// Extract runs the pattern phase over one section, plus the LLM phase for
// eligible section types. LLM failures degrade to pattern-only results.
func (r *Reader) Extract(ctx context.Context, sec *model.Section) (*SectionEntities, error) {
	raw := ExtractPatternEntities(sec.ContentText)

	byType := make(map[string]int)
	for _, e := range raw {
		byType[e.Type]++
	}

	result := &SectionEntities{
		AccessionNumber: sec.AccessionNumber,
		SectionType:     sec.SectionType,
		TotalEntities:   len(raw),
		EntitiesByType:  byType,
		RawEntities:     raw,
	}

	prompt, eligible := llmSections[sec.SectionType]
	if r.llm == nil || !eligible {
		return result, nil
	}

	extraction, err := r.extractLLM(ctx, prompt, sec.ContentText)
	if err != nil {
		zap.L().Warn("llm entity extraction failed",
			zap.String("accession_number", sec.AccessionNumber),
			zap.String("section_type", string(sec.SectionType)),
			zap.Error(err))
		return result, nil
	}
	result.LLM = extraction
	return result, nil
}

func (r *Reader) extractLLM(ctx context.Context, prompt, text string) (*LLMExtraction, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "entities: acquire llm slot")
	}
	defer r.sem.Release(1)

	if len(text) > maxLLMInputChars {
		text = text[:maxLLMInputChars]
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt + text},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "entities: llm call")
	}
	resp.Usage.LogCost(r.model, "entity_extraction")

	var extraction LLMExtraction
	if err := anthropic.ExtractJSON(resp.Text(), &extraction); err != nil {
		return nil, eris.Wrap(err, "entities: parse llm reply")
	}
	for i, rf := range extraction.RiskFactors {
		if rf.Severity < 1 {
			extraction.RiskFactors[i].Severity = 1
		} else if rf.Severity > 5 {
			extraction.RiskFactors[i].Severity = 5
		}
	}
	return &extraction, nil
}

// ExtractAll processes sections concurrently and returns results in input
// order. Per-section failures are logged and skipped.
func (r *Reader) ExtractAll(ctx context.Context, sections []*model.Section) []*SectionEntities {
	results := make([]*SectionEntities, len(sections))
	var wg sync.WaitGroup
	for i, sec := range sections {
		wg.Add(1)
		go func(i int, sec *model.Section) {
			defer wg.Done()
			res, err := r.Extract(ctx, sec)
			if err != nil {
				zap.L().Warn("entity extraction failed",
					zap.String("section", fmt.Sprintf("%s/%s", sec.AccessionNumber, sec.SectionType)),
					zap.Error(err))
				return
			}
			results[i] = res
		}(i, sec)
	}
	wg.Wait()

	out := results[:0]
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}
