package entities

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/pkg/anthropic"
)

func entityTexts(entities []Entity, entityType string) []string {
	var out []string
	for _, e := range entities {
		if e.Type == entityType {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestExtractPatternEntities_Money(t *testing.T) {
	text := "Net sales were $383.3 billion in fiscal 2023, up from $394,328 in the prior year."
	got := entityTexts(ExtractPatternEntities(text), "MONEY")
	assert.Contains(t, got, "$383.3 billion")
	assert.Contains(t, got, "$394,328")
}

func TestExtractPatternEntities_Dates(t *testing.T) {
	text := "The fiscal year ended September 30, 2023. The prior period ended 2022-09-24. Dividends are paid quarterly."
	got := entityTexts(ExtractPatternEntities(text), "DATE")
	assert.Contains(t, got, "September 30, 2023")
	assert.Contains(t, got, "2022-09-24")
	assert.NotContains(t, got, "quarterly")
}

func TestExtractPatternEntities_YearBounds(t *testing.T) {
	got := entityTexts(ExtractPatternEntities("Founded in 1976, projections through 2030."), "DATE")
	assert.Contains(t, got, "1976")
	assert.Contains(t, got, "2030")
}

func TestExtractPatternEntities_PersonAndOrg(t *testing.T) {
	text := "Mr. Timothy D. Cook serves as Chief Executive Officer of Apple Inc. and previously worked at Compaq Computer Corporation."
	entities := ExtractPatternEntities(text)
	assert.Contains(t, entityTexts(entities, "PERSON"), "Mr. Timothy D. Cook")
	orgs := entityTexts(entities, "ORG")
	require.NotEmpty(t, orgs)
	assert.Contains(t, orgs[0], "Apple Inc")
}

func TestExtractPatternEntities_MetricAndRisk(t *testing.T) {
	text := "Gross margin improved while net income declined. We face foreign currency risk and supply chain disruption."
	entities := ExtractPatternEntities(text)
	metrics := entityTexts(entities, "METRIC")
	assert.Contains(t, metrics, "Gross margin")
	assert.Contains(t, metrics, "net income")
	risks := entityTexts(entities, "RISK")
	assert.Contains(t, risks, "foreign currency risk")
	assert.Contains(t, risks, "supply chain disruption")
}

func TestExtractPatternEntities_CardinalNoise(t *testing.T) {
	text := "Call (408) 996-1010 or visit Cupertino 95014. See page 42. Headcount grew to 164,000 employees, a gain of 12%."
	got := entityTexts(ExtractPatternEntities(text), "CARDINAL")
	assert.NotContains(t, got, "95014")
	assert.NotContains(t, got, "42")
	assert.Contains(t, got, "164,000")
	assert.Contains(t, got, "12%")
}

func TestExtractPatternEntities_CardinalDigitsOnly(t *testing.T) {
	// Cardinal spans are digit-led; Roman numerals in headers never match.
	text := "Part II, Item VII. Headcount reached 164,000."
	got := entityTexts(ExtractPatternEntities(text), "CARDINAL")
	assert.NotContains(t, got, "II")
	assert.NotContains(t, got, "VII")
	assert.Contains(t, got, "164,000")
}

// fakeLLM returns a canned reply, or an error when reply is empty.
type fakeLLM struct {
	reply string
	calls int
}

func (f *fakeLLM) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.reply == "" {
		return nil, eris.New("overloaded")
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
	}, nil
}

func TestExtract_LLMExecutives(t *testing.T) {
	llm := &fakeLLM{reply: `{"people": [{"name": "Timothy D. Cook", "role": "Chief Executive Officer", "start_date": "2011-08-24"}]}`}
	r := NewReader(llm, "claude-haiku-4-5-20251001", 4096, 4)

	sec := &model.Section{
		AccessionNumber: "0000320193-23-000106",
		SectionType:     "item_10",
		ContentText:     "Mr. Timothy D. Cook has served as Chief Executive Officer since 2011.",
	}
	res, err := r.Extract(context.Background(), sec)
	require.NoError(t, err)
	require.NotNil(t, res.LLM)
	require.Len(t, res.LLM.People, 1)
	assert.Equal(t, "Timothy D. Cook", res.LLM.People[0].Name)
	assert.Equal(t, "2011-08-24", res.LLM.People[0].StartDate)
	assert.Positive(t, res.TotalEntities)
}

func TestExtract_LLMRiskSeverityClamped(t *testing.T) {
	llm := &fakeLLM{reply: `{"risk_factors": [{"category": "market", "severity": 9, "description": "demand swings"}]}`}
	r := NewReader(llm, "claude-haiku-4-5-20251001", 4096, 4)

	res, err := r.Extract(context.Background(), &model.Section{
		SectionType: "item_1a",
		ContentText: "We face significant market risk.",
	})
	require.NoError(t, err)
	require.NotNil(t, res.LLM)
	require.Len(t, res.LLM.RiskFactors, 1)
	assert.Equal(t, 5, res.LLM.RiskFactors[0].Severity)
}

func TestExtract_LLMFailureDegradesToPatterns(t *testing.T) {
	llm := &fakeLLM{}
	r := NewReader(llm, "claude-haiku-4-5-20251001", 4096, 4)

	res, err := r.Extract(context.Background(), &model.Section{
		SectionType: "item_1a",
		ContentText: "Interest rate risk could reduce net income by $1.2 billion.",
	})
	require.NoError(t, err)
	assert.Nil(t, res.LLM)
	assert.Positive(t, res.TotalEntities)
	assert.Equal(t, 1, llm.calls)
}

func TestExtract_NonEligibleSectionSkipsLLM(t *testing.T) {
	llm := &fakeLLM{reply: `{"people": []}`}
	r := NewReader(llm, "claude-haiku-4-5-20251001", 4096, 4)

	res, err := r.Extract(context.Background(), &model.Section{
		SectionType: "item_7",
		ContentText: "Revenue grew.",
	})
	require.NoError(t, err)
	assert.Nil(t, res.LLM)
	assert.Zero(t, llm.calls)
}

func TestExtractAll_Ordered(t *testing.T) {
	r := NewReader(nil, "", 0, 2)
	sections := []*model.Section{
		{SectionType: "item_1", ContentText: "Apple Inc. designs products."},
		{SectionType: "item_7", ContentText: "Net sales were $383.3 billion."},
	}
	results := r.ExtractAll(context.Background(), sections)
	require.Len(t, results, 2)
	assert.Equal(t, model.SectionType("item_1"), results[0].SectionType)
	assert.Equal(t, model.SectionType("item_7"), results[1].SectionType)
}
