package sections

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/config"
	"github.com/sells-group/finloom/internal/model"
)

func testConfig() config.SectionsConfig {
	return config.SectionsConfig{
		MinWordsDefault:    100,
		MaxSectionChars:    500000,
		ShortPenalty:       0.7,
		TruncationPenalty:  0.9,
		CandidacyFraction:  0.1,
		PreserveHTMLTables: true,
	}
}

// filler produces n words of body text.
func filler(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

func sampleFiling() string {
	return `<html><body>
<h2>Item 1. Business</h2>
<p>` + filler(250) + `</p>
<p>We design and sell consumer electronics. See Item 1A for risks.</p>
<h2>Item 1A. Risk Factors</h2>
<p>OPERATIONAL RISKS</p>
<p>` + filler(350) + `</p>
<h2>Part II Item 7. Management's Discussion and Analysis</h2>
<p>Revenue grew this year. See Note 5 for details. Refer to Item 8 for statements.</p>
<p>` + filler(400) + `</p>
<table><tr><td>Revenue</td><td>$383,285</td></tr></table>
</body></html>`
}

func TestDetectHeader(t *testing.T) {
	tests := []struct {
		text  string
		cat   Category
		want  model.SectionType
		title string
	}{
		{"Item 1. Business", CategoryTitle, "item_1", "Business"},
		{"ITEM 1A. RISK FACTORS", CategoryTitle, "item_1a", "RISK FACTORS"},
		{"Part II Item 7 — Management's Discussion", CategoryTitle, "item_7", "Management's Discussion"},
		{"item 9b", CategoryTitle, "item_9b", ""},
		{"Item 99. Unknown", CategoryTitle, "", ""},
		{"The item 1 referenced above was discussed", CategoryTitle, "", ""},
		{strings.Repeat("x ", 150) + "item 1. business", CategoryText, "", ""}, // too long for text
	}
	for _, tt := range tests {
		t.Run(tt.text[:min(len(tt.text), 30)], func(t *testing.T) {
			id, title := detectHeader(Element{Category: tt.cat, Text: tt.text})
			assert.Equal(t, tt.want, id)
			if tt.want != "" {
				assert.Equal(t, tt.title, title)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	e := NewExtractor(testConfig())
	secs, err := e.Extract(sampleFiling(), "0000320193-23-000106")
	require.NoError(t, err)
	require.Len(t, secs, 3)

	byType := map[model.SectionType]model.Section{}
	for _, s := range secs {
		byType[s.SectionType] = s
	}

	item1 := byType["item_1"]
	assert.Equal(t, "Business", item1.Title)
	assert.Equal(t, "Part I", item1.Part)
	assert.Greater(t, item1.WordCount, 250)
	assert.Equal(t, 0.95, item1.Confidence)
	// Cross reference to item 1a picked up.
	require.NotEmpty(t, item1.CrossReferences)
	assert.Equal(t, "item_1a", item1.CrossReferences[0].Target)

	item1a := byType["item_1a"]
	assert.Equal(t, "Part I", item1a.Part)
	assert.Contains(t, item1a.HeadingHierarchy, "OPERATIONAL RISKS")

	item7 := byType["item_7"]
	assert.Equal(t, "Part II", item7.Part)
	assert.Equal(t, 1, item7.TableCount)
	assert.NotEmpty(t, item7.ContentHTML)

	targets := make([]string, 0, len(item7.CrossReferences))
	for _, cr := range item7.CrossReferences {
		targets = append(targets, cr.Target)
	}
	assert.Contains(t, targets, "note_5")
	assert.Contains(t, targets, "item_8")
}

func TestExtract_ShortSectionPenalized(t *testing.T) {
	html := `<html><body>
<h2>Item 3. Legal Proceedings</h2>
<p>` + filler(40) + `</p>
</body></html>`

	e := NewExtractor(testConfig())
	secs, err := e.Extract(html, "acc")
	require.NoError(t, err)
	require.Len(t, secs, 1)

	// 40 words < min 100: confidence penalized, still above candidacy (10).
	assert.InDelta(t, 0.95*0.7, secs[0].Confidence, 1e-9)
	assert.Contains(t, secs[0].Issues, "short_content")
	assert.Contains(t, secs[0].Issues, "very_short_content")
}

func TestExtract_TOCOnlyYieldsNoSections(t *testing.T) {
	// A table of contents repeats every header with near-zero body text.
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range []string{"1", "1A", "7", "8"} {
		b.WriteString("<p><b>Item " + id + ".</b></p>")
	}
	b.WriteString("</body></html>")

	e := NewExtractor(testConfig())
	secs, err := e.Extract(b.String(), "acc")
	require.NoError(t, err)
	assert.Empty(t, secs)
}

func TestExtract_RepeatedHeaderKeepsLargest(t *testing.T) {
	html := `<html><body>
<p><b>Item 1. Business</b></p>
<p>short toc entry</p>
<p><b>Item 1. Business</b></p>
<p>` + filler(300) + `</p>
</body></html>`

	e := NewExtractor(testConfig())
	secs, err := e.Extract(html, "acc")
	require.NoError(t, err)
	require.Len(t, secs, 1)
	assert.Greater(t, secs[0].WordCount, 200)
}

func TestNormalizeContent(t *testing.T) {
	in := "Business overview\n\n\n\n42\n\nApple Inc. | 2023 Form 10-K | 1\n\ncontinued   text  here"
	out := normalizeContent(in)
	assert.NotContains(t, out, "Form 10-K")
	assert.NotContains(t, out, "\n\n\n")
	assert.NotContains(t, out, "  ")
	assert.Contains(t, out, "continued text here")
}

func TestExtractFullMarkdown(t *testing.T) {
	e := NewExtractor(testConfig())
	res, err := e.ExtractFullMarkdown(sampleFiling(), "AAPL", "0000320193-23-000106")
	require.NoError(t, err)

	assert.Contains(t, res.FullMarkdown, "<!-- TICKER: AAPL -->")
	assert.Contains(t, res.FullMarkdown, "<!-- ACCESSION: 0000320193-23-000106 -->")
	assert.Contains(t, res.FullMarkdown, "<!-- SECTION: item_1 -->")
	assert.Contains(t, res.FullMarkdown, "<!-- SECTION: item_1a -->")
	assert.Contains(t, res.FullMarkdown, "<!-- TITLE: Risk Factors -->")
	assert.Len(t, res.SectionsFound, 3)
	assert.Greater(t, res.WordCount, 900)
	assert.Greater(t, res.ExtractionQuality, 0.0)

	// Marker precedes the header line.
	idx := strings.Index(res.FullMarkdown, "<!-- SECTION: item_1a -->")
	require.GreaterOrEqual(t, idx, 0)
	rest := res.FullMarkdown[idx:]
	assert.Less(t, strings.Index(rest, "Risk Factors"), 200)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
