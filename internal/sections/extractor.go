package sections

import (
	"regexp"
	"strings"

	"github.com/sells-group/finloom/internal/config"
	"github.com/sells-group/finloom/internal/model"
)

// headerRe matches a canonical item header, optionally prefixed by a part
// designation. Group 1 is the item number, group 2 the residual title.
var headerRe = regexp.MustCompile(`(?i)^\s*(?:part\s+[IVX]+\s*[-—–]?\s*)?item\s+(\d+[A-Ca-c]?)\.?\s*[-—–]?\s*(.*)$`)

// minWordsBySection overrides the default minimum word count for sections
// that are conventionally long or allowed to be near-empty.
var minWordsBySection = map[model.SectionType]int{
	"item_1":  200,
	"item_1a": 300,
	"item_7":  300,
	"item_8":  200,
	"item_1b": 10,
	"item_4":  10,
	"item_6":  10,
	"item_9":  10,
	"item_9b": 10,
	"item_9c": 10,
	"item_16": 10,
}

var (
	footnoteRe   = regexp.MustCompile(`[\*†‡§¶]|\(\d+\)|\[\d+\]`)
	pageNumberRe = regexp.MustCompile(`(?m)^\s*\d{1,4}\s*$\n?`)
	formHeaderRe = regexp.MustCompile(`(?mi)^.*form\s+10-k.*$\n?`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
)

// Extractor detects and scores 10-K sections in filing HTML.
type Extractor struct {
	cfg config.SectionsConfig
}

// NewExtractor builds an extractor with the given thresholds.
func NewExtractor(cfg config.SectionsConfig) *Extractor {
	if cfg.MinWordsDefault == 0 {
		cfg.MinWordsDefault = 100
	}
	if cfg.MaxSectionChars == 0 {
		cfg.MaxSectionChars = 500000
	}
	if cfg.ShortPenalty == 0 {
		cfg.ShortPenalty = 0.7
	}
	if cfg.TruncationPenalty == 0 {
		cfg.TruncationPenalty = 0.9
	}
	if cfg.CandidacyFraction == 0 {
		cfg.CandidacyFraction = 0.1
	}
	return &Extractor{cfg: cfg}
}

// detectHeader returns the section id and residual title when an element is
// an item header, or "" otherwise.
func detectHeader(el Element) (model.SectionType, string) {
	if el.Category != CategoryTitle &&
		!(el.Category == CategoryText && len(el.Text) <= 200) {
		return "", ""
	}
	m := headerRe.FindStringSubmatch(strings.TrimSpace(el.Text))
	if m == nil {
		return "", ""
	}
	id := model.SectionType("item_" + strings.ToLower(m[1]))
	if _, known := model.KnownSectionTypes[id]; !known {
		return "", ""
	}
	return id, strings.TrimSpace(m[2])
}

// group is a run of elements from one detected header to the next.
type group struct {
	id       model.SectionType
	title    string
	elements []Element
}

func (g *group) textLen() int {
	n := 0
	for _, el := range g.elements {
		n += len(el.Text)
	}
	return n
}

// groupElements splits the element sequence at headers. When a section id
// repeats (tables of contents, running headers), the group with the most
// text wins.
func groupElements(elements []Element) []*group {
	var ordered []*group
	byID := map[model.SectionType]*group{}
	var current *group

	for _, el := range elements {
		if id, title := detectHeader(el); id != "" {
			g := &group{id: id, title: title, elements: []Element{el}}
			ordered = append(ordered, g)
			current = g
			continue
		}
		if current != nil {
			current.elements = append(current.elements, el)
		}
	}

	// Keep the largest group per id, preserving first-winner order.
	var result []*group
	for _, g := range ordered {
		best, seen := byID[g.id]
		if !seen {
			byID[g.id] = g
			result = append(result, g)
			continue
		}
		if g.textLen() > best.textLen() {
			*best = *g
		}
	}
	return result
}

// Extract partitions the HTML and returns accepted sections for a filing.
func (e *Extractor) Extract(html, accession string) ([]model.Section, error) {
	elements, err := Partition(html)
	if err != nil {
		return nil, err
	}

	var sections []model.Section
	for _, g := range groupElements(elements) {
		if sec, ok := e.buildSection(g, accession); ok {
			sections = append(sections, sec)
		}
	}
	return sections, nil
}

func (e *Extractor) buildSection(g *group, accession string) (model.Section, bool) {
	meta := model.KnownSectionTypes[g.id]
	minWords := e.minWords(g.id)

	var parts []string
	var htmlParts []string
	tableCount, listCount := 0, 0
	for _, el := range g.elements {
		if el.Text != "" {
			parts = append(parts, el.Text)
		}
		switch el.Category {
		case CategoryTable:
			tableCount++
			if e.cfg.PreserveHTMLTables {
				htmlParts = append(htmlParts, el.HTML)
			}
		case CategoryListItem:
			listCount++
		}
	}

	content := normalizeContent(strings.Join(parts, "\n\n"))
	truncated := false
	if len(content) > e.cfg.MaxSectionChars {
		content = content[:e.cfg.MaxSectionChars]
		truncated = true
	}

	wordCount := len(strings.Fields(content))
	if float64(wordCount) <= e.cfg.CandidacyFraction*float64(minWords) {
		return model.Section{}, false
	}

	title := g.title
	if title == "" {
		title = meta.Title
	}

	crossRefs := extractCrossReferences(content)

	sec := model.Section{
		AccessionNumber:  accession,
		SectionType:      g.id,
		Title:            title,
		ContentText:      content,
		ContentHTML:      strings.Join(htmlParts, "\n"),
		ContentMarkdown:  renderMarkdown(g.elements),
		WordCount:        wordCount,
		CharCount:        len(content),
		ParagraphCount:   len(parts),
		Part:             meta.Part,
		TableCount:       tableCount,
		ListCount:        listCount,
		FootnoteCount:    len(footnoteRe.FindAllString(content, -1)),
		CrossReferences:  crossRefs,
		HeadingHierarchy: headingHierarchy(content),
	}

	sec.Confidence = 0.95
	if wordCount < minWords {
		sec.Confidence *= e.cfg.ShortPenalty
		sec.Issues = append(sec.Issues, "short_content")
	}
	if truncated {
		sec.Confidence *= e.cfg.TruncationPenalty
		sec.Issues = append(sec.Issues, "truncated")
	}

	sec.QualityScore = 0.90
	if float64(wordCount) < 0.5*float64(minWords) {
		sec.QualityScore *= e.cfg.ShortPenalty
		sec.Issues = append(sec.Issues, "very_short_content")
	}
	if (g.id == "item_7" || g.id == "item_8") && len(crossRefs) == 0 {
		sec.QualityScore *= 0.9
		sec.Issues = append(sec.Issues, "no_cross_references")
	}

	return sec, true
}

func (e *Extractor) minWords(id model.SectionType) int {
	if mw, ok := minWordsBySection[id]; ok {
		return mw
	}
	return e.cfg.MinWordsDefault
}

// normalizeContent collapses whitespace, drops page-number-only lines and
// running form headers.
func normalizeContent(s string) string {
	s = pageNumberRe.ReplaceAllString(s, "")
	s = formHeaderRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// cross-reference patterns, matched in declaration order.
var crossRefPatterns = []struct {
	re     *regexp.Regexp
	prefix string
}{
	{regexp.MustCompile(`(?i)see\s+item\s+(\d+[A-Ca-c]?)`), "item_"},
	{regexp.MustCompile(`(?i)refer\s+to\s+item\s+(\d+[A-Ca-c]?)`), "item_"},
	{regexp.MustCompile(`(?i)see\s+note\s+(\d+)`), "note_"},
	{regexp.MustCompile(`(?i)see\s+part\s+([IVXivx]+)`), "part_"},
	{regexp.MustCompile(`(?i)see\s+table\s+(\d+)`), "table_"},
}

// extractCrossReferences finds in-text pointers, deduplicated in order of
// first occurrence.
func extractCrossReferences(content string) []model.CrossReference {
	var refs []model.CrossReference
	seen := map[string]bool{}
	for _, p := range crossRefPatterns {
		for _, m := range p.re.FindAllStringSubmatch(content, -1) {
			target := p.prefix + strings.ToLower(m[1])
			if seen[target] {
				continue
			}
			seen[target] = true
			refs = append(refs, model.CrossReference{Target: target, Text: m[0]})
		}
	}
	return refs
}

// headingHierarchy keeps the first ten heading-like lines: 5-100 chars, no
// sentence-final punctuation, and uppercase, title-case, or colon-ended.
func headingHierarchy(content string) []string {
	var headings []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 5 || len(line) > 100 {
			continue
		}
		if strings.ContainsAny(string(line[len(line)-1]), ".,;") {
			continue
		}
		if !isHeadingCase(line) {
			continue
		}
		headings = append(headings, line)
		if len(headings) == 10 {
			break
		}
	}
	return headings
}

func isHeadingCase(line string) bool {
	if strings.HasSuffix(line, ":") {
		return true
	}
	if line == strings.ToUpper(line) && line != strings.ToLower(line) {
		return true
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return false
	}
	upper := 0
	for _, w := range words {
		r := []rune(w)[0]
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	return float64(upper) >= 0.8*float64(len(words))
}
