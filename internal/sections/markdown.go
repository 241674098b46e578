package sections

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
)

// FullMarkdownResult is the whole-document rendering with section markers.
type FullMarkdownResult struct {
	FullMarkdown      string              `json:"full_markdown"`
	SectionsFound     []model.SectionType `json:"sections_found"`
	WordCount         int                 `json:"word_count"`
	CharCount         int                 `json:"char_count"`
	ExtractionQuality float64             `json:"extraction_quality"`
	Sections          []model.Section     `json:"sections"`
}

func newConverter() *md.Converter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return conv
}

// renderMarkdown converts one group's elements to markdown.
func renderMarkdown(elements []Element) string {
	var b strings.Builder
	for _, el := range elements {
		if el.HTML != "" {
			b.WriteString(el.HTML)
			b.WriteByte('\n')
		}
	}
	out, err := newConverter().ConvertString(b.String())
	if err != nil {
		zap.L().Debug("markdown conversion failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(out)
}

// ExtractFullMarkdown renders the whole document once, inserts section
// markers before each detected header line, and prepends document header
// comments.
func (e *Extractor) ExtractFullMarkdown(html, ticker, accession string) (*FullMarkdownResult, error) {
	elements, err := Partition(html)
	if err != nil {
		return nil, err
	}

	groups := groupElements(elements)
	var sections []model.Section
	for _, g := range groups {
		if sec, ok := e.buildSection(g, accession); ok {
			sections = append(sections, sec)
		}
	}
	accepted := map[model.SectionType]bool{}
	for _, sec := range sections {
		accepted[sec.SectionType] = true
	}

	markdown, err := newConverter().ConvertString(html)
	if err != nil {
		return nil, err
	}

	var found []model.SectionType
	for _, g := range groups {
		if !accepted[g.id] {
			continue
		}
		title := g.title
		if title == "" {
			title = model.KnownSectionTypes[g.id].Title
		}
		marker := fmt.Sprintf("<!-- SECTION: %s -->\n<!-- TITLE: %s -->\n", g.id, title)
		markdown = insertBeforeLine(markdown, g.elements[0].Text, marker)
		found = append(found, g.id)
	}

	header := fmt.Sprintf("<!-- TICKER: %s -->\n<!-- ACCESSION: %s -->\n\n", ticker, accession)
	markdown = header + markdown

	quality := 0.0
	for _, sec := range sections {
		quality += sec.QualityScore
	}
	if len(sections) > 0 {
		quality /= float64(len(sections))
	}

	return &FullMarkdownResult{
		FullMarkdown:      markdown,
		SectionsFound:     found,
		WordCount:         len(strings.Fields(markdown)),
		CharCount:         len(markdown),
		ExtractionQuality: quality,
		Sections:          sections,
	}, nil
}

// insertBeforeLine puts marker immediately before the first line whose
// normalized text contains headerText. No match leaves the markdown
// unchanged except for appending the marker at the end, so a section is
// never silently lost.
func insertBeforeLine(markdown, headerText, marker string) string {
	needle := strings.Join(strings.Fields(headerText), " ")
	if needle == "" {
		return markdown
	}

	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		normalized := strings.Join(strings.Fields(stripMarkdown(line)), " ")
		if normalized == "" {
			continue
		}
		if strings.Contains(normalized, needle) || strings.Contains(needle, normalized) && len(normalized) > 10 {
			lines[i] = marker + line
			return strings.Join(lines, "\n")
		}
	}
	return markdown + "\n" + marker
}

// stripMarkdown removes emphasis and heading syntax for line matching.
func stripMarkdown(line string) string {
	line = strings.TrimLeft(line, "#> ")
	return strings.NewReplacer("**", "", "*", "", "_", "", "\\", "").Replace(line)
}
