// Package sections partitions filing HTML into typed elements, detects
// canonical item headers, and emits section records plus a full-document
// markdown with embedded section markers.
package sections

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Category classifies a partitioned element.
type Category string

const (
	CategoryTitle    Category = "Title"
	CategoryText     Category = "UncategorizedText"
	CategoryTable    Category = "Table"
	CategoryListItem Category = "ListItem"
)

// Element is one typed block from the document, in document order.
type Element struct {
	Category Category
	Text     string
	HTML     string
}

// blockTags are containers worth descending into.
var blockTags = map[string]bool{
	"div": true, "section": true, "article": true, "main": true,
	"center": true, "body": true, "font": true,
}

// Partition splits an HTML document into a flat typed element sequence.
func Partition(html string) ([]Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "sections: parse html")
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var elements []Element
	root.Children().Each(func(_ int, s *goquery.Selection) {
		walk(s, &elements)
	})
	return elements, nil
}

func walk(s *goquery.Selection, out *[]Element) {
	tag := goquery.NodeName(s)

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if text := cleanText(s.Text()); text != "" {
			*out = append(*out, Element{Category: CategoryTitle, Text: text, HTML: outerHTML(s)})
		}
		return
	case "table":
		text := cleanText(s.Text())
		*out = append(*out, Element{Category: CategoryTable, Text: text, HTML: outerHTML(s)})
		return
	case "ul", "ol":
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if text := cleanText(li.Text()); text != "" {
				*out = append(*out, Element{Category: CategoryListItem, Text: text, HTML: outerHTML(li)})
			}
		})
		return
	case "li":
		if text := cleanText(s.Text()); text != "" {
			*out = append(*out, Element{Category: CategoryListItem, Text: text, HTML: outerHTML(s)})
		}
		return
	case "p", "span", "b", "strong", "i", "em", "a", "u", "td":
		emitText(s, out)
		return
	case "script", "style", "head", "br", "hr", "img", "meta", "link", "title":
		return
	}

	if blockTags[tag] {
		if hasBlockChildren(s) {
			s.Children().Each(func(_ int, c *goquery.Selection) {
				walk(c, out)
			})
			return
		}
		emitText(s, out)
	}
}

// emitText classifies a leaf text block. Short fully-bolded text is treated
// as a title, which filings use instead of real heading tags.
func emitText(s *goquery.Selection, out *[]Element) {
	text := cleanText(s.Text())
	if text == "" {
		return
	}
	cat := CategoryText
	if len(text) <= 200 && isBoldLeaf(s) {
		cat = CategoryTitle
	}
	*out = append(*out, Element{Category: cat, Text: text, HTML: outerHTML(s)})
}

func hasBlockChildren(s *goquery.Selection) bool {
	found := false
	s.Children().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "div", "section", "article", "p", "table", "ul", "ol",
			"h1", "h2", "h3", "h4", "h5", "h6", "center":
			found = true
		}
	})
	return found
}

// isBoldLeaf reports whether the element's visible text is entirely bold,
// via <b>/<strong> wrapping or an inline font-weight style.
func isBoldLeaf(s *goquery.Selection) bool {
	tag := goquery.NodeName(s)
	if tag == "b" || tag == "strong" {
		return true
	}
	if style, ok := s.Attr("style"); ok && strings.Contains(strings.ToLower(style), "font-weight:bold") {
		return true
	}
	inner := cleanText(s.Find("b, strong").Text())
	return inner != "" && inner == cleanText(s.Text())
}

func outerHTML(s *goquery.Selection) string {
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	return html
}

// cleanText collapses whitespace runs, including non-breaking spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
