// Package entities extracts typed entities from section text using pattern
// rules, with optional LLM-assisted structured extraction for executives and
// risk factors.
package entities

import (
	"regexp"
	"strconv"
	"strings"
)

// Entity is one typed span found in section text.
type Entity struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

var (
	moneyRe = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:thousand|million|billion|trillion))?`)

	isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	mdyDateRe = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`)
	yearRe    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

	personRe = regexp.MustCompile(`\b(?:Mr\.|Ms\.|Mrs\.|Dr\.)\s+[A-Z][a-z]+(?:\s+[A-Z]\.)?(?:\s+[A-Z][a-z]+)+`)
	orgRe    = regexp.MustCompile(`\b[A-Z][A-Za-z&]+(?:\s+[A-Z][A-Za-z&]+)*,?\s+(?:Inc|Corp|Corporation|LLC|Ltd|Company)\.?`)

	cardinalRe = regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?%?`)

	phoneRe = regexp.MustCompile(`^\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`)
	zipRe   = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
)

// metricPhrases and riskPhrases are the fixed multi-word pattern sets for
// the custom METRIC and RISK labels. Longest phrases first so overlapping
// matches prefer the specific form.
var metricPhrases = []string{
	"earnings per share",
	"return on equity",
	"operating cash flow",
	"free cash flow",
	"gross margin",
	"operating margin",
	"operating income",
	"operating expenses",
	"net income",
	"net sales",
	"total revenue",
	"revenue",
	"ebitda",
}

var riskPhrases = []string{
	"foreign currency risk",
	"interest rate risk",
	"market risk",
	"credit risk",
	"liquidity risk",
	"operational risk",
	"regulatory risk",
	"cybersecurity risk",
	"supply chain disruption",
	"competitive pressure",
	"litigation risk",
}

// dateFrequencyWords are DATE-looking matches to reject.
var dateFrequencyWords = map[string]bool{
	"quarterly": true, "annual": true, "annually": true, "monthly": true,
	"weekly": true, "daily": true, "yearly": true,
}

// ExtractPatternEntities runs the pattern phase over one text.
func ExtractPatternEntities(text string) []Entity {
	var entities []Entity

	add := func(entityType string, locs [][]int) {
		for _, loc := range locs {
			entities = append(entities, Entity{
				Type:  entityType,
				Text:  text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}

	add("MONEY", moneyRe.FindAllStringIndex(text, -1))
	add("PERSON", personRe.FindAllStringIndex(text, -1))
	add("ORG", orgRe.FindAllStringIndex(text, -1))

	for _, loc := range isoDateRe.FindAllStringIndex(text, -1) {
		entities = append(entities, Entity{Type: "DATE", Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	for _, loc := range mdyDateRe.FindAllStringIndex(text, -1) {
		entities = append(entities, Entity{Type: "DATE", Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	for _, loc := range yearRe.FindAllStringIndex(text, -1) {
		if covered(entities, loc[0], loc[1]) {
			continue
		}
		entities = append(entities, Entity{Type: "DATE", Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}

	lower := strings.ToLower(text)
	addPhrases := func(entityType string, phrases []string) {
		for _, phrase := range phrases {
			idx := 0
			for {
				i := strings.Index(lower[idx:], phrase)
				if i < 0 {
					break
				}
				start := idx + i
				end := start + len(phrase)
				if !covered(entities, start, end) {
					entities = append(entities, Entity{
						Type: entityType, Text: text[start:end], Start: start, End: end,
					})
				}
				idx = end
			}
		}
	}
	addPhrases("METRIC", metricPhrases)
	addPhrases("RISK", riskPhrases)

	for _, loc := range cardinalRe.FindAllStringIndex(text, -1) {
		if covered(entities, loc[0], loc[1]) {
			continue
		}
		candidate := text[loc[0]:loc[1]]
		if !keepCardinal(candidate) {
			continue
		}
		entities = append(entities, Entity{Type: "CARDINAL", Text: candidate, Start: loc[0], End: loc[1]})
	}

	return filterNoise(entities)
}

// covered reports whether [start,end) overlaps an already-extracted span.
func covered(entities []Entity, start, end int) bool {
	for _, e := range entities {
		if start < e.End && end > e.Start {
			return true
		}
	}
	return false
}

// keepCardinal drops phone numbers, ZIP codes, and page-number-ish small
// integers.
func keepCardinal(s string) bool {
	bare := strings.TrimSuffix(s, "%")
	if phoneRe.MatchString(bare) || zipRe.MatchString(bare) {
		return false
	}
	if n, err := strconv.Atoi(strings.ReplaceAll(bare, ",", "")); err == nil {
		// Small integers are usually page numbers or item references.
		if n >= 0 && n < 100 && !strings.HasSuffix(s, "%") {
			return false
		}
	}
	return true
}

// filterNoise applies the per-type rejection rules.
func filterNoise(entities []Entity) []Entity {
	kept := entities[:0]
	for _, e := range entities {
		switch e.Type {
		case "DATE":
			if dateFrequencyWords[strings.ToLower(e.Text)] {
				continue
			}
			if yearRe.MatchString(e.Text) && len(e.Text) == 4 {
				if y, err := strconv.Atoi(e.Text); err != nil || y < 1900 || y > 2100 {
					continue
				}
			}
		}
		kept = append(kept, e)
	}
	return kept
}
