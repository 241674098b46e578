package download

import (
	"regexp"
	"strings"
)

// linkbaseSuffixes are the XBRL relationship files we always keep.
var linkbaseSuffixes = []string{"_cal.xml", "_def.xml", "_lab.xml", "_pre.xml"}

var (
	reportViewRe = regexp.MustCompile(`^r\d+\.htm$`)

	excludedNameParts = []string{"filingsummary", "financial_report", "defref"}
	graphicExts       = map[string]bool{".jpg": true, ".jpeg": true, ".gif": true, ".png": true, ".ico": true}
	spreadsheetExts   = map[string]bool{".xlsx": true, ".xls": true}
)

// KeepFile implements the document-set filter policy. A file is kept iff it
// is the primary document, an XBRL linkbase, a schema, or an XBRL instance
// candidate, and never when it matches a known exclusion.
func KeepFile(name, primaryDocument string) bool {
	lower := strings.ToLower(name)

	if excluded(lower) {
		return false
	}

	if primaryDocument != "" && lower == strings.ToLower(primaryDocument) {
		return true
	}

	for _, suffix := range linkbaseSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	if strings.HasSuffix(lower, ".xsd") {
		return true
	}

	// Any remaining .xml is a candidate instance document.
	if strings.HasSuffix(lower, ".xml") {
		return true
	}

	return false
}

// excluded rejects per-report HTML views, exhibits, summary artifacts,
// graphics, and spreadsheets.
func excluded(lower string) bool {
	if reportViewRe.MatchString(lower) {
		return true
	}
	if strings.HasPrefix(lower, "ex") || strings.HasPrefix(lower, "exhibit") {
		return true
	}
	for _, part := range excludedNameParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	if i := strings.LastIndex(lower, "."); i >= 0 {
		ext := lower[i:]
		if graphicExts[ext] || spreadsheetExts[ext] {
			return true
		}
	}
	return false
}
