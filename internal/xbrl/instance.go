// Package xbrl parses XBRL instance documents and their presentation and
// label linkbases into typed facts.
package xbrl

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
)

// standardNamespaces maps standard taxonomy namespaces to their canonical
// prefixes. Filings declare these with a year segment
// (http://fasb.org/us-gaap/2024), so lookup matches on the unversioned
// base. Anything outside the table gets an empty prefix and is flagged as
// a custom (extension) concept.
var standardNamespaces = []struct{ base, prefix string }{
	{"http://fasb.org/us-gaap", "us-gaap"},
	{"http://fasb.org/srt", "srt"},
	{"http://xbrl.sec.gov/dei", "dei"},
	{"http://xbrl.sec.gov/country", "country"},
	{"http://www.xbrl.org/2003/instance", "xbrli"},
}

func standardPrefix(space string) string {
	for _, ns := range standardNamespaces {
		if space == ns.base || strings.HasPrefix(space, ns.base+"/") {
			return ns.prefix
		}
	}
	return ""
}

// structural namespaces whose elements are never facts.
var structuralNamespaces = map[string]bool{
	"http://www.xbrl.org/2003/instance": true,
	"http://www.xbrl.org/2003/linkbase": true,
	"http://www.w3.org/1999/xlink":      true,
	"http://www.xbrl.org/2003/XLink":    true,
	"http://xbrl.org/2006/xbrldi":       true,
	"http://www.w3.org/2001/XMLSchema":  true,
	"http://www.w3.org/2001/XMLSchema-instance": true,
}

// IsInstanceDocument sniffs the first 8KB of a file for XBRL indicators:
// the xbrli namespace, the default instance namespace, context elements, or
// inline-XBRL markers.
func IsInstanceDocument(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 8192)
	n, _ := io.ReadFull(f, head)
	s := strings.ToLower(string(head[:n]))

	return strings.Contains(s, "xmlns:xbrli") ||
		strings.Contains(s, `xmlns="http://www.xbrl.org/2003/instance"`) ||
		strings.Contains(s, "<context") ||
		strings.Contains(s, "<ix:") ||
		strings.Contains(s, "xmlns:ix")
}

// IsLinkbase reports whether a filename is one of the linkbase companions.
func IsLinkbase(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{"_cal.xml", "_def.xml", "_lab.xml", "_pre.xml"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// FindInstanceDocument locates the first .xml in dir that is neither a
// linkbase nor a schema and passes the XBRL sniff.
func FindInstanceDocument(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrapf(err, "xbrl: read dir %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".xml") || IsLinkbase(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if IsInstanceDocument(path) {
			return path, nil
		}
	}
	return "", eris.New("No XBRL instance document found")
}

// context is one xbrli:context: a period plus optional hypercube dimensions.
type context struct {
	periodType model.PeriodType
	start      *time.Time
	end        *time.Time
	dimensions map[string]string
}

// ParseInstance reads an instance document and returns its raw facts.
// Individual fact extraction failures are logged and skipped.
func ParseInstance(path, accession string) ([]model.Fact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xbrl: open %s", path)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	// Filings occasionally declare legacy encodings.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	contexts := map[string]context{}
	units := map[string]string{}
	var facts []model.Fact

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "xbrl: decode %s", path)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch {
		case start.Name.Local == "context":
			id, ctx, err := parseContext(dec, start)
			if err != nil {
				zap.L().Debug("context parse failed", zap.Error(err))
				continue
			}
			contexts[id] = ctx
		case start.Name.Local == "unit":
			id, measure, err := parseUnit(dec, start)
			if err != nil {
				zap.L().Debug("unit parse failed", zap.Error(err))
				continue
			}
			units[id] = measure
		case isFactElement(start):
			fact, ok := parseFact(dec, start, accession, contexts, units)
			if ok {
				facts = append(facts, fact)
			}
		}
	}

	return facts, nil
}

func isFactElement(start xml.StartElement) bool {
	if start.Name.Space == "" || structuralNamespaces[start.Name.Space] {
		return false
	}
	for _, attr := range start.Attr {
		if attr.Name.Local == "contextRef" {
			return true
		}
	}
	return false
}

func parseFact(dec *xml.Decoder, start xml.StartElement, accession string, contexts map[string]context, units map[string]string) (model.Fact, bool) {
	var contextRef, unitRef, decimals string
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "contextRef":
			contextRef = attr.Value
		case "unitRef":
			unitRef = attr.Value
		case "decimals":
			decimals = attr.Value
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return model.Fact{}, false
		}
		if cd, ok := tok.(xml.CharData); ok {
			text.Write(cd)
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name == start.Name {
			break
		}
	}

	prefix := standardPrefix(start.Name.Space)
	local := start.Name.Local
	qualified := local
	if prefix != "" {
		qualified = prefix + ":" + local
	}

	fact := model.Fact{
		AccessionNumber: accession,
		Namespace:       prefix,
		ConceptName:     local,
		QualifiedName:   qualified,
		Decimals:        decimals,
		PeriodType:      model.PeriodUnknown,
		IsCustom:        prefix == "",
	}

	raw := strings.TrimSpace(text.String())
	if raw == "" {
		return model.Fact{}, false
	}
	if num, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil {
		fact.Value = model.NumericValue(num)
	} else {
		fact.Value = model.TextValue(raw)
	}

	if unitRef != "" {
		fact.Unit = units[unitRef]
	}
	if ctx, ok := contexts[contextRef]; ok {
		fact.PeriodType = ctx.periodType
		fact.PeriodStart = ctx.start
		fact.PeriodEnd = ctx.end
		if len(ctx.dimensions) > 0 {
			fact.Dimensions = ctx.dimensions
		}
	}

	return fact, true
}

func parseContext(dec *xml.Decoder, start xml.StartElement) (string, context, error) {
	var id string
	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			id = attr.Value
		}
	}

	ctx := context{periodType: model.PeriodUnknown}
	var currentDim string
	var inElement string

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", ctx, eris.Wrap(err, "xbrl: context tokens")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			inElement = t.Name.Local
			if t.Name.Local == "explicitMember" || t.Name.Local == "typedMember" {
				for _, attr := range t.Attr {
					if attr.Name.Local == "dimension" {
						currentDim = attr.Value
					}
				}
			}
		case xml.CharData:
			val := strings.TrimSpace(string(t))
			if val == "" {
				continue
			}
			switch inElement {
			case "instant":
				if d, err := time.Parse("2006-01-02", val); err == nil {
					ctx.periodType = model.PeriodInstant
					ctx.end = &d
				}
			case "startDate":
				if d, err := time.Parse("2006-01-02", val); err == nil {
					ctx.periodType = model.PeriodDuration
					ctx.start = &d
				}
			case "endDate":
				if d, err := time.Parse("2006-01-02", val); err == nil {
					ctx.periodType = model.PeriodDuration
					ctx.end = &d
				}
			case "explicitMember":
				if currentDim != "" {
					if ctx.dimensions == nil {
						ctx.dimensions = map[string]string{}
					}
					ctx.dimensions[currentDim] = val
				}
			}
		case xml.EndElement:
			inElement = ""
			if t.Name == start.Name {
				return id, ctx, nil
			}
		}
	}
}

func parseUnit(dec *xml.Decoder, start xml.StartElement) (string, string, error) {
	var id string
	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			id = attr.Value
		}
	}

	var measure string
	var inMeasure bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", "", eris.Wrap(err, "xbrl: unit tokens")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inMeasure = t.Name.Local == "measure"
		case xml.CharData:
			if inMeasure && measure == "" {
				val := strings.TrimSpace(string(t))
				// Keep the local part: iso4217:USD → USD.
				if i := strings.LastIndex(val, ":"); i >= 0 {
					val = val[i+1:]
				}
				if val != "" {
					measure = val
				}
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return id, measure, nil
			}
			inMeasure = false
		}
	}
}
