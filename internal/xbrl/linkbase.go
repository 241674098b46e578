package xbrl

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/finloom/internal/model"
)

// roleSections maps presentation-role URI fragments onto canonical
// financial-statement sections. Matching is case-insensitive substring.
var roleSections = []struct {
	fragment string
	section  string
}{
	{"ofoperations", "IncomeStatement"},
	{"incomestatement", "IncomeStatement"},
	{"comprehensiveincome", "ComprehensiveIncome"},
	{"financialposition", "BalanceSheet"},
	{"balancesheet", "BalanceSheet"},
	{"cashflows", "CashFlowStatement"},
	{"stockholdersequity", "StockholdersEquity"},
	{"shareholdersequity", "StockholdersEquity"},
	{"coverpage", "CoverPage"},
	{"cover", "CoverPage"},
}

// sectionForRole infers the statement section from a role URI.
func sectionForRole(role string) string {
	lower := strings.ToLower(role)
	for _, rs := range roleSections {
		if strings.Contains(lower, rs.fragment) {
			return rs.section
		}
	}
	return "Other"
}

// ConceptInfo carries per-concept hierarchy and label metadata resolved
// from the linkbases.
type ConceptInfo struct {
	Section string
	Parent  string
	Depth   int
	Label   string
}

// presentation arcs within one role, keyed by locator label.
type presArc struct {
	from, to string
	order    float64
}

// ParsePresentationLinkbase reads a *_pre.xml file and derives each
// concept's section, parent, and depth.
func ParsePresentationLinkbase(path string) (map[string]*ConceptInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xbrl: open %s", path)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	info := map[string]*ConceptInfo{}

	var role string
	locs := map[string]string{} // locator label → concept qname
	var arcs []presArc

	flush := func() {
		if len(locs) == 0 {
			return
		}
		section := sectionForRole(role)
		applyPresentation(info, section, locs, arcs)
		locs = map[string]string{}
		arcs = nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "xbrl: decode %s", path)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "presentationLink":
				flush()
				role = attrValue(t, "role")
			case "loc":
				label := attrValue(t, "label")
				href := attrValue(t, "href")
				if label != "" && href != "" {
					locs[label] = conceptFromHref(href)
				}
			case "presentationArc":
				arcs = append(arcs, presArc{
					from:  attrValue(t, "from"),
					to:    attrValue(t, "to"),
					order: parseOrder(attrValue(t, "order")),
				})
			}
		case xml.EndElement:
			if t.Name.Local == "presentationLink" {
				flush()
			}
		}
	}
	flush()

	return info, nil
}

// applyPresentation resolves arcs into parent/depth for one role.
func applyPresentation(info map[string]*ConceptInfo, section string, locs map[string]string, arcs []presArc) {
	// Lower order wins when a concept appears under multiple parents.
	sort.SliceStable(arcs, func(i, j int) bool { return arcs[i].order < arcs[j].order })

	parents := map[string]string{} // concept → parent concept
	for _, arc := range arcs {
		from, okF := locs[arc.from]
		to, okT := locs[arc.to]
		if !okF || !okT || from == to {
			continue
		}
		if _, seen := parents[to]; !seen {
			parents[to] = from
		}
	}

	depthOf := func(concept string) int {
		depth := 0
		seen := map[string]bool{}
		for cur := concept; ; {
			p, ok := parents[cur]
			if !ok || seen[cur] {
				return depth
			}
			seen[cur] = true
			cur = p
			depth++
		}
	}

	for _, concept := range locs {
		ci := info[concept]
		if ci == nil {
			ci = &ConceptInfo{}
			info[concept] = ci
		}
		// First role wins; later roles only fill gaps.
		if ci.Section == "" || ci.Section == "Other" {
			ci.Section = section
		}
		if ci.Parent == "" {
			ci.Parent = parents[concept]
		}
		if ci.Depth == 0 {
			ci.Depth = depthOf(concept)
		}
	}
}

// label roles in preference order.
var preferredLabelRoles = []string{
	"http://www.xbrl.org/2003/role/terseLabel",
	"http://www.xbrl.org/2003/role/label",
}

// ParseLabelLinkbase reads a *_lab.xml file and returns concept → label,
// picking terse over standard labels.
func ParseLabelLinkbase(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xbrl: open %s", path)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	locs := map[string]string{}               // locator label → concept
	arcs := map[string][]string{}             // locator label → label resource labels
	labels := map[string]map[string]string{}  // resource label → role → text

	var curResource, curRole string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "xbrl: decode %s", path)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "loc":
				label := attrValue(t, "label")
				href := attrValue(t, "href")
				if label != "" && href != "" {
					locs[label] = conceptFromHref(href)
				}
			case "labelArc":
				from := attrValue(t, "from")
				to := attrValue(t, "to")
				if from != "" && to != "" {
					arcs[from] = append(arcs[from], to)
				}
			case "label":
				curResource = attrValue(t, "label")
				curRole = attrValue(t, "role")
			}
		case xml.CharData:
			if curResource != "" {
				text := strings.TrimSpace(string(t))
				if text != "" {
					if labels[curResource] == nil {
						labels[curResource] = map[string]string{}
					}
					if _, exists := labels[curResource][curRole]; !exists {
						labels[curResource][curRole] = text
					}
				}
			}
		case xml.EndElement:
			if t.Name.Local == "label" {
				curResource, curRole = "", ""
			}
		}
	}

	out := map[string]string{}
	for locLabel, concept := range locs {
		for _, resLabel := range arcs[locLabel] {
			byRole := labels[resLabel]
			if byRole == nil {
				continue
			}
			if text := pickLabel(byRole); text != "" {
				out[concept] = text
				break
			}
		}
	}
	return out, nil
}

func pickLabel(byRole map[string]string) string {
	for _, role := range preferredLabelRoles {
		if text, ok := byRole[role]; ok {
			return text
		}
	}
	// Any role beats nothing; iterate deterministically.
	roles := make([]string, 0, len(byRole))
	for r := range byRole {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	if len(roles) > 0 {
		return byRole[roles[0]]
	}
	return ""
}

// FallbackLabel splits a CamelCase local name into a title-cased phrase,
// used when no label linkbase entry exists.
func FallbackLabel(localName string) string {
	var b strings.Builder
	runes := []rune(localName)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return cases.Title(language.English, cases.NoLower).String(b.String())
}

// LinkbasePaths finds the presentation and label linkbases in a filing dir.
func LinkbasePaths(dir string) (pre, lab string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ""
	}
	for _, e := range entries {
		lower := strings.ToLower(e.Name())
		switch {
		case strings.HasSuffix(lower, "_pre.xml"):
			pre = filepath.Join(dir, e.Name())
		case strings.HasSuffix(lower, "_lab.xml"):
			lab = filepath.Join(dir, e.Name())
		}
	}
	return pre, lab
}

// EnrichFacts attaches hierarchy and labels to facts in place.
func EnrichFacts(facts []model.Fact, info map[string]*ConceptInfo, labels map[string]string) {
	for i := range facts {
		qname := facts[i].QualifiedName
		if ci, ok := info[qname]; ok {
			facts[i].Section = ci.Section
			facts[i].ParentConcept = ci.Parent
			facts[i].Depth = ci.Depth
		}
		if label, ok := labels[qname]; ok {
			facts[i].Label = label
		} else {
			facts[i].Label = FallbackLabel(facts[i].ConceptName)
		}
	}
}

func attrValue(start xml.StartElement, local string) string {
	for _, attr := range start.Attr {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// conceptFromHref extracts the concept qname from a locator href fragment:
// "us-gaap-2023.xsd#us-gaap_Assets" → "us-gaap:Assets".
func conceptFromHref(href string) string {
	frag := href
	if i := strings.LastIndex(href, "#"); i >= 0 {
		frag = href[i+1:]
	}
	if i := strings.Index(frag, "_"); i >= 0 {
		return frag[:i] + ":" + frag[i+1:]
	}
	return frag
}

func parseOrder(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
