package kg

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// matchThreshold is the minimum token-set similarity for treating two
// entity names as the same node.
const matchThreshold = 0.90

// normalizeName lowercases and strips common corporate suffixes and
// punctuation so "Apple Inc." and "APPLE INC" compare equal.
func normalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(",", " ", ".", " ", "&", " and ").Replace(s)
	fields := strings.Fields(s)

	out := fields[:0]
	for _, f := range fields {
		switch f {
		case "inc", "corp", "corporation", "llc", "ltd", "co", "company", "plc", "lp":
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// tokenSetRatio compares two names on their sorted unique token sets,
// returning a similarity in [0, 1].
func tokenSetRatio(a, b string) float64 {
	ta := tokenSet(normalizeName(a))
	tb := tokenSet(normalizeName(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	// Identical token sets short-circuit, covering reordered names.
	joinedA := strings.Join(ta, " ")
	joinedB := strings.Join(tb, " ")
	if joinedA == joinedB {
		return 1
	}
	return levenshtein.Similarity(joinedA, joinedB, nil)
}

// SameEntity reports whether two names refer to the same company or person.
func SameEntity(a, b string) bool {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	return tokenSetRatio(a, b) >= matchThreshold
}

func tokenSet(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range strings.Fields(s) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
