package anthropic

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"
)

// ExtractJSON unmarshals a model reply into out. Replies wrapped in code
// fences or with trailing prose are tolerated; malformed JSON goes through
// a repair pass before failing.
func ExtractJSON(reply string, out any) error {
	candidate := stripFences(reply)

	if start := strings.IndexAny(candidate, "{["); start >= 0 {
		candidate = candidate[start:]
	}

	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.RepairJSON(candidate)
	if err != nil {
		return eris.Wrap(err, "anthropic: repair json reply")
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return eris.Wrap(err, "anthropic: unmarshal json reply")
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
