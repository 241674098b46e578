package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decisionList struct {
	Decisions []struct {
		ID     int    `json:"id"`
		Action string `json:"action"`
	} `json:"decisions"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"plain", `{"decisions": [{"id": 1, "action": "keep"}]}`},
		{"fenced", "```json\n{\"decisions\": [{\"id\": 1, \"action\": \"keep\"}]}\n```"},
		{"prose prefix", "Here are my decisions:\n{\"decisions\": [{\"id\": 1, \"action\": \"keep\"}]}"},
		{"trailing comma", `{"decisions": [{"id": 1, "action": "keep"},]}`},
		{"unquoted keys", `{decisions: [{id: 1, action: "keep"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out decisionList
			require.NoError(t, ExtractJSON(tt.reply, &out))
			require.Len(t, out.Decisions, 1)
			assert.Equal(t, 1, out.Decisions[0].ID)
			assert.Equal(t, "keep", out.Decisions[0].Action)
		})
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	var out decisionList
	assert.Error(t, ExtractJSON("no json here at all", &out))
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+0.40, cost, 1e-9)

	assert.Zero(t, TokenUsage{InputTokens: 1}.EstimateCost("unknown-model"))
}

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{InputTokens: 10, OutputTokens: 5}
	u.Add(TokenUsage{InputTokens: 3, OutputTokens: 2, CacheReadInputTokens: 7})
	assert.Equal(t, int64(13), u.InputTokens)
	assert.Equal(t, int64(7), u.OutputTokens)
	assert.Equal(t, int64(7), u.CacheReadInputTokens)
}
