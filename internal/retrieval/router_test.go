package retrieval

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/pkg/anthropic"
)

var testAliases = CompanyAliases{
	"AAPL": {"Apple", "Apple Inc"},
	"MSFT": {"Microsoft", "Microsoft Corporation"},
	"NVDA": {"NVIDIA"},
}

// fakeLLM replays a canned reply, or fails when reply is empty.
type fakeLLM struct {
	reply string
	calls int
}

func (f *fakeLLM) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.reply == "" {
		return nil, eris.New("overloaded")
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
	}, nil
}

func TestDetectTickers(t *testing.T) {
	r := NewRouter(testAliases, nil, "")

	assert.Equal(t, []string{"AAPL"}, r.DetectTickers("What was Apple's revenue?"))
	assert.Equal(t, []string{"AAPL", "MSFT"}, r.DetectTickers("Compare Apple and Microsoft margins"))
	assert.Equal(t, []string{"MSFT"}, r.DetectTickers("How did MSFT describe AI risk?"))
	assert.Empty(t, r.DetectTickers("What drives semiconductor demand?"))
}

func TestClassify_Rules(t *testing.T) {
	r := NewRouter(testAliases, nil, "")
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"simple fact", "What was Apple's total revenue in fiscal 2023?", SimpleFact},
		{"two companies", "Compare Apple and Microsoft gross margins", CrossFiling},
		{"one company plus comparison", "How does NVIDIA compare to its competitors?", CrossFiling},
		{"causal analysis", "Why did operating margin decline for Apple?", ComplexAnalysis},
		{"trend analysis", "Describe the revenue growth trend at Microsoft", ComplexAnalysis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(ctx, tt.query))
		})
	}
}

func TestClassify_AmbiguousUsesLLM(t *testing.T) {
	llm := &fakeLLM{reply: `{"type": "SIMPLE_FACT", "reasoning": "single data point lookup"}`}
	r := NewRouter(testAliases, llm, "claude-haiku-4-5-20251001")

	got := r.Classify(context.Background(), "Apple supply chain concentration details please")
	assert.Equal(t, SimpleFact, got)
	assert.Equal(t, 1, llm.calls)
}

func TestClassify_LLMFailureDefaultsComplex(t *testing.T) {
	llm := &fakeLLM{}
	r := NewRouter(testAliases, llm, "claude-haiku-4-5-20251001")

	got := r.Classify(context.Background(), "Apple supply chain concentration details please")
	assert.Equal(t, ComplexAnalysis, got)
}

func TestMaxHops(t *testing.T) {
	require.Equal(t, 0, SimpleFact.MaxHops())
	require.Equal(t, 2, ComplexAnalysis.MaxHops())
	require.Equal(t, 3, CrossFiling.MaxHops())
}
