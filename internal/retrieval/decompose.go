package retrieval

import (
	"context"

	"github.com/sells-group/finloom/pkg/anthropic"
)

// Plan breaks a multi-part query into independently retrievable pieces.
type Plan struct {
	Companies     []string `json:"companies"`
	SubQueries    []string `json:"sub_queries"`
	SynthesisHint string   `json:"synthesis_hint"`
}

const decomposeSystem = `You decompose financial research questions into independent sub-queries, one per company or aspect. Respond with JSON only: {"companies": ["TICKER"], "sub_queries": ["..."], "synthesis_hint": "..."}.`

// Decompose plans a complex query. Simple-fact queries and any LLM
// failure fall back to a single-query plan.
func (r *Retriever) Decompose(ctx context.Context, query string, qt QueryType) Plan {
	fallback := Plan{
		Companies:  r.router.DetectTickers(query),
		SubQueries: []string{query},
	}
	if qt == SimpleFact || r.llm == nil {
		return fallback
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.llmModel,
		MaxTokens: 512,
		System:    []anthropic.SystemBlock{{Text: decomposeSystem}},
		Messages:  []anthropic.Message{{Role: "user", Content: query}},
	})
	if err != nil {
		return fallback
	}

	var plan Plan
	if err := anthropic.ExtractJSON(resp.Text(), &plan); err != nil || len(plan.SubQueries) == 0 {
		return fallback
	}
	if len(plan.Companies) == 0 {
		plan.Companies = fallback.Companies
	}
	return plan
}
