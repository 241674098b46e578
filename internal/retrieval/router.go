// Package retrieval answers natural-language questions over indexed
// filings by fusing vector, keyword, and graph search with multi-hop
// passage-graph expansion.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/finloom/pkg/anthropic"
)

// QueryType classifies how much work a query needs.
type QueryType string

const (
	SimpleFact      QueryType = "SIMPLE_FACT"
	ComplexAnalysis QueryType = "COMPLEX_ANALYSIS"
	CrossFiling     QueryType = "CROSS_FILING"
)

// MaxHops returns the default hop budget for a query type.
func (q QueryType) MaxHops() int {
	switch q {
	case SimpleFact:
		return 0
	case CrossFiling:
		return 3
	default:
		return 2
	}
}

var comparisonLexicon = []string{
	"compare", "versus", " vs ", " vs.", "difference between", "industry",
	"peers", "competitors", "benchmark",
}

var complexLexicon = []string{
	"trend", "year-over-year", "year over year", "growth", "why", "because",
	"impact", "caused by", "led to", "drivers", "change over time", "evolve",
}

var simpleLexicon = []string{
	"what is", "what was", "who is", "who was", "when did", "how much",
	"how many", "name the", "list the", "define",
}

// Router classifies queries, using rules first and an LLM for the
// ambiguous remainder.
type Router struct {
	aliases CompanyAliases
	llm     anthropic.Client
	model   string
}

// NewRouter builds a Router. llm may be nil, in which case ambiguous
// queries default to COMPLEX_ANALYSIS.
func NewRouter(aliases CompanyAliases, llm anthropic.Client, model string) *Router {
	return &Router{aliases: aliases, llm: llm, model: model}
}

// DetectTickers returns the tickers whose name or symbol appears in the
// query, in alias-table order.
func (r *Router) DetectTickers(query string) []string {
	return r.aliases.Detect(query)
}

// Classify assigns a query type.
func (r *Router) Classify(ctx context.Context, query string) QueryType {
	lower := strings.ToLower(query)
	tickers := r.aliases.Detect(query)

	if len(tickers) >= 2 {
		return CrossFiling
	}
	if len(tickers) == 1 && containsAny(lower, comparisonLexicon) {
		return CrossFiling
	}

	hasComplex := containsAny(lower, complexLexicon)
	hasSimple := containsAny(lower, simpleLexicon)

	if hasComplex && !hasSimple {
		return ComplexAnalysis
	}
	if hasSimple && !hasComplex && len(strings.Fields(query)) <= 12 {
		return SimpleFact
	}

	return r.classifyLLM(ctx, query)
}

const routerSystem = `You classify financial research queries as SIMPLE_FACT, COMPLEX_ANALYSIS, or CROSS_FILING. Respond with JSON only: {"type": "...", "reasoning": "..."}.`

func (r *Router) classifyLLM(ctx context.Context, query string) QueryType {
	if r.llm == nil {
		return ComplexAnalysis
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: 256,
		System:    []anthropic.SystemBlock{{Text: routerSystem}},
		Messages:  []anthropic.Message{{Role: "user", Content: query}},
	})
	if err != nil {
		zap.L().Warn("query classification failed, defaulting to complex", zap.Error(err))
		return ComplexAnalysis
	}

	var out struct {
		Type      string `json:"type"`
		Reasoning string `json:"reasoning"`
	}
	if err := anthropic.ExtractJSON(resp.Text(), &out); err != nil {
		zap.L().Warn("query classification unparsable, defaulting to complex", zap.Error(err))
		return ComplexAnalysis
	}

	switch QueryType(strings.ToUpper(strings.TrimSpace(out.Type))) {
	case SimpleFact:
		return SimpleFact
	case CrossFiling:
		return CrossFiling
	default:
		return ComplexAnalysis
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// CompanyAliases maps tickers to name variants for query-time detection.
type CompanyAliases map[string][]string

// Detect returns tickers mentioned in the query by symbol or any alias,
// sorted for determinism.
func (a CompanyAliases) Detect(query string) []string {
	lower := " " + strings.ToLower(query) + " "
	var found []string
	for ticker, names := range a {
		if strings.Contains(lower, " "+strings.ToLower(ticker)+" ") {
			found = append(found, ticker)
			continue
		}
		for _, name := range names {
			if name != "" && strings.Contains(lower, strings.ToLower(name)) {
				found = append(found, ticker)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}
