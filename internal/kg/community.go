package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/pkg/anthropic"
)

// projectionName is the in-memory GDS graph used for community detection.
const projectionName = "finloom_communities"

// maxSummaryMembers caps how many member nodes feed one summary prompt.
const maxSummaryMembers = 100

// CommunitySummary is the structured summary persisted on member nodes.
type CommunitySummary struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Themes      []string `json:"themes,omitempty"`
	TimePeriod  string   `json:"time_period,omitempty"`
	Companies   []string `json:"companies,omitempty"`
}

// Community is one detected group of related nodes.
type Community struct {
	ID      int64
	NodeIDs []int64
	Summary *CommunitySummary
}

// DetectCommunities projects the graph undirected and runs Leiden with a
// fixed seed. Communities under minMembers are dropped.
func (g *Graph) DetectCommunities(ctx context.Context, seed int64, minMembers int) ([]Community, error) {
	if minMembers <= 0 {
		minMembers = 3
	}

	// Drop a stale projection from an earlier run, then rebuild.
	_ = g.run(ctx, `CALL gds.graph.drop($name, false)`, map[string]any{"name": projectionName})

	err := g.run(ctx, `
		CALL gds.graph.project($name, '*', {ALL: {type: '*', orientation: 'UNDIRECTED'}})`,
		map[string]any{"name": projectionName})
	if err != nil {
		return nil, eris.Wrap(err, "kg: project graph")
	}
	defer func() {
		_ = g.run(ctx, `CALL gds.graph.drop($name, false)`, map[string]any{"name": projectionName})
	}()

	res, err := g.query(ctx, `
		CALL gds.leiden.stream($name, {randomSeed: $seed, includeIntermediateCommunities: false})
		YIELD nodeId, communityId
		RETURN nodeId, communityId`,
		map[string]any{"name": projectionName, "seed": seed})
	if err != nil {
		return nil, eris.Wrap(err, "kg: run leiden")
	}

	byCommunity := map[int64][]int64{}
	for _, rec := range res.Records {
		nodeID, _ := rec.Get("nodeId")
		communityID, _ := rec.Get("communityId")
		cid := communityID.(int64)
		byCommunity[cid] = append(byCommunity[cid], nodeID.(int64))
	}

	var communities []Community
	for cid, nodes := range byCommunity {
		if len(nodes) < minMembers {
			continue
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
		communities = append(communities, Community{ID: cid, NodeIDs: nodes})
	}
	sort.Slice(communities, func(i, j int) bool { return len(communities[i].NodeIDs) > len(communities[j].NodeIDs) })

	zap.L().Info("community detection complete",
		zap.Int("communities", len(communities)),
		zap.Int("min_members", minMembers))
	return communities, nil
}

// SummarizeCommunities generates an LLM summary per community and persists
// it on every member node. An unreachable LLM yields a placeholder summary
// instead of failing the run.
func (g *Graph) SummarizeCommunities(ctx context.Context, communities []Community, llm anthropic.Client, llmModel string) error {
	for i := range communities {
		c := &communities[i]

		desc, err := g.describeCommunity(ctx, c.NodeIDs)
		if err != nil {
			return err
		}

		summary := placeholderSummary(c.ID, len(c.NodeIDs))
		if llm != nil {
			if s, err := summarize(ctx, llm, llmModel, desc); err != nil {
				zap.L().Warn("community summary generation failed",
					zap.Int64("community_id", c.ID),
					zap.Error(err))
			} else {
				summary = s
			}
		}
		c.Summary = summary

		payload, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "kg: marshal community summary")
		}
		err = g.run(ctx, `
			MATCH (n) WHERE id(n) IN $ids
			SET n.community_id = $community_id, n.community_summary = $summary`,
			map[string]any{
				"ids":          c.NodeIDs,
				"community_id": c.ID,
				"summary":      string(payload),
			})
		if err != nil {
			return eris.Wrap(err, "kg: persist community summary")
		}
	}
	return nil
}

// describeCommunity renders a compact textual description of up to
// maxSummaryMembers member nodes and their relationship-type counts.
func (g *Graph) describeCommunity(ctx context.Context, nodeIDs []int64) (string, error) {
	ids := nodeIDs
	if len(ids) > maxSummaryMembers {
		ids = ids[:maxSummaryMembers]
	}

	res, err := g.query(ctx, `
		MATCH (n) WHERE id(n) IN $ids
		RETURN labels(n)[0] AS label,
		       coalesce(n.name, n.concept, n.category, n.accession_number, n.cik, '') AS name
		LIMIT $limit`,
		map[string]any{"ids": ids, "limit": maxSummaryMembers})
	if err != nil {
		return "", eris.Wrap(err, "kg: describe community members")
	}

	var b strings.Builder
	b.WriteString("Members:\n")
	for _, rec := range res.Records {
		label, _ := rec.Get("label")
		name, _ := rec.Get("name")
		fmt.Fprintf(&b, "- %s: %s\n", label, name)
	}

	res, err = g.query(ctx, `
		MATCH (n)-[r]-(m) WHERE id(n) IN $ids AND id(m) IN $ids
		RETURN type(r) AS t, count(*) AS n ORDER BY n DESC`,
		map[string]any{"ids": ids})
	if err != nil {
		return "", eris.Wrap(err, "kg: count community relationships")
	}
	b.WriteString("Relationship counts:\n")
	for _, rec := range res.Records {
		t, _ := rec.Get("t")
		n, _ := rec.Get("n")
		fmt.Fprintf(&b, "- %s: %d\n", t, n)
	}
	return b.String(), nil
}

const summaryPrompt = `You are summarizing one community from a knowledge graph of annual
report filings. Given its member nodes and internal relationship counts,
respond with JSON only:
{"title": "...", "description": "...", "themes": ["..."], "time_period": "...", "companies": ["..."]}

`

func summarize(ctx context.Context, llm anthropic.Client, llmModel, description string) (*CommunitySummary, error) {
	resp, err := llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     llmModel,
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{Role: "user", Content: summaryPrompt + description},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "kg: community summary call")
	}
	resp.Usage.LogCost(llmModel, "community_summary")

	var summary CommunitySummary
	if err := anthropic.ExtractJSON(resp.Text(), &summary); err != nil {
		return nil, eris.Wrap(err, "kg: parse community summary")
	}
	if summary.Title == "" {
		return nil, eris.New("kg: community summary missing title")
	}
	return &summary, nil
}

func placeholderSummary(id int64, members int) *CommunitySummary {
	return &CommunitySummary{
		Title:       fmt.Sprintf("Community %d", id),
		Description: fmt.Sprintf("Automatic summary unavailable for this community of %d nodes.", members),
	}
}
