package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/chunk"
	"github.com/sells-group/finloom/internal/config"
	"github.com/sells-group/finloom/internal/download"
	"github.com/sells-group/finloom/internal/edgar"
	"github.com/sells-group/finloom/internal/index"
	"github.com/sells-group/finloom/internal/kg"
	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/passage"
	"github.com/sells-group/finloom/internal/ratelimit"
	"github.com/sells-group/finloom/internal/store"
	"github.com/sells-group/finloom/pkg/anthropic"
	"github.com/sells-group/finloom/pkg/jina"
)

func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, cfg.Paths.Database)
}

func newDownloader() (*download.Downloader, error) {
	governor := ratelimit.NewGovernor(cfg.Archive.Rate, cfg.Archive.Burst, cfg.Archive.MinRate)
	client, err := edgar.NewClient(edgar.Options{
		UserAgent:   cfg.Archive.UserAgent,
		Timeout:     time.Duration(cfg.Archive.TimeoutSecs) * time.Second,
		FileTimeout: time.Duration(cfg.Archive.FileTimeoutSecs) * time.Second,
		MaxRetries:  cfg.Archive.MaxRetries,
	}, governor)
	if err != nil {
		return nil, err
	}
	return download.NewDownloader(client, cfg.Paths.RawDataRoot, cfg.Paths.CheckpointDir), nil
}

// llmClient returns nil when no API key is configured; callers degrade.
func llmClient() anthropic.Client {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	return anthropic.NewClient(cfg.Anthropic.Key)
}

func rerankClient() jina.Client {
	if cfg.Rerank.Key == "" {
		return nil
	}
	return jina.NewClient(cfg.Rerank.Key,
		jina.WithBaseURL(cfg.Rerank.BaseURL),
		jina.WithModel(cfg.Rerank.Model))
}

func openVectors(ctx context.Context) (*index.VectorIndex, error) {
	return index.OpenVectorIndex(ctx, cfg.Paths.VectorDB, cfg.Embedding.Dimensions)
}

func openKeywords() (*index.KeywordIndex, error) {
	return index.OpenKeywordIndex(cfg.Paths.KeywordIndex)
}

func passageGraphPath() string {
	return filepath.Join(cfg.Paths.ArtifactDir, "passage_graph.bin")
}

func loadRoster() ([]model.Company, error) {
	return config.LoadRoster(cfg.Paths.Roster)
}

var aliasSuffixes = []string{
	" inc.", " inc", " corporation", " corp.", " corp", " company", " co.",
	" plc", " ltd.", " ltd", " llc", " lp", ",",
}

// rosterAliases maps each ticker to its detectable name variants: the full
// roster name plus the name with corporate suffixes stripped.
func rosterAliases(companies []model.Company) map[string][]string {
	aliases := map[string][]string{}
	for _, c := range companies {
		if c.Ticker == "" {
			continue
		}
		names := []string{c.Name}
		short := strings.ToLower(c.Name)
		for {
			trimmed := short
			for _, suf := range aliasSuffixes {
				trimmed = strings.TrimSuffix(trimmed, suf)
			}
			trimmed = strings.TrimSpace(trimmed)
			if trimmed == short {
				break
			}
			short = trimmed
		}
		if short != "" && !strings.EqualFold(short, c.Name) {
			names = append(names, short)
		}
		aliases[c.Ticker] = names
	}
	return aliases
}

// fiscalYearOf prefers the report period's year over the filing date's.
func fiscalYearOf(f *model.Filing) int {
	if f.PeriodOfReport != nil {
		return f.PeriodOfReport.Year()
	}
	return f.FilingDate.Year()
}

// companyChunks re-chunks every processed filing of one company, carrying
// the filing context onto each chunk.
func companyChunks(ctx context.Context, s *store.Store, c model.Company) ([]*model.Chunk, error) {
	filings, err := s.Filings.ByCompany(ctx, c.CIK, "", nil, nil)
	if err != nil {
		return nil, err
	}

	chunker := chunk.New(cfg.Chunking)
	var out []*model.Chunk
	for i := range filings {
		f := &filings[i]
		if !f.SectionsProcessed {
			continue
		}
		secs, err := s.Sections.ByFiling(ctx, f.AccessionNumber)
		if err != nil {
			return nil, eris.Wrapf(err, "load sections for %s", f.AccessionNumber)
		}
		ptrs := make([]*model.Section, len(secs))
		for j := range secs {
			ptrs[j] = &secs[j]
		}

		chunks := chunker.SplitFiling(ptrs)
		for _, ch := range chunks {
			ch.Ticker = c.Ticker
			ch.CompanyName = c.Name
			ch.FilingDate = f.FilingDate.Format("2006-01-02")
			ch.FormType = f.FormType
			ch.FiscalYear = fiscalYearOf(f)
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// openKnowledgeGraph connects to the property graph; retrieval works
// without it, so callers treat failure as absence.
func openKnowledgeGraph(ctx context.Context) (*kg.Graph, error) {
	g, err := kg.NewGraph(ctx, cfg.Graph)
	if err != nil {
		zap.L().Warn("knowledge graph unavailable", zap.Error(err))
		return nil, err
	}
	return g, nil
}

// loadPassageGraph reads the persisted graph, or returns an empty one when
// no artifact exists yet.
func loadPassageGraph() *passage.Graph {
	g, err := passage.Load(passageGraphPath())
	if err != nil {
		return passage.NewGraph()
	}
	return g
}
