// Package normalize reconciles reporter-specific concepts onto the
// canonical metric taxonomy, one row per (ticker, fiscal year, metric).
package normalize

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/store"
	"github.com/sells-group/finloom/internal/xbrl"
)

// priorityPenalty discounts confidence when a metric is supplied by a
// mapping other than the first-priority concept.
const priorityPenalty = 0.9

// Engine drives the normalization pass.
type Engine struct {
	store *store.Store
}

func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Result summarizes one normalization run.
type Result struct {
	Filings  int
	Written  int
	Skipped  int
	NoMatch  int
}

// Run normalizes every winner filing (optionally for one ticker): for each
// metric, the lowest-priority-number concept present among the filing's
// facts supplies the value.
func (e *Engine) Run(ctx context.Context, ticker string) (*Result, error) {
	winners, err := e.store.Normalization.LatestFilingPerFiscalYear(ctx, nil, ticker)
	if err != nil {
		return nil, err
	}

	mappings, err := e.store.Normalization.Mappings(ctx)
	if err != nil {
		return nil, err
	}
	byMetric := groupMappings(mappings)
	if len(byMetric) == 0 {
		return nil, eris.New("normalize: no concept mappings loaded")
	}

	res := &Result{Filings: len(winners)}
	for _, w := range winners {
		if err := e.normalizeFiling(ctx, w, byMetric, res); err != nil {
			zap.L().Warn("filing normalization failed",
				zap.String("accession", w.AccessionNumber), zap.Error(err))
		}
	}

	zap.L().Info("normalization complete",
		zap.Int("filings", res.Filings),
		zap.Int("written", res.Written),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (e *Engine) normalizeFiling(ctx context.Context, w store.FilingWinner, byMetric map[string][]model.ConceptMapping, res *Result) error {
	facts, err := e.store.Facts.Get(ctx, w.AccessionNumber, "")
	if err != nil {
		return err
	}

	periodEnd := xbrl.FilingPeriodEnd(facts)
	if periodEnd == nil {
		return eris.Errorf("normalize: no period end for %s", w.AccessionNumber)
	}

	byConcept := map[string][]model.Fact{}
	for _, f := range facts {
		byConcept[f.QualifiedName] = append(byConcept[f.QualifiedName], f)
	}

	for metricID, maps := range byMetric {
		value, concept, rank, found := matchMetric(maps, byConcept, *periodEnd)
		if !found {
			res.NoMatch++
			continue
		}

		confidence := maps[rank].Confidence
		if rank > 0 {
			confidence *= priorityPenalty
		}

		applied, err := e.store.Normalization.UpsertNormalized(ctx, model.NormalizedFinancial{
			CompanyTicker:   w.Ticker,
			FiscalYear:      w.FiscalYear,
			MetricID:        metricID,
			Value:           value,
			SourceConcept:   concept,
			SourceAccession: w.AccessionNumber,
			Confidence:      confidence,
		})
		if err != nil {
			return err
		}
		if applied {
			res.Written++
		} else {
			res.Skipped++
		}
	}
	return nil
}

// matchMetric walks mappings in priority order and returns the first concept
// with a usable fact: numeric, undimensioned, instant at the period end or a
// duration ending there.
func matchMetric(maps []model.ConceptMapping, byConcept map[string][]model.Fact, periodEnd time.Time) (float64, string, int, bool) {
	for rank, m := range maps {
		for _, f := range byConcept[m.ConceptName] {
			if !f.Value.IsNumeric() || len(f.Dimensions) > 0 {
				continue
			}
			if f.PeriodEnd == nil || !f.PeriodEnd.Equal(periodEnd) {
				continue
			}
			return f.Value.Numeric, m.ConceptName, rank, true
		}
	}
	return 0, "", 0, false
}

func groupMappings(mappings []model.ConceptMapping) map[string][]model.ConceptMapping {
	byMetric := map[string][]model.ConceptMapping{}
	for _, m := range mappings {
		byMetric[m.MetricID] = append(byMetric[m.MetricID], m)
	}
	for _, maps := range byMetric {
		sort.Slice(maps, func(i, j int) bool { return maps[i].Priority < maps[j].Priority })
	}
	return byMetric
}
