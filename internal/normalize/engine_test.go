package normalize

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func seedFiling(t *testing.T, s *store.Store, facts map[string]float64, periodEnd string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Companies.Upsert(ctx, model.Company{
		CIK: "320193", Ticker: "AAPL", Name: "Apple Inc.",
	}))
	require.NoError(t, s.Filings.Upsert(ctx, model.Filing{
		AccessionNumber: "0000320193-23-000106",
		CIK:             "320193",
		FormType:        "10-K",
		FilingDate:      date("2023-11-03"),
		DownloadStatus:  model.DownloadCompleted,
	}))

	end := date(periodEnd)
	for concept, value := range facts {
		_, err := s.Facts.Insert(ctx, model.Fact{
			AccessionNumber: "0000320193-23-000106",
			QualifiedName:   concept,
			ConceptName:     concept,
			Value:           model.NumericValue(value),
			PeriodType:      model.PeriodDuration,
			PeriodEnd:       &end,
		})
		require.NoError(t, err)
	}
}

func TestRun_PriorityOneWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, SeedTaxonomy(ctx, s))

	// Both revenue concepts present: priority 1 must supply the value with
	// its full mapping confidence.
	seedFiling(t, s, map[string]float64{
		"us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax": 383285000000,
		"us-gaap:Revenues": 999,
		"us-gaap:NetIncomeLoss": 96995000000,
	}, "2023-09-30")

	res, err := NewEngine(s).Run(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Filings)
	assert.Equal(t, 2, res.Written)

	rows, err := s.Normalization.Normalized(ctx, "AAPL")
	require.NoError(t, err)

	byMetric := map[string]model.NormalizedFinancial{}
	for _, r := range rows {
		byMetric[r.MetricID] = r
	}

	rev := byMetric["revenue"]
	assert.Equal(t, 383285000000.0, rev.Value)
	assert.Equal(t, "us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax", rev.SourceConcept)
	assert.Equal(t, 0.95, rev.Confidence)
	assert.Equal(t, 2023, rev.FiscalYear)
}

func TestRun_FallbackPriorityPenalized(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, SeedTaxonomy(ctx, s))

	// Only the priority-2 concept is present.
	seedFiling(t, s, map[string]float64{
		"us-gaap:Revenues": 383285000000,
	}, "2023-09-30")

	_, err := NewEngine(s).Run(ctx, "AAPL")
	require.NoError(t, err)

	rows, err := s.Normalization.Normalized(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "us-gaap:Revenues", rows[0].SourceConcept)
	assert.InDelta(t, 0.90*priorityPenalty, rows[0].Confidence, 1e-9)
}

func TestRun_DocumentPeriodEndDatePreferred(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, SeedTaxonomy(ctx, s))
	seedFiling(t, s, map[string]float64{
		"us-gaap:Revenues": 383285000000,
	}, "2023-09-30")

	// Prior-year comparatives outnumber current-year facts; the document
	// period end date still decides the filing period.
	prior := date("2022-09-24")
	for _, concept := range []string{"us-gaap:NetIncomeLoss", "us-gaap:Assets", "us-gaap:Liabilities"} {
		_, err := s.Facts.Insert(ctx, model.Fact{
			AccessionNumber: "0000320193-23-000106",
			QualifiedName:   concept,
			ConceptName:     concept,
			Value:           model.NumericValue(1),
			PeriodType:      model.PeriodDuration,
			PeriodEnd:       &prior,
		})
		require.NoError(t, err)
	}
	end := date("2023-09-30")
	_, err := s.Facts.Insert(ctx, model.Fact{
		AccessionNumber: "0000320193-23-000106",
		QualifiedName:   "dei:DocumentPeriodEndDate",
		ConceptName:     "DocumentPeriodEndDate",
		Value:           model.TextValue("2023-09-30"),
		PeriodType:      model.PeriodDuration,
		PeriodEnd:       &end,
	})
	require.NoError(t, err)

	_, err = NewEngine(s).Run(ctx, "AAPL")
	require.NoError(t, err)

	rows, err := s.Normalization.Normalized(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "revenue", rows[0].MetricID)
	assert.Equal(t, 383285000000.0, rows[0].Value)
}

func TestRun_DimensionedFactsIgnored(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, SeedTaxonomy(ctx, s))
	seedFiling(t, s, nil, "2023-09-30")

	end := date("2023-09-30")
	_, err := s.Facts.Insert(ctx, model.Fact{
		AccessionNumber: "0000320193-23-000106",
		QualifiedName:   "us-gaap:Revenues",
		ConceptName:     "Revenues",
		Value:           model.NumericValue(298085000000),
		PeriodType:      model.PeriodDuration,
		PeriodEnd:       &end,
		Dimensions:      map[string]string{"srt:ProductOrServiceAxis": "us-gaap:ProductMember"},
	})
	require.NoError(t, err)

	res, err := NewEngine(s).Run(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)
}

func TestRun_NoMappingsErrors(t *testing.T) {
	s := testStore(t)
	seedFiling(t, s, map[string]float64{"us-gaap:Revenues": 1}, "2023-09-30")

	_, err := NewEngine(s).Run(context.Background(), "AAPL")
	assert.Error(t, err)
}
