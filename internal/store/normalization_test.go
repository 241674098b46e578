package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/model"
)

func seedFactPeriod(t *testing.T, s *Store, accession, periodEnd string) {
	t.Helper()
	end := date(periodEnd)
	_, err := s.Facts.Insert(context.Background(), model.Fact{
		AccessionNumber: accession,
		QualifiedName:   "us-gaap:Revenues",
		ConceptName:     "Revenues",
		Value:           model.NumericValue(100),
		PeriodType:      model.PeriodDuration,
		PeriodEnd:       &end,
	})
	require.NoError(t, err)
}

func TestLatestFilingPerFiscalYear_AmendmentWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCompany(t, s)

	// FY2023: original plus a later amendment. FY2022: original only.
	seedFiling(t, s, "0000320193-22-000108", "10-K", "2022-10-28")
	seedFiling(t, s, "0000320193-23-000106", "10-K", "2023-11-03")
	seedFiling(t, s, "0000320193-24-000001", "10-K/A", "2024-02-01")

	seedFactPeriod(t, s, "0000320193-22-000108", "2022-09-24")
	seedFactPeriod(t, s, "0000320193-23-000106", "2023-09-30")
	seedFactPeriod(t, s, "0000320193-24-000001", "2023-09-30")

	winners, err := s.Normalization.LatestFilingPerFiscalYear(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, winners, 2)

	byYear := map[int]FilingWinner{}
	for _, w := range winners {
		byYear[w.FiscalYear] = w
	}
	assert.Equal(t, "0000320193-22-000108", byYear[2022].AccessionNumber)
	assert.Equal(t, "0000320193-24-000001", byYear[2023].AccessionNumber)
	assert.Equal(t, "10-K/A", byYear[2023].FormType)
}

func TestUpsertNormalized_ConfidenceRule(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := model.NormalizedFinancial{
		CompanyTicker: "AAPL", FiscalYear: 2023, MetricID: "revenue",
		Value: 383285000000, SourceConcept: "us-gaap:Revenues",
		SourceAccession: "0000320193-23-000106", Confidence: 0.95,
	}
	applied, err := s.Normalization.UpsertNormalized(ctx, base)
	require.NoError(t, err)
	assert.True(t, applied)

	// Lower confidence is skipped.
	lower := base
	lower.Value = 1
	lower.Confidence = 0.80
	applied, err = s.Normalization.UpsertNormalized(ctx, lower)
	require.NoError(t, err)
	assert.False(t, applied)

	// Equal or higher confidence overwrites.
	higher := base
	higher.Value = 2
	higher.Confidence = 0.99
	applied, err = s.Normalization.UpsertNormalized(ctx, higher)
	require.NoError(t, err)
	assert.True(t, applied)

	rows, err := s.Normalization.Normalized(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Value)
	assert.Equal(t, 0.99, rows[0].Confidence)
}

func TestMappings_OrderedByPriority(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Normalization.UpsertMetric(ctx, model.StandardizedMetric{
		MetricID: "revenue", Label: "Revenue", Category: "income_statement",
	}))
	require.NoError(t, s.Normalization.UpsertMapping(ctx, model.ConceptMapping{
		MetricID: "revenue", ConceptName: "us-gaap:Revenues", Priority: 2, Confidence: 0.90,
	}))
	require.NoError(t, s.Normalization.UpsertMapping(ctx, model.ConceptMapping{
		MetricID: "revenue", ConceptName: "us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax",
		Priority: 1, Confidence: 0.95,
	}))
	// Re-upsert changes priority in place.
	require.NoError(t, s.Normalization.UpsertMapping(ctx, model.ConceptMapping{
		MetricID: "revenue", ConceptName: "us-gaap:Revenues", Priority: 3, Confidence: 0.85,
	}))

	mappings, err := s.Normalization.Mappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, 1, mappings[0].Priority)
	assert.Equal(t, "us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax", mappings[0].ConceptName)
	assert.Equal(t, 3, mappings[1].Priority)
}

func TestRemoveDuplicates_DryRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Bypass the unique index to fabricate duplicates the way legacy data
	// could contain them.
	_, err := s.DB().Exec(`DROP INDEX idx_normalized_unique`)
	require.NoError(t, err)

	insert := func(conf float64) {
		_, err := s.DB().Exec(`
			INSERT INTO normalized_financials (company_ticker, fiscal_year,
				fiscal_quarter, metric_id, value, confidence, created_at)
			VALUES ('AAPL', 2023, 0, 'revenue', 1, ?, datetime('now'))`, conf)
		require.NoError(t, err)
	}
	insert(0.90)
	insert(0.95)
	insert(0.80)

	groups, err := s.Normalization.DetectDuplicates(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].RowIDs, 3)
	assert.Equal(t, 0.95, groups[0].Confidences[0]) // keeper first

	// Dry run reports but does not delete.
	n, err := s.Normalization.RemoveDuplicates(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	groups, err = s.Normalization.DetectDuplicates(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	// Real run removes the non-keepers.
	n, err = s.Normalization.RemoveDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	groups, err = s.Normalization.DetectDuplicates(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
