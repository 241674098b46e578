package normalize

import (
	"context"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/store"
)

// seedMetrics is the canonical metric taxonomy with mappings walked in
// ascending priority.
var seedMetrics = []struct {
	metric   model.StandardizedMetric
	mappings []model.ConceptMapping
}{
	{
		model.StandardizedMetric{MetricID: "revenue", Label: "Revenue", Category: "income_statement", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax", Priority: 1, Confidence: 0.95},
			{ConceptName: "us-gaap:Revenues", Priority: 2, Confidence: 0.90},
			{ConceptName: "us-gaap:SalesRevenueNet", Priority: 3, Confidence: 0.85},
		},
	},
	{
		model.StandardizedMetric{MetricID: "net_income", Label: "Net Income", Category: "income_statement", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:NetIncomeLoss", Priority: 1, Confidence: 0.95},
			{ConceptName: "us-gaap:ProfitLoss", Priority: 2, Confidence: 0.85},
		},
	},
	{
		model.StandardizedMetric{MetricID: "operating_income", Label: "Operating Income", Category: "income_statement", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:OperatingIncomeLoss", Priority: 1, Confidence: 0.95},
		},
	},
	{
		model.StandardizedMetric{MetricID: "gross_profit", Label: "Gross Profit", Category: "income_statement", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:GrossProfit", Priority: 1, Confidence: 0.95},
		},
	},
	{
		model.StandardizedMetric{MetricID: "eps_basic", Label: "EPS (Basic)", Category: "income_statement", DataType: "per_share"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:EarningsPerShareBasic", Priority: 1, Confidence: 0.95},
		},
	},
	{
		model.StandardizedMetric{MetricID: "eps_diluted", Label: "EPS (Diluted)", Category: "income_statement", DataType: "per_share"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:EarningsPerShareDiluted", Priority: 1, Confidence: 0.95},
		},
	},
	{
		model.StandardizedMetric{MetricID: "total_assets", Label: "Total Assets", Category: "balance_sheet", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:Assets", Priority: 1, Confidence: 0.95},
		},
	},
	{
		model.StandardizedMetric{MetricID: "total_liabilities", Label: "Total Liabilities", Category: "balance_sheet", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:Liabilities", Priority: 1, Confidence: 0.95},
			{ConceptName: "us-gaap:LiabilitiesAndStockholdersEquity", Priority: 2, Confidence: 0.70},
		},
	},
	{
		model.StandardizedMetric{MetricID: "stockholders_equity", Label: "Stockholders' Equity", Category: "balance_sheet", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:StockholdersEquity", Priority: 1, Confidence: 0.95},
			{ConceptName: "us-gaap:StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest", Priority: 2, Confidence: 0.90},
		},
	},
	{
		model.StandardizedMetric{MetricID: "operating_cash_flow", Label: "Operating Cash Flow", Category: "cash_flow", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:NetCashProvidedByUsedInOperatingActivities", Priority: 1, Confidence: 0.95},
			{ConceptName: "us-gaap:NetCashProvidedByUsedInOperatingActivitiesContinuingOperations", Priority: 2, Confidence: 0.90},
		},
	},
	{
		model.StandardizedMetric{MetricID: "cash_and_equivalents", Label: "Cash and Equivalents", Category: "balance_sheet", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:CashAndCashEquivalentsAtCarryingValue", Priority: 1, Confidence: 0.95},
			{ConceptName: "us-gaap:CashCashEquivalentsRestrictedCashAndRestrictedCashEquivalents", Priority: 2, Confidence: 0.85},
		},
	},
	{
		model.StandardizedMetric{MetricID: "rd_expense", Label: "R&D Expense", Category: "income_statement", DataType: "monetary"},
		[]model.ConceptMapping{
			{ConceptName: "us-gaap:ResearchAndDevelopmentExpense", Priority: 1, Confidence: 0.95},
		},
	},
}

// SeedTaxonomy loads the default metric taxonomy into the store. Existing
// rows are updated in place, so re-seeding is safe.
func SeedTaxonomy(ctx context.Context, s *store.Store) error {
	for _, seed := range seedMetrics {
		if err := s.Normalization.UpsertMetric(ctx, seed.metric); err != nil {
			return err
		}
		for _, m := range seed.mappings {
			m.MetricID = seed.metric.MetricID
			if err := s.Normalization.UpsertMapping(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}
