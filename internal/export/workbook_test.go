package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/finloom/internal/model"
)

var testMetrics = []model.StandardizedMetric{
	{MetricID: "revenue", Label: "Revenue", Category: "income_statement", DataType: "monetary"},
	{MetricID: "net_income", Label: "Net Income", Category: "income_statement", DataType: "monetary"},
	{MetricID: "eps_diluted", Label: "EPS (Diluted)", Category: "income_statement", DataType: "per_share"},
}

func annual(ticker string, year int, metricID string, value float64) model.NormalizedFinancial {
	return model.NormalizedFinancial{
		CompanyTicker: ticker,
		FiscalYear:    year,
		MetricID:      metricID,
		Value:         value,
		Confidence:    0.95,
	}
}

func TestWorkbook_Save(t *testing.T) {
	q4 := 4
	wb := NewWorkbook(testMetrics)
	wb.Add("AAPL", "Apple Inc.", []model.NormalizedFinancial{
		annual("AAPL", 2022, "revenue", 394_328_000_000),
		annual("AAPL", 2023, "revenue", 383_285_000_000),
		annual("AAPL", 2023, "net_income", 96_995_000_000),
		annual("AAPL", 2023, "eps_diluted", 6.13),
		{CompanyTicker: "AAPL", FiscalYear: 2023, FiscalQuarter: &q4, MetricID: "revenue", Value: 89_498_000_000},
	})

	path := filepath.Join(t.TempDir(), "financials.xlsx")
	require.NoError(t, wb.Save(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	summary := f.Sheet["Summary"]
	require.NotNil(t, summary)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "AAPL", summary.Rows[1].Cells[0].String())
	assert.Equal(t, "2022-2023", summary.Rows[1].Cells[2].String())

	annualCount, err := summary.Rows[1].Cells[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 4, annualCount)

	quarterlyCount, err := summary.Rows[1].Cells[4].Int()
	require.NoError(t, err)
	assert.Equal(t, 1, quarterlyCount)

	company := f.Sheet["AAPL"]
	require.NotNil(t, company)

	// Header: Metric, FY2022, FY2023.
	assert.Equal(t, "FY2022", company.Rows[0].Cells[1].String())
	assert.Equal(t, "FY2023", company.Rows[0].Cells[2].String())

	// Metric rows follow taxonomy order; metrics with no values are omitted.
	require.Len(t, company.Rows, 4)
	assert.Equal(t, "Revenue", company.Rows[1].Cells[0].String())
	assert.Equal(t, "Net Income", company.Rows[2].Cells[0].String())
	assert.Equal(t, "EPS (Diluted)", company.Rows[3].Cells[0].String())

	rev2023, err := company.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 383_285_000_000, rev2023, 1)

	// FY2022 has revenue only; other metrics carry a blank cell.
	assert.Equal(t, "", company.Rows[2].Cells[1].String())

	eps, err := company.Rows[3].Cells[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 6.13, eps, 1e-9)
}

func TestWorkbook_EmptyCompany(t *testing.T) {
	wb := NewWorkbook(testMetrics)
	wb.Add("MSFT", "Microsoft Corporation", nil)

	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, wb.Save(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	summary := f.Sheet["Summary"]
	require.NotNil(t, summary)
	assert.Equal(t, "", summary.Rows[1].Cells[2].String())

	company := f.Sheet["MSFT"]
	require.NotNil(t, company)
	require.Len(t, company.Rows, 1)
}
