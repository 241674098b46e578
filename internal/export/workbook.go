// Package export renders normalized financials into spreadsheet
// workbooks for analyst handoff.
package export

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/finloom/internal/model"
)

// Cell number formats by metric data type.
const (
	monetaryFormat = "#,##0"
	perShareFormat = "0.00"
)

// summarySheet is the first sheet of every workbook.
const summarySheet = "Summary"

// Workbook accumulates per-company metric pivots. Annual values only;
// quarterly rows are counted but not pivoted.
type Workbook struct {
	metrics   []model.StandardizedMetric
	companies []companyData
}

type companyData struct {
	ticker string
	name   string
	rows   []model.NormalizedFinancial
}

// NewWorkbook builds a workbook over the given metric taxonomy. Metric
// order in the taxonomy is the row order on every company sheet.
func NewWorkbook(metrics []model.StandardizedMetric) *Workbook {
	return &Workbook{metrics: metrics}
}

// Add registers one company's normalized rows.
func (w *Workbook) Add(ticker, name string, rows []model.NormalizedFinancial) {
	w.companies = append(w.companies, companyData{ticker: ticker, name: name, rows: rows})
}

// Save writes the workbook: a summary sheet followed by one pivot sheet
// per company with metrics as rows and fiscal years as columns.
func (w *Workbook) Save(path string) error {
	f := xlsx.NewFile()

	if err := w.writeSummary(f); err != nil {
		return err
	}
	for _, c := range w.companies {
		if err := w.writeCompany(f, c); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

func (w *Workbook) writeSummary(f *xlsx.File) error {
	sheet, err := f.AddSheet(summarySheet)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Ticker", "Company", "Fiscal Years", "Annual Rows", "Quarterly Rows", "Avg Confidence"} {
		header.AddCell().SetString(h)
	}

	for _, c := range w.companies {
		annual, quarterly := 0, 0
		var confidence float64
		years := map[int]bool{}
		for _, r := range c.rows {
			if r.FiscalQuarter != nil {
				quarterly++
				continue
			}
			annual++
			confidence += r.Confidence
			years[r.FiscalYear] = true
		}

		row := sheet.AddRow()
		row.AddCell().SetString(c.ticker)
		row.AddCell().SetString(c.name)
		row.AddCell().SetString(yearSpan(years))
		row.AddCell().SetInt(annual)
		row.AddCell().SetInt(quarterly)
		if annual > 0 {
			row.AddCell().SetFloatWithFormat(confidence/float64(annual), perShareFormat)
		} else {
			row.AddCell().SetString("")
		}
	}
	return nil
}

func (w *Workbook) writeCompany(f *xlsx.File, c companyData) error {
	sheet, err := f.AddSheet(sheetName(c.ticker))
	if err != nil {
		return eris.Wrapf(err, "export: add sheet for %s", c.ticker)
	}

	// value by metric id then fiscal year, annual rows only
	values := map[string]map[int]float64{}
	years := map[int]bool{}
	for _, r := range c.rows {
		if r.FiscalQuarter != nil {
			continue
		}
		if values[r.MetricID] == nil {
			values[r.MetricID] = map[int]float64{}
		}
		values[r.MetricID][r.FiscalYear] = r.Value
		years[r.FiscalYear] = true
	}

	sorted := make([]int, 0, len(years))
	for y := range years {
		sorted = append(sorted, y)
	}
	sort.Ints(sorted)

	header := sheet.AddRow()
	header.AddCell().SetString("Metric")
	for _, y := range sorted {
		header.AddCell().SetString(fmt.Sprintf("FY%d", y))
	}

	for _, m := range w.metrics {
		byYear, ok := values[m.MetricID]
		if !ok {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().SetString(m.Label)
		for _, y := range sorted {
			cell := row.AddCell()
			v, ok := byYear[y]
			if !ok {
				cell.SetString("")
				continue
			}
			cell.SetFloatWithFormat(v, formatFor(m.DataType))
		}
	}
	return nil
}

func formatFor(dataType string) string {
	if dataType == "per_share" {
		return perShareFormat
	}
	return monetaryFormat
}

func yearSpan(years map[int]bool) string {
	if len(years) == 0 {
		return ""
	}
	min, max := 0, 0
	for y := range years {
		if min == 0 || y < min {
			min = y
		}
		if y > max {
			max = y
		}
	}
	if min == max {
		return fmt.Sprintf("%d", min)
	}
	return fmt.Sprintf("%d-%d", min, max)
}

// sheetName truncates to the 31-character sheet name limit.
func sheetName(ticker string) string {
	if len(ticker) > 31 {
		return ticker[:31]
	}
	return ticker
}
