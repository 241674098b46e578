package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/finloom/internal/export"
	"github.com/sells-group/finloom/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write normalized financials to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		companies, err := s.Companies.ListAll(ctx)
		if err != nil {
			return err
		}

		wb := export.NewWorkbook(taxonomyMetrics())
		for _, c := range companies {
			if c.Ticker == "" {
				continue
			}
			rows, err := s.Normalization.Normalized(ctx, c.Ticker)
			if err != nil {
				return err
			}
			wb.Add(c.Ticker, c.Name, rows)
		}

		if err := wb.Save(exportOut); err != nil {
			return err
		}
		fmt.Printf("workbook written to %s\n", exportOut)
		return nil
	},
}

// taxonomyMetrics is the sheet row order: income statement first, then
// balance sheet, then cash flow.
func taxonomyMetrics() []model.StandardizedMetric {
	return []model.StandardizedMetric{
		{MetricID: "revenue", Label: "Revenue", Category: "income_statement", DataType: "monetary"},
		{MetricID: "gross_profit", Label: "Gross Profit", Category: "income_statement", DataType: "monetary"},
		{MetricID: "operating_income", Label: "Operating Income", Category: "income_statement", DataType: "monetary"},
		{MetricID: "net_income", Label: "Net Income", Category: "income_statement", DataType: "monetary"},
		{MetricID: "rd_expense", Label: "R&D Expense", Category: "income_statement", DataType: "monetary"},
		{MetricID: "eps_basic", Label: "EPS (Basic)", Category: "income_statement", DataType: "per_share"},
		{MetricID: "eps_diluted", Label: "EPS (Diluted)", Category: "income_statement", DataType: "per_share"},
		{MetricID: "total_assets", Label: "Total Assets", Category: "balance_sheet", DataType: "monetary"},
		{MetricID: "total_liabilities", Label: "Total Liabilities", Category: "balance_sheet", DataType: "monetary"},
		{MetricID: "stockholders_equity", Label: "Stockholders' Equity", Category: "balance_sheet", DataType: "monetary"},
		{MetricID: "cash_and_equivalents", Label: "Cash and Equivalents", Category: "balance_sheet", DataType: "monetary"},
		{MetricID: "operating_cash_flow", Label: "Operating Cash Flow", Category: "cash_flow", DataType: "monetary"},
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "financials.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
