// Package reports writes the exportable CSV artifacts: per-year tax reports
// with currency summary rows, the flat ledger, anomalies and dividends.
package reports

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/models"
	"github.com/username/stocktax/src/processors"
)

const reportTimeLayout = "2006-01-02 15:04:05"

type Writer struct {
	dir string
}

// NewWriter returns a report writer rooted at dir. The directory is created
// on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteYearReports writes one <year>_report.csv per tax year present in the
// ledger, rows sorted by execution time with per-currency summary rows
// appended. It returns the paths written.
func (w *Writer) WriteYearReports(rows []models.LedgerRow, summaries []models.AnnualSummaryRow) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", w.dir, err)
	}

	byYear := make(map[int][]models.LedgerRow)
	for _, row := range rows {
		byYear[row.TaxYear()] = append(byYear[row.TaxYear()], row)
	}

	var paths []string
	for _, year := range processors.TaxYears(summaries) {
		yearRows := byYear[year]
		sort.SliceStable(yearRows, func(i, j int) bool {
			return yearRows[i].ExecutedAt.Before(yearRows[j].ExecutedAt)
		})

		path := filepath.Join(w.dir, fmt.Sprintf("%d_report.csv", year))
		if err := w.writeYearReport(path, year, yearRows, summaries); err != nil {
			return paths, err
		}
		paths = append(paths, path)
		logger.L.Info("Wrote year report", "year", year, "path", path, "rows", len(yearRows))
	}
	return paths, nil
}

func (w *Writer) writeYearReport(path string, year int, rows []models.LedgerRow, summaries []models.AnnualSummaryRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	defer cw.Flush()

	header := []string{"symbol", "quantity", "direction", "sale_price", "matched_cost", "proceeds", "cost_basis", "gain_loss", "fee", "currency", "time", "note"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Symbol,
			row.Quantity.String(),
			string(row.Action),
			row.UnitPrice.String(),
			row.MatchedUnitCost.String(),
			row.Proceeds.String(),
			row.CostBasis.String(),
			row.RealizedGainLoss.String(),
			row.FeeTotal.String(),
			row.Currency,
			row.ExecutedAt.Format(reportTimeLayout),
			row.Note,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	// One summary row per settlement currency, matching the original report
	// shape. Accounts are already merged into the summaries at this point.
	for _, summary := range summaries {
		if summary.Year != year {
			continue
		}
		record := []string{
			fmt.Sprintf("TOTAL (%s)", summary.Currency),
			strconv.Itoa(summary.DisposalCount),
			"",
			"",
			"",
			summary.TotalProceeds.String(),
			summary.TotalCost.String(),
			summary.TotalGainLoss.String(),
			summary.TotalFees.String(),
			summary.Currency,
			"",
			formatMoney(summary.TotalGainLoss, summary.Currency),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteLedger writes the flat ledger export to ledger.csv.
func (w *Writer) WriteLedger(rows []models.LedgerRow) (string, error) {
	path := filepath.Join(w.dir, "ledger.csv")
	return path, w.writeCSV(path,
		[]string{"account_id", "symbol", "asset_type", "direction", "quantity", "sale_price", "matched_cost", "proceeds", "cost_basis", "gain_loss", "fee", "currency", "time", "note"},
		len(rows),
		func(i int) []string {
			row := rows[i]
			return []string{
				row.AccountID,
				row.Symbol,
				string(row.AssetType),
				string(row.Action),
				row.Quantity.String(),
				row.UnitPrice.String(),
				row.MatchedUnitCost.String(),
				row.Proceeds.String(),
				row.CostBasis.String(),
				row.RealizedGainLoss.String(),
				row.FeeTotal.String(),
				row.Currency,
				row.ExecutedAt.Format(reportTimeLayout),
				row.Note,
			}
		})
}

// WriteAnomalies writes anomalies.csv for manual review.
func (w *Writer) WriteAnomalies(anomalies []models.AnomalyRecord) (string, error) {
	path := filepath.Join(w.dir, "anomalies.csv")
	return path, w.writeCSV(path,
		[]string{"id", "reason", "detail", "account_id", "symbol", "action", "quantity", "price", "currency", "time"},
		len(anomalies),
		func(i int) []string {
			a := anomalies[i]
			return []string{
				a.ID,
				string(a.Reason),
				a.Detail,
				a.Transaction.AccountID,
				a.Transaction.Symbol,
				string(a.Transaction.Action),
				a.Transaction.Quantity.String(),
				a.Transaction.UnitPrice.String(),
				a.Transaction.Currency,
				a.Transaction.TradeTime.Format(reportTimeLayout),
			}
		})
}

// WriteDividendSummary writes dividends.csv with per account, year and
// currency gross and withheld totals.
func (w *Writer) WriteDividendSummary(summaries []models.DividendYearSummary) (string, error) {
	path := filepath.Join(w.dir, "dividends.csv")
	return path, w.writeCSV(path,
		[]string{"account_id", "year", "currency", "gross_amount", "withheld_tax", "net_display"},
		len(summaries),
		func(i int) []string {
			s := summaries[i]
			net := s.GrossAmount.Sub(s.WithheldTax)
			return []string{
				s.AccountID,
				strconv.Itoa(s.Year),
				s.Currency,
				s.GrossAmount.String(),
				s.WithheldTax.String(),
				formatMoney(net, s.Currency),
			}
		})
}

func (w *Writer) writeCSV(path string, header []string, n int, record func(i int) []string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", w.dir, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(record(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatMoney renders an amount with its currency symbol for the human
// readable columns. Unknown currency codes fall back to the bare number.
func formatMoney(amount decimal.Decimal, currency string) string {
	if money.GetCurrency(currency) == nil {
		return amount.StringFixed(2)
	}
	f, _ := amount.Float64()
	return money.NewFromFloat(f, currency).Display()
}
