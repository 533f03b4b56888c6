package reports

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stocktax/src/models"
	"github.com/username/stocktax/src/processors"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleRows() []models.LedgerRow {
	d := decimal.RequireFromString
	return []models.LedgerRow{
		{
			AccountID: "ACC1", Symbol: "US.AAPL", AssetType: models.AssetStock, Action: models.ActionSell,
			Quantity: d("100"), UnitPrice: d("15"), MatchedUnitCost: d("10"),
			Proceeds: d("1500"), CostBasis: d("1000"), RealizedGainLoss: d("500"),
			Currency: "USD", FeeTotal: d("1"),
			ExecutedAt: time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			AccountID: "ACC1", Symbol: "US.TSLA240419C200000", AssetType: models.AssetOption, Action: models.ActionOptionExpire,
			Quantity: d("2"), UnitPrice: d("0"), MatchedUnitCost: d("3"),
			Proceeds: d("0"), CostBasis: d("600"), RealizedGainLoss: d("-600"),
			Currency: "USD", FeeTotal: d("0"),
			ExecutedAt: time.Date(2024, time.April, 19, 0, 0, 0, 0, time.UTC),
			Note:       "option expired worthless",
		},
		{
			AccountID: "ACC1", Symbol: "HK.00700", AssetType: models.AssetStock, Action: models.ActionSell,
			Quantity: d("200"), UnitPrice: d("350"), MatchedUnitCost: d("300"),
			Proceeds: d("70000"), CostBasis: d("60000"), RealizedGainLoss: d("10000"),
			Currency: "HKD", FeeTotal: d("50"),
			ExecutedAt: time.Date(2023, time.November, 3, 14, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriter_WriteYearReports(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir)

	rows := sampleRows()
	summaries := processors.NewAnnualAggregator().Aggregate(rows)

	paths, err := writer.WriteYearReports(rows, summaries)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "2023_report.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "2024_report.csv"), paths[1])

	records := readCSV(t, paths[1])
	// header + 2 rows for 2024 + 1 USD summary row
	require.Len(t, records, 4)
	assert.Equal(t, "symbol", records[0][0])

	// Rows sorted by execution time: the April expiration before the May sale.
	assert.Equal(t, "US.TSLA240419C200000", records[1][0])
	assert.Equal(t, "US.AAPL", records[2][0])

	summary := records[3]
	assert.Equal(t, "TOTAL (USD)", summary[0])
	assert.Equal(t, "-100", summary[7], "2024 USD gain: 500 - 600")

	records2023 := readCSV(t, paths[0])
	require.Len(t, records2023, 3)
	assert.Equal(t, "TOTAL (HKD)", records2023[2][0])
}

func TestWriter_WriteLedgerAndAnomalies(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir)

	path, err := writer.WriteLedger(sampleRows())
	require.NoError(t, err)
	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, "account_id", records[0][0])

	anomalies := []models.AnomalyRecord{
		{
			ID: "a1", Reason: models.AnomalyOversell, Detail: "disposal of 8 US.AAPL exceeds open quantity 5",
			Transaction: models.TransactionRecord{
				AccountID: "ACC1", Symbol: "US.AAPL", Action: models.ActionSell,
				Quantity: decimal.NewFromInt(8), UnitPrice: decimal.NewFromInt(12),
				Currency: "USD", TradeTime: time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC),
			},
		},
	}
	path, err = writer.WriteAnomalies(anomalies)
	require.NoError(t, err)
	records = readCSV(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "OVERSELL", records[1][1])
}

func TestWriter_WriteDividendSummary(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir)

	d := decimal.RequireFromString
	path, err := writer.WriteDividendSummary([]models.DividendYearSummary{
		{AccountID: "ACC1", Year: 2024, Currency: "USD", GrossAmount: d("24.50"), WithheldTax: d("2.45")},
	})
	require.NoError(t, err)

	records := readCSV(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "24.5", records[1][3])
	assert.Equal(t, "$22.05", records[1][5], "net amount is displayed with the currency symbol")
}
