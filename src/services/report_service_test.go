package services

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stocktax/src/database"
	"github.com/username/stocktax/src/processors"
	"github.com/username/stocktax/src/reports"
)

func newTestService(t *testing.T) ReportService {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))

	return NewReportService(
		processors.NewAnnualAggregator(),
		processors.NewDividendProcessor(),
		reports.NewWriter(t.TempDir()),
		&MockEmailService{},
		cache.New(time.Minute, time.Minute),
	)
}

const uploadCSV = `股票代码,数量,成交价格,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,100,10,买入,USD,0,2024-03-01 09:31:00
US.AAPL,50,15,卖出,USD,0,2024-03-05 10:00:00
`

func TestReportService_UploadAndRun(t *testing.T) {
	service := newTestService(t)

	summary, err := service.ProcessUpload(strings.NewReader(uploadCSV), "ACC1", "futu", "history.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ParsedCount)
	assert.Equal(t, 2, summary.InsertedCount)
	assert.Equal(t, 0, summary.DuplicateCount)
	assert.NotEmpty(t, summary.UploadID)

	rows, err := service.GetLedger("ACC1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].RealizedGainLoss.Equal(decimal.NewFromInt(250)), "realized = %s", rows[0].RealizedGainLoss)

	holdings, err := service.GetHoldings("ACC1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].OpenQuantity.Equal(decimal.NewFromInt(50)))

	summaries, err := service.GetAnnualSummaries("ACC1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2024, summaries[0].Year)
	assert.True(t, summaries[0].TotalGainLoss.Equal(decimal.NewFromInt(250)))

	// Other accounts see nothing.
	otherRows, err := service.GetLedger("ACC2")
	require.NoError(t, err)
	assert.Empty(t, otherRows)
}

func TestReportService_UploadReportsSkippedRows(t *testing.T) {
	service := newTestService(t)

	withBadRows := `股票代码,数量,成交价格,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,100,10,买入,USD,0,2024-03-01 09:31:00
US.AAPL,0,10,买入,USD,0,2024-03-01 09:32:00
US.AAPL,50,abc,卖出,USD,0,2024-03-05 10:00:00
`
	summary, err := service.ProcessUpload(strings.NewReader(withBadRows), "ACC1", "futu", "history.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ParsedCount)
	assert.Equal(t, 2, summary.SkippedCount)
	require.Len(t, summary.SkippedRows, 2)
	assert.Equal(t, 3, summary.SkippedRows[0].Line)
	assert.Contains(t, summary.SkippedRows[0].Reason, "zero quantity")
	assert.Contains(t, summary.SkippedRows[1].Reason, "invalid price")
}

func TestReportService_ReuploadIsDeduplicated(t *testing.T) {
	service := newTestService(t)

	_, err := service.ProcessUpload(strings.NewReader(uploadCSV), "ACC1", "futu", "history.csv")
	require.NoError(t, err)

	summary, err := service.ProcessUpload(strings.NewReader(uploadCSV), "ACC1", "futu", "history.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.InsertedCount)
	assert.Equal(t, 2, summary.DuplicateCount)

	rows, err := service.GetLedger("ACC1")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "replayed upload must not double positions")
}

func TestReportService_UploadInvalidatesCache(t *testing.T) {
	service := newTestService(t)

	_, err := service.ProcessUpload(strings.NewReader(uploadCSV), "ACC1", "futu", "history.csv")
	require.NoError(t, err)

	rows, err := service.GetLedger("ACC1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	more := `股票代码,数量,成交价格,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,50,20,卖出,USD,0,2024-04-01 10:00:00
`
	_, err = service.ProcessUpload(strings.NewReader(more), "ACC1", "futu", "history.csv")
	require.NoError(t, err)

	rows, err = service.GetLedger("ACC1")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "new upload must force a recalculation")
}

func TestReportService_DividendSummaries(t *testing.T) {
	service := newTestService(t)

	cashCSV := `交易时间,币种,金额,描述,账户ID
2024-03-10 00:00:00,USD,24.50,AAPL 股息入账,ACC1
2024-03-10 00:00:01,USD,-2.45,AAPL 股息预扣税,ACC1
`
	_, err := service.ProcessUpload(strings.NewReader(cashCSV), "ACC1", "futu-cashflow", "cashflow.csv")
	require.NoError(t, err)

	summaries, err := service.GetDividendSummaries("ACC1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].GrossAmount.Equal(decimal.RequireFromString("24.5")))
	assert.True(t, summaries[0].WithheldTax.Equal(decimal.RequireFromString("2.45")))
}

func TestReportService_UnknownSourceFailsParsing(t *testing.T) {
	service := newTestService(t)

	_, err := service.ProcessUpload(strings.NewReader(uploadCSV), "ACC1", "degiro", "x.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParsingFailed)
}

func TestReportService_ExportReports(t *testing.T) {
	service := newTestService(t)

	_, err := service.ProcessUpload(strings.NewReader(uploadCSV), "ACC1", "futu", "history.csv")
	require.NoError(t, err)

	paths, err := service.ExportReports("ACC1")
	require.NoError(t, err)
	// one year report plus ledger, anomaly and dividend exports
	require.Len(t, paths, 4)
	assert.Contains(t, paths[0], "2024_report.csv")
}
