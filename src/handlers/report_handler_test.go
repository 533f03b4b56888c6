package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stocktax/src/models"
	"github.com/username/stocktax/src/processors"
	"github.com/username/stocktax/src/services"
)

// stubReportService serves canned data so handler behavior can be tested in
// isolation.
type stubReportService struct {
	rows []models.LedgerRow
	err  error
}

func (s *stubReportService) ProcessUpload(_ io.Reader, accountID, source, filename string) (*services.UploadSummary, error) {
	return nil, nil
}

func (s *stubReportService) GetLedger(string) ([]models.LedgerRow, error) { return s.rows, s.err }
func (s *stubReportService) GetAnomalies(string) ([]models.AnomalyRecord, error) {
	return nil, s.err
}
func (s *stubReportService) GetHoldings(string) ([]models.LotState, error) { return nil, s.err }
func (s *stubReportService) GetAnnualSummaries(string) ([]models.AnnualSummaryRow, error) {
	return nil, s.err
}
func (s *stubReportService) GetDividendSummaries(string) ([]models.DividendYearSummary, error) {
	return nil, s.err
}
func (s *stubReportService) ExportReports(string) ([]string, error) { return nil, s.err }
func (s *stubReportService) InvalidateAccountCache(string)          {}

func TestHandleGetLedger_RequiresAccount(t *testing.T) {
	handler := NewReportHandler(&stubReportService{})

	rec := httptest.NewRecorder()
	handler.HandleGetLedger(rec, httptest.NewRequest(http.MethodGet, "/api/ledger", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetLedger_SetsETag(t *testing.T) {
	handler := NewReportHandler(&stubReportService{
		rows: []models.LedgerRow{{
			AccountID: "ACC1", Symbol: "US.AAPL", Action: models.ActionSell,
			Quantity:         decimal.NewFromInt(10),
			RealizedGainLoss: decimal.NewFromInt(50),
			ExecutedAt:       time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		}},
	})

	rec := httptest.NewRecorder()
	handler.HandleGetLedger(rec, httptest.NewRequest(http.MethodGet, "/api/ledger?account_id=ACC1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/ledger?account_id=ACC1", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.HandleGetLedger(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestHandleGetLedger_OutOfOrderMapsTo422(t *testing.T) {
	handler := NewReportHandler(&stubReportService{
		err: &processors.DataOrderingError{
			AccountID: "ACC1", Symbol: "US.AAPL",
			Previous: time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC),
			Current:  time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		},
	})

	rec := httptest.NewRecorder()
	handler.HandleGetLedger(rec, httptest.NewRequest(http.MethodGet, "/api/ledger?account_id=ACC1", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
