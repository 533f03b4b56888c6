package services

import (
	"errors"
	"io"

	"github.com/username/stocktax/src/models"
)

var (
	ErrParsingFailed    = errors.New("parsing failed")
	ErrProcessingFailed = errors.New("processing failed")
)

// UploadSummary reports what an upload contributed to the transaction store.
// SkippedRows lists the input lines the parser could not normalize, so the
// operator sees data loss in the response rather than only in server logs.
type UploadSummary struct {
	UploadID       string              `json:"upload_id"`
	AccountID      string              `json:"account_id"`
	Source         string              `json:"source"`
	ParsedCount    int                 `json:"parsed_count"`
	InsertedCount  int                 `json:"inserted_count"`
	DuplicateCount int                 `json:"duplicate_count"`
	SkippedCount   int                 `json:"skipped_count"`
	SkippedRows    []models.SkippedRow `json:"skipped_rows,omitempty"`
}

// ReportService is the core service: it ingests broker files, runs the
// accounting engine over the stored stream, and exposes the results.
type ReportService interface {
	ProcessUpload(fileReader io.Reader, accountID, source, filename string) (*UploadSummary, error)
	GetLedger(accountID string) ([]models.LedgerRow, error)
	GetAnomalies(accountID string) ([]models.AnomalyRecord, error)
	GetHoldings(accountID string) ([]models.LotState, error)
	GetAnnualSummaries(accountID string) ([]models.AnnualSummaryRow, error)
	GetDividendSummaries(accountID string) ([]models.DividendYearSummary, error)
	ExportReports(accountID string) ([]string, error)
	InvalidateAccountCache(accountID string)
}
