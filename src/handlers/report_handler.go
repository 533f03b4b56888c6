package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/processors"
	"github.com/username/stocktax/src/services"
	"github.com/username/stocktax/src/utils"
)

// ReportHandler serves the accounting engine's outputs.
type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(service services.ReportService) *ReportHandler {
	return &ReportHandler{
		reportService: service,
	}
}

func accountFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		utils.SendJSONError(w, "'account_id' query parameter is required", http.StatusBadRequest)
		return "", false
	}
	return accountID, true
}

// sendEngineError maps service failures to HTTP statuses. Out-of-order input
// is the client's data problem, not a server fault.
func sendEngineError(w http.ResponseWriter, accountID string, err error) {
	var ordErr *processors.DataOrderingError
	if errors.As(err, &ordErr) {
		logger.L.Warn("Engine run aborted on out-of-order data", "accountID", accountID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("transaction stream is out of order: %v", ordErr), http.StatusUnprocessableEntity)
		return
	}
	if errors.Is(err, services.ErrProcessingFailed) {
		logger.L.Warn("Engine run failed", "accountID", accountID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("processing failed: %v", err), http.StatusUnprocessableEntity)
		return
	}
	logger.L.Error("Internal error serving report data", "accountID", accountID, "error", err)
	utils.SendJSONError(w, "An internal error occurred.", http.StatusInternalServerError)
}

func (h *ReportHandler) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	rows, err := h.reportService.GetLedger(accountID)
	if err != nil {
		sendEngineError(w, accountID, err)
		return
	}

	etag, err := utils.GenerateETag(rows)
	if err == nil {
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	utils.SendJSON(w, rows, http.StatusOK)
}

func (h *ReportHandler) HandleGetAnomalies(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	anomalies, err := h.reportService.GetAnomalies(accountID)
	if err != nil {
		sendEngineError(w, accountID, err)
		return
	}
	utils.SendJSON(w, anomalies, http.StatusOK)
}

func (h *ReportHandler) HandleGetAnnualSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	summaries, err := h.reportService.GetAnnualSummaries(accountID)
	if err != nil {
		sendEngineError(w, accountID, err)
		return
	}
	utils.SendJSON(w, summaries, http.StatusOK)
}

func (h *ReportHandler) HandleGetDividends(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	summaries, err := h.reportService.GetDividendSummaries(accountID)
	if err != nil {
		sendEngineError(w, accountID, err)
		return
	}
	utils.SendJSON(w, summaries, http.StatusOK)
}

func (h *ReportHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}

	holdings, err := h.reportService.GetHoldings(accountID)
	if err != nil {
		sendEngineError(w, accountID, err)
		return
	}
	utils.SendJSON(w, holdings, http.StatusOK)
}

type exportResponse struct {
	Paths []string `json:"paths"`
}

func (h *ReportHandler) HandleExportReports(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		accountID = r.FormValue("account_id")
	}
	if accountID == "" {
		utils.SendJSONError(w, "'account_id' is required", http.StatusBadRequest)
		return
	}

	paths, err := h.reportService.ExportReports(accountID)
	if err != nil {
		sendEngineError(w, accountID, err)
		return
	}

	logger.L.Info("Report export complete", "accountID", accountID, "files", len(paths))
	utils.SendJSON(w, exportResponse{Paths: paths}, http.StatusOK)
}
