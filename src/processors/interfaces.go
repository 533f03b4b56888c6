package processors

import (
	"github.com/username/stocktax/src/models"
)

// RunResult bundles everything one accounting pass produces. A completed run
// always yields ledger rows, anomalies and cash flows together, even when
// anomalies are present.
type RunResult struct {
	LedgerRows []models.LedgerRow
	Anomalies  []models.AnomalyRecord
	CashFlows  []models.CashFlowEntry
	OpenLots   []models.LotState
}

// LedgerEngine consumes a normalized transaction stream, pre-sorted by
// (account, symbol, trade time), and produces the run result. Only a
// DataOrderingError aborts a run.
type LedgerEngine interface {
	Run(txs []models.TransactionRecord) (RunResult, error)
}

// AnnualAggregator groups resolved disposals into per-year summaries.
type AnnualAggregator interface {
	Aggregate(rows []models.LedgerRow) []models.AnnualSummaryRow
}

// DividendProcessor summarizes dividend and withholding cash flows per year.
type DividendProcessor interface {
	Summarize(flows []models.CashFlowEntry) []models.DividendYearSummary
}
