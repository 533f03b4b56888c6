package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotState is the running moving-average position for one (account, symbol)
// key. It is owned exclusively by the lot ledger for the duration of a run.
//
// AvgUnitCost is per effective unit: for options it already includes the
// contract multiplier, so OpenQuantity*AvgUnitCost is always the total
// remaining cost basis. It is inert while OpenQuantity is zero and is only
// rewritten by the next acquisition.
type LotState struct {
	AccountID    string          `json:"account_id"`
	Symbol       string          `json:"symbol"`
	AssetType    AssetType       `json:"asset_type"`
	OpenQuantity decimal.Decimal `json:"open_quantity"`
	AvgUnitCost  decimal.Decimal `json:"avg_unit_cost"`
	Currency     string          `json:"currency"` // currency of the most recent acquisition
	Multiplier   int64           `json:"multiplier"`
	LastTradeAt  time.Time       `json:"last_trade_at"`
}

// TotalCostBasis returns the remaining basis of the open position.
func (l *LotState) TotalCostBasis() decimal.Decimal {
	return l.OpenQuantity.Mul(l.AvgUnitCost)
}

// LedgerRow is one resolved disposal, the engine's primary output.
// Rows are immutable once emitted.
type LedgerRow struct {
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	AssetType AssetType `json:"asset_type"`
	Action    Action    `json:"action"`

	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"` // execution price per share, zero for expirations

	// MatchedUnitCost is the moving-average cost per share equivalent (the
	// contract multiplier divided back out for options), rounded to 4 dp to
	// match the broker's report precision.
	MatchedUnitCost  decimal.Decimal `json:"matched_unit_cost"`
	Proceeds         decimal.Decimal `json:"proceeds"`           // gross, pre-fee: quantity x multiplier x unit price
	CostBasis        decimal.Decimal `json:"cost_basis"`         // quantity x moving-average effective unit cost
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss"` // in Currency, fee deducted
	Currency         string          `json:"currency"`
	FeeTotal         decimal.Decimal `json:"fee_total"`
	ExecutedAt       time.Time       `json:"executed_at"`
	Note             string          `json:"note,omitempty"`
}

// TaxYear returns the calendar year the disposal falls into.
func (r LedgerRow) TaxYear() int {
	return r.ExecutedAt.Year()
}

// AnomalyReason encodes why the engine refused to resolve a transaction.
type AnomalyReason string

const (
	AnomalyOversell               AnomalyReason = "OVERSELL"
	AnomalyNoOpeningPosition      AnomalyReason = "NO_OPENING_POSITION"
	AnomalyUnrecognizedInstrument AnomalyReason = "UNRECOGNIZED_INSTRUMENT_TYPE"
)

// AnomalyRecord captures a transaction the engine could not safely resolve.
// Anomalies are surfaced for manual review and never silently dropped.
type AnomalyRecord struct {
	ID          string            `json:"id"`
	Reason      AnomalyReason     `json:"reason"`
	Detail      string            `json:"detail"`
	Transaction TransactionRecord `json:"transaction"`
}

// CashFlowEntry is a dividend or withholding event passed through the ledger
// untouched by lot accounting.
type CashFlowEntry struct {
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol,omitempty"`
	Action     Action          `json:"action"` // DIVIDEND or TAX_WITHHOLDING
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	OccurredAt time.Time       `json:"occurred_at"`
	Note       string          `json:"note,omitempty"`
}

// AnnualSummaryRow aggregates realized gain/loss for one account, tax year
// and settlement currency. Fully derived from LedgerRows; recomputable.
type AnnualSummaryRow struct {
	AccountID string `json:"account_id"`
	Year      int    `json:"year"`
	Currency  string `json:"currency"`

	StockGainLoss  decimal.Decimal `json:"stock_gain_loss"`
	OptionGainLoss decimal.Decimal `json:"option_gain_loss"`
	TotalGainLoss  decimal.Decimal `json:"total_gain_loss"`

	TotalProceeds decimal.Decimal `json:"total_proceeds"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	DisposalCount int             `json:"disposal_count"`
}

// DividendYearSummary aggregates cash flow per account, year and currency.
type DividendYearSummary struct {
	AccountID   string          `json:"account_id"`
	Year        int             `json:"year"`
	Currency    string          `json:"currency"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	WithheldTax decimal.Decimal `json:"withheld_tax"`
}
