package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action classifies what a normalized transaction does to a position.
// The set is closed: the ledger and the resolver switch exhaustively over it,
// and anything a parser cannot map onto it must never reach the engine.
type Action string

const (
	ActionBuy            Action = "BUY"
	ActionSell           Action = "SELL"
	ActionOptionAssign   Action = "OPTION_ASSIGN"
	ActionOptionExpire   Action = "OPTION_EXPIRE"
	ActionDividend       Action = "DIVIDEND"
	ActionTaxWithholding Action = "TAX_WITHHOLDING"
	ActionSplit          Action = "SPLIT"
)

// AssetType distinguishes instrument kinds for reporting subtotals and for
// the option contract multiplier.
type AssetType string

const (
	AssetStock  AssetType = "STOCK"
	AssetOption AssetType = "OPTION"
)

// TransactionRecord is the canonical, normalized representation of one broker
// event. Parsers populate every field; the engine assumes well-typed input.
type TransactionRecord struct {
	ID        int64     `json:"id,omitempty"` // database primary key
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"` // broker-native code, e.g. "US.AAPL" or "US.TSLA240419C200000"
	AssetType AssetType `json:"asset_type"`
	Action    Action    `json:"action"`

	// Quantity is positive for BUY/SELL. For OPTION_ASSIGN the sign carries
	// direction: positive receives shares, negative delivers them. For
	// OPTION_EXPIRE and SPLIT it is ignored.
	Quantity decimal.Decimal `json:"quantity"`

	// UnitPrice is per share (per underlying unit for options, before the
	// contract multiplier).
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Multiplier int64           `json:"multiplier"` // 1 for stock, 100 for option contracts
	Currency   string          `json:"currency"`
	FeeTotal   decimal.Decimal `json:"fee_total"` // in Currency, same as UnitPrice

	// CashAmount is the signed cash movement for DIVIDEND and TAX_WITHHOLDING
	// records (withholding arrives negative from the broker). Unused for trades.
	CashAmount decimal.Decimal `json:"cash_amount,omitempty"`

	// SplitNum/SplitDen describe a SPLIT ratio num:den, e.g. 2:1 doubles the
	// open quantity, 1:2 halves it. Total cost basis is preserved.
	SplitNum int64 `json:"split_num,omitempty"`
	SplitDen int64 `json:"split_den,omitempty"`

	TradeTime time.Time `json:"trade_time"`
	Note      string    `json:"note,omitempty"`
	HashID    string    `json:"hash_id"` // dedup key, derived from source fields
}

// SkippedRow records an input row a parser could not normalize. Skipped rows
// are surfaced in the upload summary so data loss is visible to the operator,
// not just in server logs.
type SkippedRow struct {
	Line   int    `json:"line"` // 1-based line number in the uploaded file
	Reason string `json:"reason"`
}

// IsDisposal reports whether applying the record reduces an open position.
func (t TransactionRecord) IsDisposal() bool {
	switch t.Action {
	case ActionSell, ActionOptionExpire:
		return true
	case ActionOptionAssign:
		return t.Quantity.IsNegative()
	}
	return false
}

// IsAcquisition reports whether applying the record increases an open position.
func (t TransactionRecord) IsAcquisition() bool {
	switch t.Action {
	case ActionBuy:
		return true
	case ActionOptionAssign:
		return t.Quantity.IsPositive()
	}
	return false
}

// AbsQuantity returns the unsigned quantity of the record.
func (t TransactionRecord) AbsQuantity() decimal.Decimal {
	return t.Quantity.Abs()
}
