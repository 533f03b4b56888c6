package processors

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/stocktax/src/instruments"
	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/models"
)

type lotKey struct {
	accountID string
	symbol    string
}

// LotLedger applies a normalized transaction stream in order, maintaining one
// moving weighted-average LotState per (account, symbol) key. It owns all lot
// state for the duration of a run; nothing else mutates it.
type LotLedger struct {
	refTime  time.Time // reference day for deciding whether option expiries have passed
	resolver *disposalResolver

	lots     map[lotKey]*models.LotState
	lotOrder []lotKey // first-seen order, keeps output deterministic
	lastSeen map[lotKey]time.Time

	rows      []models.LedgerRow
	anomalies []models.AnomalyRecord
	cashFlows []models.CashFlowEntry
}

// NewLotLedger creates a ledger for one accounting run. refTime is the day
// option contracts are judged expired against, normally time.Now().
func NewLotLedger(refTime time.Time) *LotLedger {
	return &LotLedger{
		refTime:  refTime,
		resolver: newDisposalResolver(),
		lots:     make(map[lotKey]*models.LotState),
		lastSeen: make(map[lotKey]time.Time),
	}
}

// Run applies every transaction in order, closes out expired option
// positions, and returns the full result. The input must already be sorted by
// (account, symbol, trade time); a violation aborts with a DataOrderingError.
func (l *LotLedger) Run(txs []models.TransactionRecord) (RunResult, error) {
	for _, tx := range txs {
		if err := l.Apply(tx); err != nil {
			return RunResult{}, err
		}
	}
	l.closeExpiredOptions()
	return l.Result(), nil
}

// Apply processes a single transaction against the ledger state.
func (l *LotLedger) Apply(tx models.TransactionRecord) error {
	key := lotKey{tx.AccountID, tx.Symbol}
	if prev, ok := l.lastSeen[key]; ok && tx.TradeTime.Before(prev) {
		return &DataOrderingError{
			AccountID: tx.AccountID,
			Symbol:    tx.Symbol,
			Previous:  prev,
			Current:   tx.TradeTime,
		}
	}
	l.lastSeen[key] = tx.TradeTime

	switch tx.Action {
	case models.ActionBuy:
		if tx.Quantity.IsZero() {
			l.flag(tx, models.AnomalyUnrecognizedInstrument,
				fmt.Sprintf("buy of %s with zero quantity", tx.Symbol))
			break
		}
		l.acquire(key, tx, tx.AbsQuantity())

	case models.ActionSell:
		if tx.Quantity.IsZero() {
			l.flag(tx, models.AnomalyUnrecognizedInstrument,
				fmt.Sprintf("sell of %s with zero quantity", tx.Symbol))
			break
		}
		l.dispose(key, tx, tx.AbsQuantity())

	case models.ActionOptionAssign:
		switch {
		case tx.Quantity.IsPositive():
			l.acquire(key, tx, tx.Quantity)
		case tx.Quantity.IsNegative():
			l.dispose(key, tx, tx.Quantity.Neg())
		default:
			l.flag(tx, models.AnomalyUnrecognizedInstrument, "assignment with zero quantity")
		}

	case models.ActionOptionExpire:
		l.expire(key, tx)

	case models.ActionDividend, models.ActionTaxWithholding:
		l.cashFlows = append(l.cashFlows, models.CashFlowEntry{
			AccountID:  tx.AccountID,
			Symbol:     tx.Symbol,
			Action:     tx.Action,
			Amount:     tx.CashAmount,
			Currency:   tx.Currency,
			OccurredAt: tx.TradeTime,
			Note:       tx.Note,
		})

	case models.ActionSplit:
		l.split(key, tx)

	default:
		l.flag(tx, models.AnomalyUnrecognizedInstrument,
			fmt.Sprintf("unhandled action %q for %s", tx.Action, tx.Symbol))
	}
	return nil
}

// Result returns everything accumulated so far. Open lots are reported in
// first-seen order.
func (l *LotLedger) Result() RunResult {
	var open []models.LotState
	for _, key := range l.lotOrder {
		lot := l.lots[key]
		if lot.OpenQuantity.IsPositive() {
			open = append(open, *lot)
		}
	}
	return RunResult{
		LedgerRows: l.rows,
		Anomalies:  l.anomalies,
		CashFlows:  l.cashFlows,
		OpenLots:   open,
	}
}

// lot returns the state for key, creating it lazily on first acquisition.
func (l *LotLedger) lot(key lotKey, tx models.TransactionRecord) *models.LotState {
	if existing, ok := l.lots[key]; ok {
		return existing
	}
	lot := &models.LotState{
		AccountID:    key.accountID,
		Symbol:       key.symbol,
		AssetType:    tx.AssetType,
		OpenQuantity: decimal.Zero,
		AvgUnitCost:  decimal.Zero,
		Currency:     tx.Currency,
		Multiplier:   tx.Multiplier,
	}
	l.lots[key] = lot
	l.lotOrder = append(l.lotOrder, key)
	return lot
}

// acquire folds a purchase (or assignment-receive) into the moving average.
// The whole fee goes into the acquired lot's cost basis.
func (l *LotLedger) acquire(key lotKey, tx models.TransactionRecord, qty decimal.Decimal) {
	lot := l.lot(key, tx)

	mult := decimal.NewFromInt(tx.Multiplier)
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	effectivePrice := tx.UnitPrice.Mul(mult)

	newQty := lot.OpenQuantity.Add(qty)
	totalCost := lot.OpenQuantity.Mul(lot.AvgUnitCost).Add(qty.Mul(effectivePrice)).Add(tx.FeeTotal)
	lot.AvgUnitCost = totalCost.Div(newQty)
	lot.OpenQuantity = newQty
	lot.Currency = tx.Currency
	lot.LastTradeAt = tx.TradeTime
}

// dispose resolves a sale or assignment-deliver. An unresolvable disposal is
// flagged whole: the lot is never partially applied.
func (l *LotLedger) dispose(key lotKey, tx models.TransactionRecord, qty decimal.Decimal) {
	lot := l.lots[key]
	row, anomaly := l.resolver.resolve(lot, tx, qty)
	if anomaly != nil {
		l.anomalies = append(l.anomalies, *anomaly)
		return
	}
	l.rows = append(l.rows, *row)
	lot.OpenQuantity = lot.OpenQuantity.Sub(qty)
	lot.LastTradeAt = tx.TradeTime
	// AvgUnitCost is intentionally untouched: the moving-average method keeps
	// one blended cost until the next acquisition, even at quantity zero.
}

// expire closes the full remaining quantity of an option contract at price 0.
func (l *LotLedger) expire(key lotKey, tx models.TransactionRecord) {
	lot := l.lots[key]
	if lot == nil || lot.OpenQuantity.IsZero() {
		l.flag(tx, models.AnomalyNoOpeningPosition,
			fmt.Sprintf("expiration of %s with no open position", tx.Symbol))
		return
	}
	l.dispose(key, tx, lot.OpenQuantity)
}

// split rescales the open quantity by num:den, preserving total cost basis.
func (l *LotLedger) split(key lotKey, tx models.TransactionRecord) {
	if tx.SplitNum <= 0 || tx.SplitDen <= 0 {
		l.flag(tx, models.AnomalyUnrecognizedInstrument,
			fmt.Sprintf("split for %s with invalid ratio %d:%d", tx.Symbol, tx.SplitNum, tx.SplitDen))
		return
	}
	lot := l.lots[key]
	if lot == nil || lot.OpenQuantity.IsZero() {
		logger.L.Debug("Split with no open position, ignoring",
			"accountID", tx.AccountID, "symbol", tx.Symbol)
		return
	}
	num := decimal.NewFromInt(tx.SplitNum)
	den := decimal.NewFromInt(tx.SplitDen)
	lot.OpenQuantity = lot.OpenQuantity.Mul(num).Div(den)
	lot.AvgUnitCost = lot.AvgUnitCost.Mul(den).Div(num)
	lot.LastTradeAt = tx.TradeTime
}

// closeExpiredOptions synthesizes an expiration for every option lot still
// open past its contract expiry, one ledger row per contract, dated at the
// expiry day. Contracts whose expiry cannot be decoded fall back to the last
// trade date, noted on the row.
func (l *LotLedger) closeExpiredOptions() {
	for _, key := range l.lotOrder {
		lot := l.lots[key]
		if lot.AssetType != models.AssetOption || !lot.OpenQuantity.IsPositive() {
			continue
		}

		expiry, err := instruments.ExpirationDate(lot.Symbol)
		note := "option expired worthless"
		if err != nil {
			expiry = lot.LastTradeAt
			note = "option expired worthless (expiry unparseable, last trade date used)"
			logger.L.Warn("Option expiry unparseable, falling back to last trade date",
				"symbol", lot.Symbol, "error", err)
		}
		if !instruments.IsExpired(expiry, l.refTime) {
			continue
		}

		l.expire(key, models.TransactionRecord{
			AccountID:  key.accountID,
			Symbol:     key.symbol,
			AssetType:  models.AssetOption,
			Action:     models.ActionOptionExpire,
			Quantity:   lot.OpenQuantity,
			UnitPrice:  decimal.Zero,
			Multiplier: lot.Multiplier,
			Currency:   lot.Currency,
			FeeTotal:   decimal.Zero,
			TradeTime:  expiry,
			Note:       note,
		})
	}
}

func (l *LotLedger) flag(tx models.TransactionRecord, reason models.AnomalyReason, detail string) {
	l.anomalies = append(l.anomalies, *l.resolver.flag(tx, reason, detail))
}
