package processors

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/username/stocktax/src/models"
)

// reportPrecision matches the 4-decimal rounding of the broker's own reports.
const reportPrecision = 4

// disposalResolver turns a disposal transaction plus the current lot state
// into a ledger row, or refuses and explains why. It is pure: the ledger owns
// all state mutation.
type disposalResolver struct{}

func newDisposalResolver() *disposalResolver {
	return &disposalResolver{}
}

// resolve computes the ledger row for disposing qty units against lot.
// qty must be positive. A nil return for the row means the transaction was
// routed to the anomaly list instead and the lot must be left unchanged.
func (r *disposalResolver) resolve(lot *models.LotState, tx models.TransactionRecord, qty decimal.Decimal) (*models.LedgerRow, *models.AnomalyRecord) {
	if lot == nil || lot.OpenQuantity.IsZero() {
		return nil, r.flag(tx, models.AnomalyNoOpeningPosition,
			fmt.Sprintf("disposal of %s %s with no open position", qty, tx.Symbol))
	}
	if qty.GreaterThan(lot.OpenQuantity) {
		return nil, r.flag(tx, models.AnomalyOversell,
			fmt.Sprintf("disposal of %s %s exceeds open quantity %s", qty, tx.Symbol, lot.OpenQuantity))
	}

	mult := decimal.NewFromInt(tx.Multiplier)
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}

	// AvgUnitCost already includes the contract multiplier; bring the
	// execution price onto the same footing. Expirations carry price zero.
	effectivePrice := tx.UnitPrice.Mul(mult)
	if tx.Action == models.ActionOptionExpire {
		effectivePrice = decimal.Zero
	}

	proceeds := qty.Mul(effectivePrice)
	costBasis := qty.Mul(lot.AvgUnitCost)
	realized := proceeds.Sub(costBasis).Sub(tx.FeeTotal)

	row := &models.LedgerRow{
		AccountID:        tx.AccountID,
		Symbol:           tx.Symbol,
		AssetType:        lot.AssetType,
		Action:           tx.Action,
		Quantity:         qty,
		UnitPrice:        effectivePrice.Div(mult),
		MatchedUnitCost:  lot.AvgUnitCost.Div(mult).Round(reportPrecision),
		Proceeds:         proceeds.Round(reportPrecision),
		CostBasis:        costBasis.Round(reportPrecision),
		RealizedGainLoss: realized.Round(reportPrecision),
		Currency:         tx.Currency,
		FeeTotal:         tx.FeeTotal,
		ExecutedAt:       tx.TradeTime,
		Note:             tx.Note,
	}
	return row, nil
}

func (r *disposalResolver) flag(tx models.TransactionRecord, reason models.AnomalyReason, detail string) *models.AnomalyRecord {
	return &models.AnomalyRecord{
		ID:          uuid.NewString(),
		Reason:      reason,
		Detail:      detail,
		Transaction: tx,
	}
}
