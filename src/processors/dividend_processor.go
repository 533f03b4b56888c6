package processors

import (
	"sort"

	"github.com/username/stocktax/src/models"
)

type dividendProcessor struct{}

// NewDividendProcessor returns the processor that folds dividend and
// withholding cash flows into per account, year and currency totals.
func NewDividendProcessor() DividendProcessor {
	return &dividendProcessor{}
}

// Summarize totals cash flows per (account, year, currency). Dividends add to
// the gross amount, tax withholdings to the withheld total. Output order is
// account, then year, then currency.
func (d *dividendProcessor) Summarize(flows []models.CashFlowEntry) []models.DividendYearSummary {
	buckets := make(map[summaryKey]*models.DividendYearSummary)
	var order []summaryKey

	for _, flow := range flows {
		key := summaryKey{flow.AccountID, flow.OccurredAt.Year(), flow.Currency}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &models.DividendYearSummary{
				AccountID: key.accountID,
				Year:      key.year,
				Currency:  key.currency,
			}
			buckets[key] = bucket
			order = append(order, key)
		}

		switch flow.Action {
		case models.ActionTaxWithholding:
			bucket.WithheldTax = bucket.WithheldTax.Add(flow.Amount.Abs())
		default:
			bucket.GrossAmount = bucket.GrossAmount.Add(flow.Amount)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].accountID != order[j].accountID {
			return order[i].accountID < order[j].accountID
		}
		if order[i].year != order[j].year {
			return order[i].year < order[j].year
		}
		return order[i].currency < order[j].currency
	})

	summaries := make([]models.DividendYearSummary, 0, len(order))
	for _, key := range order {
		bucket := buckets[key]
		bucket.GrossAmount = bucket.GrossAmount.Round(reportPrecision)
		bucket.WithheldTax = bucket.WithheldTax.Round(reportPrecision)
		summaries = append(summaries, *bucket)
	}
	return summaries
}
