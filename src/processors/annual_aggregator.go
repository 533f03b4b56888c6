package processors

import (
	"sort"

	"github.com/username/stocktax/src/models"
)

type annualAggregator struct{}

// NewAnnualAggregator returns the aggregator that rolls resolved disposals up
// into per account, tax year and currency summaries. It is stateless and safe
// to reuse across runs.
func NewAnnualAggregator() AnnualAggregator {
	return &annualAggregator{}
}

type summaryKey struct {
	accountID string
	year      int
	currency  string
}

// Aggregate groups ledger rows by (account, year, currency) and totals gains,
// proceeds, cost and fees. Output order is account, then year, then currency.
// Aggregating the same rows twice yields the same result.
func (a *annualAggregator) Aggregate(rows []models.LedgerRow) []models.AnnualSummaryRow {
	buckets := make(map[summaryKey]*models.AnnualSummaryRow)
	var order []summaryKey

	for _, row := range rows {
		key := summaryKey{row.AccountID, row.TaxYear(), row.Currency}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &models.AnnualSummaryRow{
				AccountID: key.accountID,
				Year:      key.year,
				Currency:  key.currency,
			}
			buckets[key] = bucket
			order = append(order, key)
		}

		switch row.AssetType {
		case models.AssetOption:
			bucket.OptionGainLoss = bucket.OptionGainLoss.Add(row.RealizedGainLoss)
		default:
			bucket.StockGainLoss = bucket.StockGainLoss.Add(row.RealizedGainLoss)
		}
		bucket.TotalGainLoss = bucket.TotalGainLoss.Add(row.RealizedGainLoss)
		bucket.TotalProceeds = bucket.TotalProceeds.Add(row.Proceeds)
		bucket.TotalCost = bucket.TotalCost.Add(row.CostBasis)
		bucket.TotalFees = bucket.TotalFees.Add(row.FeeTotal)
		bucket.DisposalCount++
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

	summaries := make([]models.AnnualSummaryRow, 0, len(order))
	for _, key := range order {
		bucket := buckets[key]
		bucket.TotalGainLoss = bucket.TotalGainLoss.Round(reportPrecision)
		bucket.StockGainLoss = bucket.StockGainLoss.Round(reportPrecision)
		bucket.OptionGainLoss = bucket.OptionGainLoss.Round(reportPrecision)
		bucket.TotalProceeds = bucket.TotalProceeds.Round(reportPrecision)
		bucket.TotalCost = bucket.TotalCost.Round(reportPrecision)
		bucket.TotalFees = bucket.TotalFees.Round(reportPrecision)
		summaries = append(summaries, *bucket)
	}
	return summaries
}

// TaxYears returns the distinct years present in the summaries, ascending.
func TaxYears(summaries []models.AnnualSummaryRow) []int {
	seen := make(map[int]bool)
	var years []int
	for _, s := range summaries {
		if !seen[s.Year] {
			seen[s.Year] = true
			years = append(years, s.Year)
		}
	}
	sort.Ints(years)
	return years
}
