package futu

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/models"
)

// Cash-flow statement export columns.
const (
	colFlowTime     = "交易时间"
	colFlowCurrency = "币种"
	colFlowAmount   = "金额"
	colFlowDesc     = "描述"
	colFlowAccount  = "账户ID"
)

type CashFlowParser struct{}

func NewCashFlowParser() *CashFlowParser {
	return &CashFlowParser{}
}

// Parse reads a cash-flow statement CSV and keeps the dividend and
// withholding entries, classified by their description text. Deposits,
// transfers and other flows are not tax events and are dropped.
func (p *CashFlowParser) Parse(file io.Reader, accountID string) ([]models.TransactionRecord, []models.SkippedRow, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := indexColumns(header, colFlowTime, colFlowCurrency, colFlowAmount, colFlowDesc)
	if err != nil {
		return nil, nil, err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var txs []models.TransactionRecord
	var skipped []models.SkippedRow
	for i, record := range records {
		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		desc := field(colFlowDesc)
		action, ok := classifyCashFlow(desc)
		if !ok {
			continue
		}

		amount, err := decimal.NewFromString(field(colFlowAmount))
		if err != nil {
			logger.L.Warn("Skipping cash flow row with invalid amount", "row", i+2, "amount", field(colFlowAmount))
			skipped = append(skipped, models.SkippedRow{Line: i + 2, Reason: fmt.Sprintf("invalid amount %q", field(colFlowAmount))})
			continue
		}
		occurredAt, err := time.Parse(tradeTimeLayout, field(colFlowTime))
		if err != nil {
			logger.L.Warn("Skipping cash flow row with invalid time", "row", i+2, "time", field(colFlowTime))
			skipped = append(skipped, models.SkippedRow{Line: i + 2, Reason: fmt.Sprintf("invalid time %q", field(colFlowTime))})
			continue
		}

		account := field(colFlowAccount)
		if account == "" {
			account = accountID
		}

		tx := models.TransactionRecord{
			AccountID:  account,
			Action:     action,
			Multiplier: 1,
			Currency:   field(colFlowCurrency),
			CashAmount: amount,
			TradeTime:  occurredAt,
			Note:       desc,
		}
		tx.HashID = hashRecord(account, string(action), field(colFlowAmount), field(colFlowCurrency), field(colFlowTime), desc)
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TradeTime.Before(txs[j].TradeTime)
	})
	return txs, skipped, nil
}

// classifyCashFlow maps a statement description to a tax-relevant action.
// Withholding is checked first since its descriptions usually also mention
// the dividend.
func classifyCashFlow(desc string) (models.Action, bool) {
	lower := strings.ToLower(desc)
	switch {
	case strings.Contains(desc, "预扣"), strings.Contains(lower, "withholding"), strings.Contains(lower, "withheld"):
		return models.ActionTaxWithholding, true
	case strings.Contains(desc, "股息"), strings.Contains(desc, "分红"), strings.Contains(lower, "dividend"), strings.Contains(lower, "cash div"):
		return models.ActionDividend, true
	default:
		return "", false
	}
}
