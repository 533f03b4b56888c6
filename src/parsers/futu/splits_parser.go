package futu

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/username/stocktax/src/instruments"
	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/models"
)

// Split sidecar columns. The ratio is written num:den, so 2:1 doubles the
// share count and 1:2 is a reverse split.
const (
	colSplitDate   = "日期"
	colSplitSymbol = "股票代码"
	colSplitRatio  = "比例"
)

const splitDateLayout = "2006-01-02"

type SplitsParser struct{}

func NewSplitsParser() *SplitsParser {
	return &SplitsParser{}
}

// Parse reads the splits sidecar CSV into SPLIT records, one per row, dated
// at midnight of the split day so they sort before that day's trades.
func (p *SplitsParser) Parse(file io.Reader, accountID string) ([]models.TransactionRecord, []models.SkippedRow, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := indexColumns(header, colSplitDate, colSplitSymbol, colSplitRatio)
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
			idx := cols[name]
			if idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		day, err := time.Parse(splitDateLayout, field(colSplitDate))
		if err != nil {
			logger.L.Warn("Skipping split row with invalid date", "row", i+2, "date", field(colSplitDate))
			skipped = append(skipped, models.SkippedRow{Line: i + 2, Reason: fmt.Sprintf("invalid date %q", field(colSplitDate))})
			continue
		}
		num, den, err := parseSplitRatio(field(colSplitRatio))
		if err != nil {
			logger.L.Warn("Skipping split row with invalid ratio", "row", i+2, "ratio", field(colSplitRatio))
			skipped = append(skipped, models.SkippedRow{Line: i + 2, Reason: err.Error()})
			continue
		}
		symbol := field(colSplitSymbol)
		if symbol == "" {
			logger.L.Warn("Skipping split row with empty symbol", "row", i+2)
			skipped = append(skipped, models.SkippedRow{Line: i + 2, Reason: "empty symbol"})
			continue
		}

		tx := models.TransactionRecord{
			AccountID:  accountID,
			Symbol:     symbol,
			AssetType:  instruments.Classify(symbol),
			Action:     models.ActionSplit,
			Multiplier: instruments.Multiplier(symbol),
			SplitNum:   num,
			SplitDen:   den,
			TradeTime:  day,
		}
		tx.HashID = hashRecord(accountID, symbol, string(models.ActionSplit), field(colSplitRatio), field(colSplitDate))
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TradeTime.Before(txs[j].TradeTime)
	})
	return txs, skipped, nil
}

func parseSplitRatio(raw string) (num, den int64, err error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ratio %q is not in num:den form", raw)
	}
	num, err = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid ratio numerator %q: %w", parts[0], err)
	}
	den, err = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid ratio denominator %q: %w", parts[1], err)
	}
	if num <= 0 || den <= 0 {
		return 0, 0, fmt.Errorf("ratio %q must be positive", raw)
	}
	return num, den, nil
}
