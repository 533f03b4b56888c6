// Package futu parses Futu (moomoo) broker export files: trade history,
// cash-flow statements and the stock-split sidecar.
package futu

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/stocktax/src/instruments"
	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/models"
)

const tradeTimeLayout = "2006-01-02 15:04:05"

// Trade history export columns. Headers are the Chinese names the Futu
// download tooling writes.
const (
	colSymbol    = "股票代码"
	colQuantity  = "数量"
	colPrice     = "成交价格"
	colDirection = "买卖方向"
	colCurrency  = "结算币种"
	colFee       = "合计手续费"
	colTradeTime = "交易时间"
)

// directionMap normalizes the broker's direction strings. Short-sale legs
// map onto plain buy/sell: the engine flags anything it cannot match.
var directionMap = map[string]models.Action{
	"买入":         models.ActionBuy,
	"卖出":         models.ActionSell,
	"buy":        models.ActionBuy,
	"sell":       models.ActionSell,
	"buy_back":   models.ActionBuy,
	"sell_short": models.ActionSell,
}

type TradeParser struct{}

func NewTradeParser() *TradeParser {
	return &TradeParser{}
}

// Parse reads a trade history CSV and returns normalized records sorted by
// trade time, plus the rows that could not be normalized. A missing required
// column fails the whole file.
func (p *TradeParser) Parse(file io.Reader, accountID string) ([]models.TransactionRecord, []models.SkippedRow, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := indexColumns(header, colSymbol, colQuantity, colPrice, colDirection, colCurrency, colFee, colTradeTime)
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
		tx, err := p.parseRow(record, cols, accountID)
		if err != nil {
			logger.L.Warn("Skipping unparseable trade row", "row", i+2, "error", err)
			skipped = append(skipped, models.SkippedRow{Line: i + 2, Reason: err.Error()})
			continue
		}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TradeTime.Before(txs[j].TradeTime)
	})
	return txs, skipped, nil
}

func (p *TradeParser) parseRow(record []string, cols map[string]int, accountID string) (models.TransactionRecord, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	symbol := field(colSymbol)
	if symbol == "" {
		return models.TransactionRecord{}, fmt.Errorf("empty symbol")
	}

	action, err := normalizeDirection(field(colDirection))
	if err != nil {
		return models.TransactionRecord{}, err
	}

	qty, err := decimal.NewFromString(field(colQuantity))
	if err != nil {
		return models.TransactionRecord{}, fmt.Errorf("invalid quantity %q: %w", field(colQuantity), err)
	}
	if qty.IsZero() {
		return models.TransactionRecord{}, fmt.Errorf("zero quantity for %s", symbol)
	}
	price, err := decimal.NewFromString(field(colPrice))
	if err != nil {
		return models.TransactionRecord{}, fmt.Errorf("invalid price %q: %w", field(colPrice), err)
	}
	fee, err := decimal.NewFromString(field(colFee))
	if err != nil {
		return models.TransactionRecord{}, fmt.Errorf("invalid fee %q: %w", field(colFee), err)
	}
	tradeTime, err := time.Parse(tradeTimeLayout, field(colTradeTime))
	if err != nil {
		return models.TransactionRecord{}, fmt.Errorf("invalid trade time %q: %w", field(colTradeTime), err)
	}

	tx := models.TransactionRecord{
		AccountID:  accountID,
		Symbol:     symbol,
		AssetType:  instruments.Classify(symbol),
		Action:     action,
		Quantity:   qty.Abs(),
		UnitPrice:  price,
		Multiplier: instruments.Multiplier(symbol),
		Currency:   field(colCurrency),
		FeeTotal:   fee,
		TradeTime:  tradeTime,
	}
	tx.HashID = hashRecord(accountID, symbol, string(action), field(colQuantity), field(colPrice), field(colFee), field(colTradeTime))
	return tx, nil
}

// normalizeDirection lowercases a broker direction string, strips the
// OrderSide. enum prefix newer exports carry, and maps it to an action.
func normalizeDirection(raw string) (models.Action, error) {
	dir := strings.ToLower(strings.TrimSpace(raw))
	dir = strings.TrimPrefix(dir, "orderside.")
	if action, ok := directionMap[dir]; ok {
		return action, nil
	}
	return "", fmt.Errorf("unknown direction %q", raw)
}

// indexColumns maps required header names to their positions.
func indexColumns(header []string, required ...string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		// Futu exports are written utf-8-sig; drop the BOM off the first header.
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// hashRecord derives the dedup key from the source fields.
func hashRecord(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
