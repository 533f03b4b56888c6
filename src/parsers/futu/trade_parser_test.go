package futu

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stocktax/src/models"
)

const tradeCSV = `股票代码,数量,成交价格,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,100,150.25,买入,USD,1.05,2024-03-01 09:31:00
US.AAPL,50,155.00,卖出,USD,1.05,2024-03-05 10:00:00
US.TSLA240419C200000,2,3.50,OrderSide.BUY,USD,0.65,2024-03-02 11:00:00
US.NVDA,10,900.00,sell_short,USD,1.00,2024-03-03 12:00:00
`

func TestTradeParser_Parse(t *testing.T) {
	parser := NewTradeParser()

	txs, skipped, err := parser.Parse(strings.NewReader(tradeCSV), "ACC1")
	require.NoError(t, err)
	require.Len(t, txs, 4)
	assert.Empty(t, skipped)

	// Sorted by trade time regardless of file order.
	assert.Equal(t, "US.AAPL", txs[0].Symbol)
	assert.Equal(t, "US.TSLA240419C200000", txs[1].Symbol)
	assert.Equal(t, "US.NVDA", txs[2].Symbol)
	assert.Equal(t, "US.AAPL", txs[3].Symbol)

	buy := txs[0]
	assert.Equal(t, "ACC1", buy.AccountID)
	assert.Equal(t, models.ActionBuy, buy.Action)
	assert.Equal(t, models.AssetStock, buy.AssetType)
	assert.Equal(t, int64(1), buy.Multiplier)
	assert.True(t, buy.Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, buy.UnitPrice.Equal(decimal.RequireFromString("150.25")))
	assert.Equal(t, "USD", buy.Currency)
	assert.Equal(t, time.Date(2024, time.March, 1, 9, 31, 0, 0, time.UTC), buy.TradeTime)
	assert.NotEmpty(t, buy.HashID)

	option := txs[1]
	assert.Equal(t, models.AssetOption, option.AssetType)
	assert.Equal(t, int64(100), option.Multiplier)
	assert.Equal(t, models.ActionBuy, option.Action, "OrderSide.BUY normalizes to a buy")

	short := txs[2]
	assert.Equal(t, models.ActionSell, short.Action, "sell_short maps onto a plain sell")

	sell := txs[3]
	assert.Equal(t, models.ActionSell, sell.Action)
}

func TestTradeParser_SkipsMalformedRows(t *testing.T) {
	csv := `股票代码,数量,成交价格,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,abc,150.25,买入,USD,1.05,2024-03-01 09:31:00
US.AAPL,10,not-a-price,买入,USD,1.05,2024-03-01 09:32:00
US.AAPL,10,150.25,持仓,USD,1.05,2024-03-01 09:33:00
US.AAPL,10,150.25,买入,USD,1.05,yesterday
,10,150.25,买入,USD,1.05,2024-03-01 09:34:00
US.AAPL,0,150.25,买入,USD,1.05,2024-03-01 09:36:00
US.AAPL,10,150.25,买入,USD,1.05,2024-03-01 09:35:00
`
	parser := NewTradeParser()

	txs, skipped, err := parser.Parse(strings.NewReader(csv), "ACC1")
	require.NoError(t, err)
	require.Len(t, txs, 1, "only the well-formed row survives")
	assert.True(t, txs[0].Quantity.Equal(decimal.NewFromInt(10)))

	// Every dropped row is reported back, with its file line number.
	require.Len(t, skipped, 6)
	assert.Equal(t, 2, skipped[0].Line)
	assert.Contains(t, skipped[0].Reason, "invalid quantity")
	assert.Contains(t, skipped[5].Reason, "zero quantity")
}

func TestTradeParser_RejectsZeroQuantity(t *testing.T) {
	csv := `股票代码,数量,成交价格,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,0,150.25,买入,USD,1.05,2024-03-01 09:31:00
US.AAPL,0,150.25,卖出,USD,1.05,2024-03-01 09:32:00
`
	parser := NewTradeParser()

	txs, skipped, err := parser.Parse(strings.NewReader(csv), "ACC1")
	require.NoError(t, err)
	assert.Empty(t, txs, "zero-quantity trades must never reach the engine")
	require.Len(t, skipped, 2)
	assert.Contains(t, skipped[0].Reason, "zero quantity")
	assert.Contains(t, skipped[1].Reason, "zero quantity")
}

func TestTradeParser_MissingColumnFailsFile(t *testing.T) {
	csv := `股票代码,数量,买卖方向,结算币种,合计手续费,交易时间
US.AAPL,10,买入,USD,1.05,2024-03-01 09:31:00
`
	parser := NewTradeParser()

	_, _, err := parser.Parse(strings.NewReader(csv), "ACC1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "成交价格")
}

func TestTradeParser_HeaderBOM(t *testing.T) {
	parser := NewTradeParser()

	txs, _, err := parser.Parse(strings.NewReader("\ufeff"+tradeCSV), "ACC1")
	require.NoError(t, err)
	assert.Len(t, txs, 4)
}

func TestTradeParser_HashIsStable(t *testing.T) {
	parser := NewTradeParser()

	first, _, err := parser.Parse(strings.NewReader(tradeCSV), "ACC1")
	require.NoError(t, err)
	second, _, err := parser.Parse(strings.NewReader(tradeCSV), "ACC1")
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].HashID, second[i].HashID)
	}

	other, _, err := parser.Parse(strings.NewReader(tradeCSV), "ACC2")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].HashID, other[0].HashID, "account is part of the dedup key")
}

func TestCashFlowParser_Parse(t *testing.T) {
	csv := `交易时间,币种,金额,描述,账户ID
2024-03-10 00:00:00,USD,24.50,AAPL 股息入账,ACC9
2024-03-10 00:00:01,USD,-2.45,AAPL 股息预扣税,ACC9
2024-03-11 00:00:00,USD,5000.00,存入资金,ACC9
2024-04-02 00:00:00,HKD,120.00,Cash Dividend 00700,
2024-04-03 00:00:00,USD,abc,MSFT 股息入账,ACC9
`
	parser := NewCashFlowParser()

	txs, skipped, err := parser.Parse(strings.NewReader(csv), "FALLBACK")
	require.NoError(t, err)
	require.Len(t, txs, 3, "deposits are not tax events")
	require.Len(t, skipped, 1, "a deliberately ignored flow is not a skipped row")
	assert.Contains(t, skipped[0].Reason, "invalid amount")

	div := txs[0]
	assert.Equal(t, models.ActionDividend, div.Action)
	assert.Equal(t, "ACC9", div.AccountID)
	assert.True(t, div.CashAmount.Equal(decimal.RequireFromString("24.50")))
	assert.Equal(t, "AAPL 股息入账", div.Note)

	wht := txs[1]
	assert.Equal(t, models.ActionTaxWithholding, wht.Action, "withholding wins over the dividend keyword")
	assert.True(t, wht.CashAmount.IsNegative())

	hk := txs[2]
	assert.Equal(t, models.ActionDividend, hk.Action)
	assert.Equal(t, "FALLBACK", hk.AccountID, "empty account column falls back to the upload account")
	assert.Equal(t, "HKD", hk.Currency)
}

func TestSplitsParser_Parse(t *testing.T) {
	csv := `日期,股票代码,比例
2024-03-15,US.FOO,2:1
2024-06-30,US.BAR,1:2
2024-07-01,US.BAZ,bogus
`
	parser := NewSplitsParser()

	txs, skipped, err := parser.Parse(strings.NewReader(csv), "ACC1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, 4, skipped[0].Line)

	fwd := txs[0]
	assert.Equal(t, models.ActionSplit, fwd.Action)
	assert.Equal(t, "US.FOO", fwd.Symbol)
	assert.Equal(t, int64(2), fwd.SplitNum)
	assert.Equal(t, int64(1), fwd.SplitDen)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), fwd.TradeTime)

	rev := txs[1]
	assert.Equal(t, int64(1), rev.SplitNum)
	assert.Equal(t, int64(2), rev.SplitDen)
}
