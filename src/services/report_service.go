package services

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/username/stocktax/src/config"
	"github.com/username/stocktax/src/database"
	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/models"
	"github.com/username/stocktax/src/parsers"
	"github.com/username/stocktax/src/processors"
	"github.com/username/stocktax/src/reports"
)

const (
	// Long-lived cache for the full engine run
	ckRunResult = "res_engine_run_acct_%s"

	// Short-lived, aggregate caches
	ckAnnualSummary   = "agg_annual_summary_acct_%s"
	ckDividendSummary = "agg_dividend_summary_acct_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type reportServiceImpl struct {
	aggregator   processors.AnnualAggregator
	dividends    processors.DividendProcessor
	reportWriter *reports.Writer
	emailService EmailService
	resultCache  *cache.Cache
	now          func() time.Time
}

func NewReportService(
	aggregator processors.AnnualAggregator,
	dividends processors.DividendProcessor,
	reportWriter *reports.Writer,
	emailService EmailService,
	resultCache *cache.Cache,
) ReportService {
	return &reportServiceImpl{
		aggregator:   aggregator,
		dividends:    dividends,
		reportWriter: reportWriter,
		emailService: emailService,
		resultCache:  resultCache,
		now:          time.Now,
	}
}

func (s *reportServiceImpl) ProcessUpload(fileReader io.Reader, accountID, source, filename string) (*UploadSummary, error) {
	overallStartTime := time.Now()
	logger.L.Info("ProcessUpload START", "accountID", accountID, "source", source, "filename", filename)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	txs, skippedRows, err := parser.Parse(fileReader, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	summary := &UploadSummary{
		UploadID:     uuid.NewString(),
		AccountID:    accountID,
		Source:       source,
		ParsedCount:  len(txs),
		SkippedCount: len(skippedRows),
		SkippedRows:  skippedRows,
	}
	if summary.SkippedCount > 0 {
		logger.L.Warn("Upload contained rows that could not be normalized",
			"accountID", accountID, "source", source, "skipped", summary.SkippedCount)
	}
	if len(txs) == 0 {
		logger.L.Warn("Upload contained no usable records", "accountID", accountID, "source", source)
		return summary, nil
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions
		(account_id, symbol, asset_type, action, quantity, unit_price, multiplier, currency, fee_total, cash_amount, split_num, split_den, trade_time, note, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		_, err := stmt.Exec(
			tx.AccountID, tx.Symbol, string(tx.AssetType), string(tx.Action),
			tx.Quantity.String(), tx.UnitPrice.String(), tx.Multiplier,
			tx.Currency, tx.FeeTotal.String(), tx.CashAmount.String(),
			tx.SplitNum, tx.SplitDen,
			tx.TradeTime.UTC().Format(time.RFC3339), tx.Note, tx.HashID,
		)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate transaction on upload", "accountID", tx.AccountID, "hash_id", tx.HashID)
				summary.DuplicateCount++
				continue
			}
			return nil, fmt.Errorf("error inserting transaction (symbol: %s): %w", tx.Symbol, err)
		}
		summary.InsertedCount++
	}

	if _, err := dbTx.Exec(
		`INSERT INTO uploads (upload_id, account_id, source, filename, record_count) VALUES (?, ?, ?, ?, ?)`,
		summary.UploadID, accountID, source, filename, summary.InsertedCount,
	); err != nil {
		return nil, fmt.Errorf("error recording upload: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transactions: %w", err)
	}

	s.InvalidateAccountCache(accountID)

	logger.L.Info("ProcessUpload END", "accountID", accountID,
		"inserted", summary.InsertedCount, "duplicates", summary.DuplicateCount,
		"duration", time.Since(overallStartTime))
	return summary, nil
}

// InvalidateAccountCache clears all cached data for an account, forcing a
// full recalculation on the next request.
func (s *reportServiceImpl) InvalidateAccountCache(accountID string) {
	keysToDelete := []string{
		fmt.Sprintf(ckRunResult, accountID),
		fmt.Sprintf(ckAnnualSummary, accountID),
		fmt.Sprintf(ckDividendSummary, accountID),
	}
	for _, key := range keysToDelete {
		s.resultCache.Delete(key)
	}
	logger.L.Info("Invalidated all caches for account", "accountID", accountID)
}

// getRunResult is the central function populating the engine-run cache on a
// cache miss.
func (s *reportServiceImpl) getRunResult(accountID string) (*processors.RunResult, error) {
	cacheKey := fmt.Sprintf(ckRunResult, accountID)
	if cached, found := s.resultCache.Get(cacheKey); found {
		if result, ok := cached.(*processors.RunResult); ok {
			logger.L.Debug("Engine run cache HIT", "accountID", accountID)
			return result, nil
		}
	}
	logger.L.Debug("Engine run cache MISS", "accountID", accountID)

	txs, err := s.fetchTransactions(accountID)
	if err != nil {
		return nil, err
	}
	if sidecar := s.loadSplitsSidecar(accountID); len(sidecar) > 0 {
		txs = mergeByTradeTime(txs, sidecar)
	}

	ledger := processors.NewLotLedger(s.now())
	result, err := ledger.Run(txs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	s.resultCache.Set(cacheKey, &result, cache.NoExpiration)
	return &result, nil
}

func (s *reportServiceImpl) GetLedger(accountID string) ([]models.LedgerRow, error) {
	result, err := s.getRunResult(accountID)
	if err != nil {
		return nil, err
	}
	return result.LedgerRows, nil
}

func (s *reportServiceImpl) GetAnomalies(accountID string) ([]models.AnomalyRecord, error) {
	result, err := s.getRunResult(accountID)
	if err != nil {
		return nil, err
	}
	return result.Anomalies, nil
}

func (s *reportServiceImpl) GetHoldings(accountID string) ([]models.LotState, error) {
	result, err := s.getRunResult(accountID)
	if err != nil {
		return nil, err
	}
	return result.OpenLots, nil
}

func (s *reportServiceImpl) GetAnnualSummaries(accountID string) ([]models.AnnualSummaryRow, error) {
	cacheKey := fmt.Sprintf(ckAnnualSummary, accountID)
	if cached, found := s.resultCache.Get(cacheKey); found {
		if summaries, ok := cached.([]models.AnnualSummaryRow); ok {
			return summaries, nil
		}
	}

	result, err := s.getRunResult(accountID)
	if err != nil {
		return nil, err
	}
	summaries := s.aggregator.Aggregate(result.LedgerRows)
	s.resultCache.Set(cacheKey, summaries, DefaultCacheExpiration)
	return summaries, nil
}

func (s *reportServiceImpl) GetDividendSummaries(accountID string) ([]models.DividendYearSummary, error) {
	cacheKey := fmt.Sprintf(ckDividendSummary, accountID)
	if cached, found := s.resultCache.Get(cacheKey); found {
		if summaries, ok := cached.([]models.DividendYearSummary); ok {
			return summaries, nil
		}
	}

	result, err := s.getRunResult(accountID)
	if err != nil {
		return nil, err
	}
	summaries := s.dividends.Summarize(result.CashFlows)
	s.resultCache.Set(cacheKey, summaries, DefaultCacheExpiration)
	return summaries, nil
}

// ExportReports writes all CSV artifacts for an account and, when an
// operator address is configured, sends the report-ready notification.
func (s *reportServiceImpl) ExportReports(accountID string) ([]string, error) {
	result, err := s.getRunResult(accountID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.GetAnnualSummaries(accountID)
	if err != nil {
		return nil, err
	}
	dividendSummaries, err := s.GetDividendSummaries(accountID)
	if err != nil {
		return nil, err
	}

	paths, err := s.reportWriter.WriteYearReports(result.LedgerRows, summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to write year reports: %w", err)
	}

	ledgerPath, err := s.reportWriter.WriteLedger(result.LedgerRows)
	if err != nil {
		return nil, fmt.Errorf("failed to write ledger export: %w", err)
	}
	paths = append(paths, ledgerPath)

	anomalyPath, err := s.reportWriter.WriteAnomalies(result.Anomalies)
	if err != nil {
		return nil, fmt.Errorf("failed to write anomaly export: %w", err)
	}
	paths = append(paths, anomalyPath)

	dividendPath, err := s.reportWriter.WriteDividendSummary(dividendSummaries)
	if err != nil {
		return nil, fmt.Errorf("failed to write dividend export: %w", err)
	}
	paths = append(paths, dividendPath)

	if config.Cfg != nil && config.Cfg.NotifyEmail != "" {
		if err := s.emailService.SendReportReadyEmail(config.Cfg.NotifyEmail, accountID, paths); err != nil {
			// The reports are on disk; a failed notification is not fatal.
			logger.L.Error("Failed to send report-ready email", "accountID", accountID, "error", err)
		}
	}

	return paths, nil
}

// fetchTransactions loads the account's full normalized stream from the
// store, ordered by trade time.
func (s *reportServiceImpl) fetchTransactions(accountID string) ([]models.TransactionRecord, error) {
	logger.L.Info("Fetching transactions from DB", "accountID", accountID)

	rows, err := database.DB.Query(`SELECT id, account_id, symbol, asset_type, action, quantity, unit_price, multiplier, currency, fee_total, cash_amount, split_num, split_den, trade_time, note, hash_id
		FROM transactions WHERE account_id = ? ORDER BY trade_time ASC, id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var txs []models.TransactionRecord
	for rows.Next() {
		var (
			tx                                        models.TransactionRecord
			assetType, action                         string
			quantity, unitPrice, feeTotal, cashAmount string
			tradeTime                                 string
			note, hashID                              sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Symbol, &assetType, &action,
			&quantity, &unitPrice, &tx.Multiplier, &tx.Currency, &feeTotal, &cashAmount,
			&tx.SplitNum, &tx.SplitDen, &tradeTime, &note, &hashID); err != nil {
			return nil, fmt.Errorf("error scanning transaction row for account %s: %w", accountID, err)
		}

		tx.AssetType = models.AssetType(assetType)
		tx.Action = models.Action(action)
		tx.Note = note.String
		tx.HashID = hashID.String
		if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt quantity %q for transaction %d: %w", quantity, tx.ID, err)
		}
		if tx.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("corrupt unit price %q for transaction %d: %w", unitPrice, tx.ID, err)
		}
		if tx.FeeTotal, err = decimal.NewFromString(feeTotal); err != nil {
			return nil, fmt.Errorf("corrupt fee %q for transaction %d: %w", feeTotal, tx.ID, err)
		}
		if tx.CashAmount, err = decimal.NewFromString(cashAmount); err != nil {
			return nil, fmt.Errorf("corrupt cash amount %q for transaction %d: %w", cashAmount, tx.ID, err)
		}
		if tx.TradeTime, err = time.Parse(time.RFC3339, tradeTime); err != nil {
			return nil, fmt.Errorf("corrupt trade time %q for transaction %d: %w", tradeTime, tx.ID, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows for account %s: %w", accountID, err)
	}

	logger.L.Info("DB fetch complete", "accountID", accountID, "transactionCount", len(txs))
	return txs, nil
}

// loadSplitsSidecar reads the configured splits.csv, if any. Errors are
// logged and the sidecar skipped; splits can also arrive as uploads.
func (s *reportServiceImpl) loadSplitsSidecar(accountID string) []models.TransactionRecord {
	if config.Cfg == nil || config.Cfg.SplitsPath == "" {
		return nil
	}
	file, err := os.Open(config.Cfg.SplitsPath)
	if err != nil {
		logger.L.Warn("Cannot open splits sidecar, skipping", "path", config.Cfg.SplitsPath, "error", err)
		return nil
	}
	defer file.Close()

	parser, _ := parsers.GetParser("splits")
	txs, skippedRows, err := parser.Parse(file, accountID)
	if err != nil {
		logger.L.Warn("Cannot parse splits sidecar, skipping", "path", config.Cfg.SplitsPath, "error", err)
		return nil
	}
	if len(skippedRows) > 0 {
		logger.L.Warn("Splits sidecar contained unusable rows", "path", config.Cfg.SplitsPath, "skipped", len(skippedRows))
	}
	return txs
}

// mergeByTradeTime merges two already-sorted streams, keeping stable order.
func mergeByTradeTime(a, b []models.TransactionRecord) []models.TransactionRecord {
	merged := make([]models.TransactionRecord, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TradeTime.Before(merged[j].TradeTime)
	})
	return merged
}
