package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/stocktax/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	logger.L.Info("Checking database migrations", "databasePath", databasePath)
	migrateTransactionTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		symbol TEXT,
		asset_type TEXT,
		action TEXT NOT NULL,
		quantity TEXT,
		unit_price TEXT,
		multiplier INTEGER DEFAULT 1,
		currency TEXT,
		fee_total TEXT,
		cash_amount TEXT,
		split_num INTEGER DEFAULT 0,
		split_den INTEGER DEFAULT 0,
		trade_time TEXT NOT NULL,
		note TEXT,
		hash_id TEXT,
		UNIQUE(account_id, hash_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_symbol_time
		ON transactions(account_id, symbol, trade_time);

	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		source TEXT NOT NULL,
		filename TEXT,
		record_count INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err = DB.Exec(createTableStatement); err != nil {
		logger.L.Error("failed to create tables", "error", err)
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	logger.L.Info("Database tables ensured/created.")
}

// migrateTransactionTable backfills columns added after the first release on
// databases created by older builds. Decimal values are stored as text to
// keep broker precision exact.
func migrateTransactionTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			logger.L.Info("'transactions' table does not exist, no migration needed as table will be created.")
			return
		}
		logger.L.Error("Error checking for 'transactions' table", "error", err)
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		logger.L.Error("Error reading transactions table info", "error", err)
		return
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			logger.L.Error("Error scanning table info row", "error", err)
			return
		}
		existing[name] = true
	}

	addColumns := map[string]string{
		"cash_amount": "ALTER TABLE transactions ADD COLUMN cash_amount TEXT",
		"split_num":   "ALTER TABLE transactions ADD COLUMN split_num INTEGER DEFAULT 0",
		"split_den":   "ALTER TABLE transactions ADD COLUMN split_den INTEGER DEFAULT 0",
		"note":        "ALTER TABLE transactions ADD COLUMN note TEXT",
	}
	for column, stmt := range addColumns {
		if existing[column] {
			continue
		}
		if _, err := DB.Exec(stmt); err != nil {
			logger.L.Error("Failed to add column to transactions table", "column", column, "error", err)
		} else {
			logger.L.Info("Added column to transactions table", "column", column)
		}
	}
}
