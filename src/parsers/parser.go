package parsers

import (
	"io"

	"github.com/username/stocktax/src/models"
)

// Parser normalizes one broker export file into canonical transaction
// records. accountID is stamped onto every record; cash-flow exports that
// carry their own account column override it per row. Rows that cannot be
// normalized are returned as skipped, not silently dropped.
type Parser interface {
	Parse(file io.Reader, accountID string) ([]models.TransactionRecord, []models.SkippedRow, error)
}
