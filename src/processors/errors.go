package processors

import (
	"fmt"
	"time"
)

// DataOrderingError is fatal to a run: transactions for one (account, symbol)
// key arrived out of timestamp order. Continuing would silently corrupt the
// moving-average cost state, so the engine surfaces it immediately.
type DataOrderingError struct {
	AccountID string
	Symbol    string
	Previous  time.Time
	Current   time.Time
}

func (e *DataOrderingError) Error() string {
	return fmt.Sprintf("transactions out of order for account %s symbol %s: %s arrived after %s",
		e.AccountID, e.Symbol,
		e.Current.Format(time.RFC3339), e.Previous.Format(time.RFC3339))
}
