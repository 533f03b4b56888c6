package parsers

import (
	"fmt"

	"github.com/username/stocktax/src/parsers/futu"
)

// GetParser returns the parser for an upload source identifier.
func GetParser(source string) (Parser, error) {
	switch source {
	case "futu":
		return futu.NewTradeParser(), nil
	case "futu-cashflow":
		return futu.NewCashFlowParser(), nil
	case "splits":
		return futu.NewSplitsParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
