// Package instruments classifies broker-native security codes and decodes
// option contract metadata embedded in them.
package instruments

import (
	"fmt"
	"regexp"
	"time"

	"github.com/username/stocktax/src/models"
)

// OptionContractMultiplier is the number of underlying shares per contract
// for both HK and US listed options handled here.
const OptionContractMultiplier int64 = 100

// Futu option codes: market prefix, underlying, YYMMDD expiry, C/P, strike.
// The bare form without the market prefix (e.g. TSLA240419C200000) is also
// accepted, matching what older exports contain.
var optionCodePattern = regexp.MustCompile(`^(?:(US|HK)\.)?([A-Z0-9]+?)(\d{6})([CP])(\d+)$`)

// OptionContract is the metadata decoded from an option code.
type OptionContract struct {
	Market     string // "US", "HK", or "" for the bare form
	Underlying string
	Expiry     time.Time
	Right      string // "C" or "P"
	Strike     string // raw strike digits, broker scaling left untouched
}

// Classify returns the asset type for a broker-native code.
func Classify(code string) models.AssetType {
	if optionCodePattern.MatchString(code) {
		return models.AssetOption
	}
	return models.AssetStock
}

// Multiplier returns the contract multiplier for the given code.
func Multiplier(code string) int64 {
	if Classify(code) == models.AssetOption {
		return OptionContractMultiplier
	}
	return 1
}

// ParseOptionCode decodes an option code. It returns an error for codes that
// do not match any known option format, or whose embedded expiry date is not
// a valid calendar date.
func ParseOptionCode(code string) (OptionContract, error) {
	m := optionCodePattern.FindStringSubmatch(code)
	if m == nil {
		return OptionContract{}, fmt.Errorf("code %q does not match any known option format", code)
	}
	expiry, err := time.Parse("060102", m[3])
	if err != nil {
		return OptionContract{}, fmt.Errorf("code %q has invalid expiry date %q: %w", code, m[3], err)
	}
	return OptionContract{
		Market:     m[1],
		Underlying: m[2],
		Expiry:     expiry,
		Right:      m[4],
		Strike:     m[5],
	}, nil
}

// ExpirationDate returns the expiry embedded in an option code, or an error
// if the code is not parseable.
func ExpirationDate(code string) (time.Time, error) {
	c, err := ParseOptionCode(code)
	if err != nil {
		return time.Time{}, err
	}
	return c.Expiry, nil
}

// IsExpired reports whether the contract's expiry date lies strictly before
// the given reference day. Comparison is by calendar date: a contract is
// still live on its expiry day.
func IsExpired(expiry, ref time.Time) bool {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	r := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	return e.Before(r)
}
