package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places carried by an Amount.
const AmountScale = 2

// MaxAmount is the largest magnitude a single journal line may carry.
const MaxAmount Amount = 1_000_000_000_000_000

// Amount is a currency value in minor units (cents).
type Amount int64

// ParseAmount parses a decimal string such as "100.00". An empty string is zero.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts d to minor units, rejecting sub-cent precision.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(AmountScale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d, AmountScale)
	}
	bi := minor.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("amount %s out of range", d)
	}
	return Amount(bi.Int64()), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountScale)
}

// String formats the amount with exactly two decimal places.
func (a Amount) String() string {
	return a.Decimal().StringFixed(AmountScale)
}

// Add returns a+b. ok is false if the sum overflows int64.
func (a Amount) Add(b Amount) (sum Amount, ok bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*a = 0
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
