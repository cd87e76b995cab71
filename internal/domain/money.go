package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents bounds any single amount the shop records: a price, a
// payment, an expense or a sale total (R$ 100 bilhões).
const MaxAmountCents int64 = 10_000_000_000_000

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(MaxAmountCents)
)

// CentsInRange reports whether c lies within ±MaxAmountCents.
func CentsInRange(c decimal.Decimal) bool {
	return c.Abs().LessThanOrEqual(maxAmount)
}

// ParseCents converts a decimal amount such as "149.90" or "149,90" into
// integer cents. More than two fractional digits are rejected rather than
// rounded, and so is anything beyond MaxAmountCents.
func ParseCents(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.Count(trimmed, ",") == 1 && !strings.Contains(trimmed, ".") {
		trimmed = strings.Replace(trimmed, ",", ".", 1)
	}

	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	cents := amount.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than two decimal places", raw)
	}
	if !CentsInRange(cents) {
		return 0, fmt.Errorf("amount %q is out of range", raw)
	}
	return cents.IntPart(), nil
}

// MustCents is ParseCents for literals known to be valid.
func MustCents(raw string) int64 {
	cents, err := ParseCents(raw)
	if err != nil {
		panic(err)
	}
	return cents
}

// FormatCents renders cents as a plain two-place decimal, e.g. "149.90".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FormatBRL renders cents the way the shop displays prices: "R$ 149,90".
func FormatBRL(cents int64) string {
	return "R$ " + strings.Replace(FormatCents(cents), ".", ",", 1)
}
