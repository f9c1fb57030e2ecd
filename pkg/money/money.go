// Package money formats and rounds whole-unit (so'm) currency amounts.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the display suffix for every amount.
const Currency = "so'm"

// PercentOf returns floor(amount * percent / 100). Negative inputs are treated as zero.
func PercentOf(amount int64, percent int) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	share := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Floor()
	return share.IntPart()
}

// Format renders an amount with space-grouped thousands, e.g. "1 250 000 so'm".
func Format(amount int64) string {
	return Group(amount) + " " + Currency
}

// Group inserts a space between each group of three digits.
func Group(amount int64) string {
	digits := decimal.NewFromInt(amount).Abs().String()
	var b strings.Builder
	if amount < 0 {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(' ')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
