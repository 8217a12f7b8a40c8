// Package money renders ledger amounts for people.
package money

import (
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the single currency the ledger is kept in.
const Currency = gomoney.USD

var maxCents = decimal.NewFromInt(math.MaxInt64)

// USD formats a dollar amount as "$1,234.56". Amounts are rounded half away
// from zero to cents for display only; the stored value keeps all digits.
func USD(amount decimal.Decimal) string {
	cur := gomoney.GetCurrency(Currency)
	cents := amount.Shift(int32(cur.Fraction)).Round(0)
	if cents.Abs().GreaterThan(maxCents) {
		return display(cents, cur)
	}
	return gomoney.New(cents.IntPart(), Currency).Display()
}

// display renders cents that do not fit in an int64 with the same layout
// go-money uses.
func display(cents decimal.Decimal, cur *gomoney.Currency) string {
	digits := cents.Abs().String()
	whole, frac := digits[:len(digits)-cur.Fraction], digits[len(digits)-cur.Fraction:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(cur.Thousand)
		}
		b.WriteRune(r)
	}
	if cur.Fraction > 0 {
		b.WriteString(cur.Decimal)
		b.WriteString(frac)
	}

	s := strings.Replace(cur.Template, "1", b.String(), 1)
	s = strings.Replace(s, "$", cur.Grapheme, 1)
	if cents.IsNegative() {
		s = "-" + s
	}
	return s
}
