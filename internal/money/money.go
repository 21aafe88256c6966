// Package money holds the currency arithmetic shared by the ledger, invoicing
// and payroll. Amounts are exact decimals rounded to the cent.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Places is the number of fractional digits kept for currency amounts.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds d to the cent, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns rate% of base, rounded to the cent.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(rate).Div(hundred))
}

// Sum adds the amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Positive reports d > 0.
func Positive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// ValidRate reports whether rate lies in [0, 100].
func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}

// HasCents reports whether d carries at most two fractional digits.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(Round(d))
}

// Parse reads a decimal string such as "12.50".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

var printer = message.NewPrinter(language.English)

// Format renders d with a currency symbol and thousands separators, e.g. GH₵1,234.50.
func Format(d decimal.Decimal, symbol string) string {
	r := Round(d)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Neg()
	}
	whole := r.IntPart()
	cents := r.Sub(decimal.NewFromInt(whole)).Mul(hundred).IntPart()
	return fmt.Sprintf("%s%s%s.%02d", sign, symbol, printer.Sprintf("%d", whole), cents)
}
