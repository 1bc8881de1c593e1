package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// shelfLocale drives digit grouping on labels
var shelfLocale = language.AmericanEnglish

// Money is a US dollar amount as printed on a shelf label.
// It is immutable - all operations return new Money instances
type Money struct {
	amount decimal.Decimal
}

// NewMoneyUSD creates Money in US dollars
func NewMoneyUSD(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Subtract returns a new Money with the difference
func (m Money) Subtract(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// PerUnit splits a multi-quantity price ("3 for $5") into the price of one unit.
// A quantity of zero or less leaves the amount unchanged.
func (m Money) PerUnit(quantity int) Money {
	if quantity <= 0 {
		return m
	}
	return Money{amount: m.amount.Div(decimal.NewFromInt(int64(quantity)))}
}

// Format renders the amount with a dollar sign, digit grouping and exactly two
// decimals (e.g. "$1,234.50", "-$0.99"). Half-way cents round to even.
func (m Money) Format() string {
	rounded := m.amount.RoundBank(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	p := message.NewPrinter(shelfLocale)
	return sign + "$" + p.Sprintf("%v", number.Decimal(rounded.InexactFloat64(), number.Scale(2)))
}

// FormatMultiple renders a multi-quantity price such as "2/$6.00"
func (m Money) FormatMultiple(quantity int) string {
	return fmt.Sprintf("%d/%s", quantity, m.Format())
}
