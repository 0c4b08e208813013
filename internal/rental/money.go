package rental

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const currencySymbol = "R$"

var currencyPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency renders a value as "R$ 1.234,56". Nil is treated as zero.
func FormatCurrency(value *decimal.Decimal) string {
	v := decimal.Zero
	if value != nil {
		v = value.Round(2)
	}
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	f, _ := v.Float64()
	return sign + currencySymbol + " " + currencyPrinter.Sprint(number.Decimal(f, number.Scale(2)))
}

// FormatAmount is FormatCurrency for a non-pointer value.
func FormatAmount(value decimal.Decimal) string {
	return FormatCurrency(&value)
}
