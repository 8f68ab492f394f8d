package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// FormatAmount renders a money value with two decimals, rounding half to
// even: 0.125 becomes "0.12", 0.135 becomes "0.14".
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixedBank(MoneyPlaces)
}

// FormatMoney is FormatAmount followed by the currency code.
func FormatMoney(v float64, currency string) string {
	return FormatAmount(v) + " " + currency
}

// FormatQuantity renders a quantity with up to four decimals and no
// trailing zeros.
func FormatQuantity(v float64) string {
	return decimal.NewFromFloat(v).RoundBank(QuantityPlaces).String()
}

// FormatPercent renders a VAT rate such as "19 %" or "5.5 %".
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).RoundBank(MoneyPlaces).String() + " %"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
