// Package parse reads amounts, percentages and dates written the way German
// and English invoices and spreadsheets write them.
package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber and ErrInvalidDate are wrapped by the parse errors.
var (
	ErrInvalidNumber = errors.New("invalid number")
	ErrInvalidDate   = errors.New("invalid date")
)

var currencyMarks = []string{"€", "$", "£", "EUR", "USD", "CHF", "GBP", " ", " ", "'"}

// Decimal parses an amount in German ("1.234,56") or English ("1,234.56")
// notation. Currency symbols and codes are ignored. A leading or trailing
// minus sign or surrounding parentheses make the amount negative. An empty
// string is zero.
func Decimal(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.Trim(cleaned, "()")
	}
	for _, mark := range currencyMarks {
		cleaned = strings.ReplaceAll(cleaned, mark, "")
	}
	if strings.HasPrefix(cleaned, "-") {
		negative = !negative
		cleaned = strings.TrimPrefix(cleaned, "-")
	} else if strings.HasSuffix(cleaned, "-") {
		negative = !negative
		cleaned = strings.TrimSuffix(cleaned, "-")
	}
	cleaned = strings.TrimPrefix(cleaned, "+")

	cleaned = normalizeSeparators(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil || cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites the number so that '.' is the only decimal
// separator and grouping separators are gone.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Whichever comes last separates the decimals.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && (len(parts[1]) != 3 || parts[0] == "0" || parts[0] == "") {
			return parts[0] + "." + parts[1]
		}
		// "1,234" or "1,234,567": grouping only.
		return strings.Join(parts, "")

	case strings.Count(s, ".") > 1:
		// "1.234.567": German grouping only.
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// Amount is Decimal converted to float64.
func Amount(s string) (float64, error) {
	d, err := Decimal(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// Percent parses a VAT rate such as "19 %", "7,0%" or "0.19". Values between
// 0 and 1 written without a percent sign are taken as fractions.
func Percent(s string) (float64, error) {
	hasSign := strings.Contains(s, "%")
	d, err := Decimal(strings.ReplaceAll(s, "%", ""))
	if err != nil {
		return 0, err
	}
	if !hasSign && d.IsPositive() && d.LessThan(decimal.NewFromInt(1)) {
		d = d.Mul(decimal.NewFromInt(100))
	}
	f, _ := d.Float64()
	return f, nil
}

var dateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2.1.06",
	"2006-01-02",
	"20060102",
	time.RFC3339,
	"02.01.2006 15:04",
}

// Date parses German (DD.MM.YYYY, D.M.YY) and ISO dates. The result is in
// UTC.
func Date(s string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// GermanDate formats t as DD.MM.YYYY, the inverse of Date.
func GermanDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}

// GermanAmount formats f with a decimal comma and two decimals, e.g.
// "1234,50". Grouping is left out so spreadsheets parse it back.
func GermanAmount(f float64) string {
	return strings.Replace(decimal.NewFromFloat(f).StringFixedBank(2), ".", ",", 1)
}
