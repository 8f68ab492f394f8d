package models

import "strings"

// Defaults applied to new records. These are business rules, not incidental
// zero values.
const (
	DefaultTaxCategory   = "S"
	DefaultVATPercent    = 19.0
	DefaultUnit          = "H87"
	DefaultPaymentMethod = 58
	DefaultCountry       = "DE"
	DefaultCurrency      = "EUR"
)

// TaxCategory is an entry of the UNTDID 5305 duty/tax category code list.
type TaxCategory struct {
	Code                   string  `json:"code"`
	Description            string  `json:"description"`
	DefaultPercent         float64 `json:"defaultPercent"`
	DefaultExemptionReason string  `json:"defaultExemptionReason,omitempty"`
	// ExemptionRequired marks categories where a zero rate needs a reason.
	ExemptionRequired bool `json:"exemptionRequired"`
}

// Unit is a UN/ECE Recommendation 20 unit of measure.
type Unit struct {
	Code     string `json:"code"`
	Singular string `json:"singular"`
	Plural   string `json:"plural"`
}

// Describe returns the singular or plural description for quantity.
func (u Unit) Describe(quantity float64) string {
	if quantity == 1 {
		return u.Singular
	}
	return u.Plural
}

// PaymentMethod is an UNTDID 4461 payment means code.
type PaymentMethod struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

var taxCategories = []TaxCategory{
	{Code: "S", Description: "Standard rate", DefaultPercent: 19.0},
	{Code: "Z", Description: "Zero rated goods", DefaultPercent: 0},
	{Code: "E", Description: "Exempt from tax", DefaultPercent: 0, ExemptionRequired: true},
	{Code: "AE", Description: "VAT reverse charge", DefaultPercent: 0, DefaultExemptionReason: "Reverse charge", ExemptionRequired: true},
	{Code: "K", Description: "Intra-community supply", DefaultPercent: 0, DefaultExemptionReason: "Intra-community supply", ExemptionRequired: true},
	{Code: "G", Description: "Free export item, tax not charged", DefaultPercent: 0, DefaultExemptionReason: "Export outside the EU", ExemptionRequired: true},
	{Code: "O", Description: "Services outside scope of tax", DefaultPercent: 0, DefaultExemptionReason: "Not subject to VAT", ExemptionRequired: true},
	{Code: "L", Description: "Canary Islands general indirect tax", DefaultPercent: 7.0},
	{Code: "M", Description: "Tax for production, services and importation in Ceuta and Melilla", DefaultPercent: 4.0},
}

var units = []Unit{
	{Code: "H87", Singular: "piece", Plural: "pieces"},
	{Code: "C62", Singular: "one", Plural: "ones"},
	{Code: "HUR", Singular: "hour", Plural: "hours"},
	{Code: "DAY", Singular: "day", Plural: "days"},
	{Code: "WEE", Singular: "week", Plural: "weeks"},
	{Code: "MON", Singular: "month", Plural: "months"},
	{Code: "KGM", Singular: "kilogram", Plural: "kilograms"},
	{Code: "MTR", Singular: "metre", Plural: "metres"},
	{Code: "LTR", Singular: "litre", Plural: "litres"},
	{Code: "MTK", Singular: "square metre", Plural: "square metres"},
	{Code: "KMT", Singular: "kilometre", Plural: "kilometres"},
	{Code: "LS", Singular: "lump sum", Plural: "lump sums"},
}

var paymentMethods = []PaymentMethod{
	{Code: 1, Description: "Instrument not defined"},
	{Code: 10, Description: "Cash"},
	{Code: 30, Description: "Credit transfer"},
	{Code: 42, Description: "Payment to bank account"},
	{Code: 48, Description: "Bank card"},
	{Code: 49, Description: "Direct debit"},
	{Code: 57, Description: "Standing agreement"},
	{Code: 58, Description: "SEPA credit transfer"},
	{Code: 59, Description: "SEPA direct debit"},
	{Code: 97, Description: "Clearing between partners"},
}

// TaxCategories returns the tax category table in display order.
func TaxCategories() []TaxCategory {
	return append([]TaxCategory(nil), taxCategories...)
}

// Units returns the unit of measure table in display order.
func Units() []Unit {
	return append([]Unit(nil), units...)
}

// PaymentMethods returns the payment method table in display order.
func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

// FindTaxCategory looks up a tax category by code (case-insensitive).
// There is no fallback: callers decide what to use when ok is false.
func FindTaxCategory(code string) (TaxCategory, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range taxCategories {
		if c.Code == code {
			return c, true
		}
	}
	return TaxCategory{}, false
}

// FindUnit looks up a unit of measure by code (case-insensitive).
func FindUnit(code string) (Unit, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, u := range units {
		if u.Code == code {
			return u, true
		}
	}
	return Unit{}, false
}

// FindPaymentMethod looks up a payment method by its numeric code.
func FindPaymentMethod(code int) (PaymentMethod, bool) {
	for _, m := range paymentMethods {
		if m.Code == code {
			return m, true
		}
	}
	return PaymentMethod{}, false
}
