package models

import "strings"

// Product is a line item template: what is sold, in which unit, at which
// default price and tax.
type Product struct {
	Key                int     `json:"_key" validate:"gte=0"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Unit               string  `json:"unit"`
	Price              float64 `json:"price"`
	VATPercent         float64 `json:"vatPercent" validate:"gte=0,lte=100"`
	TaxCategory        string  `json:"taxCategory"`
	TaxExemptionReason string  `json:"taxExemptionReason"`
}

// NewProduct returns a transient product with the default unit, VAT rate and
// tax category.
func NewProduct(name string) Product {
	return Product{
		Name:        name,
		Unit:        DefaultUnit,
		VATPercent:  DefaultVATPercent,
		TaxCategory: DefaultTaxCategory,
	}
}

// IsSaved reports whether the product has been stored in a repository.
func (p Product) IsSaved() bool {
	return p.Key > 0
}

// RecordKey returns the surrogate key.
func (p Product) RecordKey() int {
	return p.Key
}

// WithKey returns a copy of p carrying key.
func (p Product) WithKey(key int) Product {
	p.Key = key
	return p
}

// DisplayName is the name repositories sort by.
func (p Product) DisplayName() string {
	return p.Name
}

// WithTaxCategory switches the category and applies its default rate and
// exemption reason. Unknown codes are stored as given and leave the rate
// untouched.
func (p Product) WithTaxCategory(code string) Product {
	p.TaxCategory = strings.ToUpper(strings.TrimSpace(code))
	if c, ok := FindTaxCategory(p.TaxCategory); ok {
		p.VATPercent = c.DefaultPercent
		p.TaxExemptionReason = c.DefaultExemptionReason
	}
	return p
}

// RequiresExemptionReason reports whether the product is zero rated in a
// category where the reason for the exemption has to be stated.
func (p Product) RequiresExemptionReason() bool {
	if p.VATPercent != 0 {
		return false
	}
	c, ok := FindTaxCategory(p.TaxCategory)
	return ok && c.ExemptionRequired
}

// MissingExemptionReason reports whether a required exemption reason is blank.
func (p Product) MissingExemptionReason() bool {
	return p.RequiresExemptionReason() && strings.TrimSpace(p.TaxExemptionReason) == ""
}
