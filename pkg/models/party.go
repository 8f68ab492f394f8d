package models

import "strings"

// Contact is the contact person block of a trade party.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Fax   string `json:"fax"`
}

// BankDetails is a bank account a party can be paid to.
type BankDetails struct {
	IBAN        string `json:"iban"`
	BIC         string `json:"bic"`
	AccountName string `json:"accountName"`
}

// DirectDebit is a SEPA direct debit mandate.
type DirectDebit struct {
	MandateID  string `json:"mandateID"`
	IBAN       string `json:"iban"`
	CreditorID string `json:"creditorID"`
}

// SchemedID is an identifier qualified by its issuing scheme, e.g. a GLN
// under scheme "0088".
type SchemedID struct {
	Scheme string `json:"scheme"`
	ID     string `json:"id"`
}

// LegalOrganisation identifies the legal registration of a party.
type LegalOrganisation struct {
	SchemedID           *SchemedID `json:"schemedID"`
	TradingBusinessName string     `json:"tradingBusinessName"`
}

// TradeParty is a sender or recipient of an invoice.
//
// Key is 0 for a transient party. Repositories assign positive keys when a
// party is saved permanently.
type TradeParty struct {
	Key                    int                `json:"_key" validate:"gte=0"`
	Name                   string             `json:"name"`
	Street                 string             `json:"street"`
	AdditionalAddress      string             `json:"additionalAddress"`
	ZIP                    string             `json:"zip"`
	Location               string             `json:"location"`
	Country                string             `json:"country"`
	VATID                  string             `json:"vatID"`
	TaxID                  string             `json:"taxID"`
	RegisterNumber         string             `json:"registerNumber"`
	GlobalID               *SchemedID         `json:"globalID"`
	LegalOrganisation      *LegalOrganisation `json:"legalOrganisation"`
	Contact                *Contact           `json:"contact"`
	BankDetails            []BankDetails      `json:"bankDetails" validate:"dive"`
	DirectDebits           []DirectDebit      `json:"directDebits" validate:"dive"`
	Description            string             `json:"description"`
	PreferredPaymentMethod int                `json:"preferredPaymentMethod" validate:"gte=0"`
}

// NewTradeParty returns a transient party carrying the default country and
// payment method.
func NewTradeParty(name string) TradeParty {
	return TradeParty{
		Name:                   name,
		Country:                DefaultCountry,
		PreferredPaymentMethod: DefaultPaymentMethod,
	}
}

// IsSaved reports whether the party has been stored in a repository.
func (p TradeParty) IsSaved() bool {
	return p.Key > 0
}

// RecordKey returns the surrogate key.
func (p TradeParty) RecordKey() int {
	return p.Key
}

// WithKey returns a copy of p carrying key.
func (p TradeParty) WithKey(key int) TradeParty {
	c := p.Clone()
	c.Key = key
	return c
}

// DisplayName is the name repositories sort by.
func (p TradeParty) DisplayName() string {
	return p.Name
}

// HasTaxIdentifier reports whether a VAT ID or a tax ID is present.
func (p TradeParty) HasTaxIdentifier() bool {
	return strings.TrimSpace(p.VATID) != "" || strings.TrimSpace(p.TaxID) != ""
}

// Clone returns a deep copy so the copy can be changed without touching p.
func (p TradeParty) Clone() TradeParty {
	c := p
	if p.GlobalID != nil {
		id := *p.GlobalID
		c.GlobalID = &id
	}
	if p.LegalOrganisation != nil {
		org := *p.LegalOrganisation
		if org.SchemedID != nil {
			id := *org.SchemedID
			org.SchemedID = &id
		}
		c.LegalOrganisation = &org
	}
	if p.Contact != nil {
		contact := *p.Contact
		c.Contact = &contact
	}
	if p.BankDetails != nil {
		c.BankDetails = append([]BankDetails{}, p.BankDetails...)
	}
	if p.DirectDebits != nil {
		c.DirectDebits = append([]DirectDebit{}, p.DirectDebits...)
	}
	return c
}

// WithBankDetails returns a copy of p with account appended.
func (p TradeParty) WithBankDetails(account BankDetails) TradeParty {
	c := p.Clone()
	c.BankDetails = append(c.BankDetails, account)
	return c
}

// WithDirectDebit returns a copy of p with mandate appended.
func (p TradeParty) WithDirectDebit(mandate DirectDebit) TradeParty {
	c := p.Clone()
	c.DirectDebits = append(c.DirectDebits, mandate)
	return c
}

// WithContact returns a copy of p with contact replaced.
func (p TradeParty) WithContact(contact Contact) TradeParty {
	c := p.Clone()
	c.Contact = &contact
	return c
}
