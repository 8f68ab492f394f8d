package invoice

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"zugferd/pkg/models"
)

// Precision of the exported values. Money uses two decimals, quantities and
// unit prices four, matching the EN 16931 data types.
const (
	MoneyPlaces    = 2
	QuantityPlaces = 4
)

// DateLayout is the date format of exported and draft documents.
const DateLayout = "2006-01-02"

// Document is the invoice as handed to the external XML generator. All
// values are rounded half-even here and nowhere else.
type Document struct {
	Profile      string        `json:"profile"`
	Number       string        `json:"number"`
	TypeCode     string        `json:"typeCode"`
	IssueDate    string        `json:"issueDate"`
	DueDate      string        `json:"dueDate,omitempty"`
	Currency     string        `json:"currency"`
	Note         string        `json:"note,omitempty"`
	Seller       Party         `json:"seller"`
	Buyer        Party         `json:"buyer"`
	PaymentMeans PaymentMeans  `json:"paymentMeans"`
	Lines        []Line        `json:"lines"`
	TaxBreakdown []TaxSubtotal `json:"taxBreakdown"`
	Totals       Summation     `json:"totals"`
}

// Party is a trade party in the exported document.
type Party struct {
	Name              string                    `json:"name"`
	Street            string                    `json:"street,omitempty"`
	AdditionalAddress string                    `json:"additionalAddress,omitempty"`
	ZIP               string                    `json:"zip,omitempty"`
	City              string                    `json:"city,omitempty"`
	Country           string                    `json:"country,omitempty"`
	VATID             string                    `json:"vatID,omitempty"`
	TaxID             string                    `json:"taxID,omitempty"`
	RegisterNumber    string                    `json:"registerNumber,omitempty"`
	GlobalID          *models.SchemedID         `json:"globalID,omitempty"`
	LegalOrganisation *models.LegalOrganisation `json:"legalOrganisation,omitempty"`
	Contact           *models.Contact           `json:"contact,omitempty"`
}

// PaymentMeans tells the buyer how to pay.
type PaymentMeans struct {
	Code        int    `json:"code"`
	Description string `json:"description,omitempty"`
	IBAN        string `json:"iban,omitempty"`
	BIC         string `json:"bic,omitempty"`
	AccountName string `json:"accountName,omitempty"`
	MandateID   string `json:"mandateID,omitempty"`
	CreditorID  string `json:"creditorID,omitempty"`
	DebtorIBAN  string `json:"debtorIBAN,omitempty"`
}

// Line is one exported invoice line.
type Line struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Note            string          `json:"note,omitempty"`
	Unit            string          `json:"unit"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	NetAmount       decimal.Decimal `json:"netAmount"`
	TaxCategory     string          `json:"taxCategory"`
	TaxPercent      decimal.Decimal `json:"taxPercent"`
	ExemptionReason string          `json:"exemptionReason,omitempty"`
}

// TaxSubtotal is the VAT breakdown for one category and rate.
type TaxSubtotal struct {
	Category        string          `json:"category"`
	Percent         decimal.Decimal `json:"percent"`
	Basis           decimal.Decimal `json:"basis"`
	Tax             decimal.Decimal `json:"tax"`
	ExemptionReason string          `json:"exemptionReason,omitempty"`
}

// Summation holds the document totals.
type Summation struct {
	LineTotal  decimal.Decimal `json:"lineTotal"`
	TaxBasis   decimal.Decimal `json:"taxBasis"`
	TaxTotal   decimal.Decimal `json:"taxTotal"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
	DuePayable decimal.Decimal `json:"duePayable"`
}

// Commercial invoice, UNTDID 1001.
const typeCodeInvoice = "380"

// Lines without a product carry no tax; they are exported as zero rated.
const untaxedCategory = "Z"

// Export builds the document for the XML generator. An invoice that fails
// IsValid, or has a line the generator would refuse, is refused with
// ErrInvalidInvoice.
func Export(inv models.Invoice, profile string) (*Document, error) {
	const op = "Export"

	if problems := append(inv.Problems(), inv.LineProblems()...); len(problems) > 0 {
		return nil, WrapInvoiceError(op, ErrInvalidInvoice, strings.Join(problems, "; "))
	}

	doc := &Document{
		Profile:      profile,
		Number:       strings.TrimSpace(inv.Number),
		TypeCode:     typeCodeInvoice,
		IssueDate:    formatDate(inv.IssueDate),
		DueDate:      formatDate(inv.DueDate),
		Currency:     inv.Currency,
		Note:         inv.Note,
		Seller:       exportParty(*inv.Sender),
		Buyer:        exportParty(*inv.Recipient),
		PaymentMeans: exportPaymentMeans(inv),
	}
	if doc.Currency == "" {
		doc.Currency = models.DefaultCurrency
	}

	type group struct {
		category string
		percent  decimal.Decimal
		reason   string
		basis    decimal.Decimal
	}
	groups := map[string]*group{}
	var order []string

	lineTotal := decimal.Zero
	for i, item := range inv.Items {
		line := exportLine(i+1, item)
		doc.Lines = append(doc.Lines, line)
		lineTotal = lineTotal.Add(line.NetAmount)

		// Exempt lines with different reasons need their own subtotal.
		key := line.TaxCategory + "/" + line.TaxPercent.String() + "/" + line.ExemptionReason
		g, ok := groups[key]
		if !ok {
			g = &group{category: line.TaxCategory, percent: line.TaxPercent, reason: line.ExemptionReason}
			groups[key] = g
			order = append(order, key)
		}
		g.basis = g.basis.Add(line.NetAmount)
	}

	sort.SliceStable(order, func(a, b int) bool {
		ga, gb := groups[order[a]], groups[order[b]]
		if ga.category != gb.category {
			return ga.category < gb.category
		}
		if !ga.percent.Equal(gb.percent) {
			return ga.percent.LessThan(gb.percent)
		}
		return ga.reason < gb.reason
	})

	taxTotal := decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, key := range order {
		g := groups[key]
		tax := g.basis.Mul(g.percent).Div(hundred).RoundBank(MoneyPlaces)
		taxTotal = taxTotal.Add(tax)
		doc.TaxBreakdown = append(doc.TaxBreakdown, TaxSubtotal{
			Category:        g.category,
			Percent:         g.percent,
			Basis:           g.basis,
			Tax:             tax,
			ExemptionReason: g.reason,
		})
	}

	grand := lineTotal.Add(taxTotal)
	doc.Totals = Summation{
		LineTotal:  lineTotal,
		TaxBasis:   lineTotal,
		TaxTotal:   taxTotal,
		GrandTotal: grand,
		DuePayable: grand,
	}
	if doc.Lines == nil {
		doc.Lines = []Line{}
	}
	if doc.TaxBreakdown == nil {
		doc.TaxBreakdown = []TaxSubtotal{}
	}
	return doc, nil
}

func exportLine(id int, item models.Item) Line {
	quantity := decimal.NewFromFloat(item.Quantity).RoundBank(QuantityPlaces)
	price := decimal.NewFromFloat(item.Price).RoundBank(QuantityPlaces)

	line := Line{
		ID:          id,
		Note:        item.Notes,
		Unit:        models.DefaultUnit,
		Quantity:    quantity,
		UnitPrice:   price,
		NetAmount:   quantity.Mul(price).RoundBank(MoneyPlaces),
		TaxCategory: untaxedCategory,
		TaxPercent:  decimal.Zero,
	}

	p := item.Product
	if p == nil {
		line.Name = firstLine(item.Notes)
		return line
	}

	line.Name = p.Name
	line.Description = p.Description
	if p.Unit != "" {
		line.Unit = p.Unit
	}
	line.TaxCategory = p.TaxCategory
	if line.TaxCategory == "" {
		line.TaxCategory = models.DefaultTaxCategory
	}
	line.TaxPercent = decimal.NewFromFloat(p.VATPercent).RoundBank(MoneyPlaces)
	line.ExemptionReason = p.TaxExemptionReason
	return line
}

func exportParty(p models.TradeParty) Party {
	return Party{
		Name:              strings.TrimSpace(p.Name),
		Street:            p.Street,
		AdditionalAddress: p.AdditionalAddress,
		ZIP:               p.ZIP,
		City:              p.Location,
		Country:           p.Country,
		VATID:             strings.TrimSpace(p.VATID),
		TaxID:             strings.TrimSpace(p.TaxID),
		RegisterNumber:    p.RegisterNumber,
		GlobalID:          p.GlobalID,
		LegalOrganisation: p.LegalOrganisation,
		Contact:           p.Contact,
	}
}

// exportPaymentMeans fills in the seller's account for transfers and the
// buyer's mandate for direct debits.
func exportPaymentMeans(inv models.Invoice) PaymentMeans {
	code := inv.PaymentMethod
	if code == 0 {
		code = models.DefaultPaymentMethod
	}
	pm := PaymentMeans{Code: code}
	if m, ok := models.FindPaymentMethod(code); ok {
		pm.Description = m.Description
	}

	switch code {
	case 49, 59:
		if len(inv.Recipient.DirectDebits) > 0 {
			dd := inv.Recipient.DirectDebits[0]
			pm.MandateID = dd.MandateID
			pm.CreditorID = dd.CreditorID
			pm.DebtorIBAN = dd.IBAN
		}
	case 30, 42, 58:
		if len(inv.Sender.BankDetails) > 0 {
			bd := inv.Sender.BankDetails[0]
			pm.IBAN = bd.IBAN
			pm.BIC = bd.BIC
			pm.AccountName = bd.AccountName
		}
	}
	return pm
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return "Item"
	}
	return s
}
