package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"zugferd/internal/parse"
	"zugferd/pkg/models"
)

// Column indexes of the party worksheet.
const (
	partyName = iota
	partyStreet
	partyAdditional
	partyZIP
	partyLocation
	partyCountry
	partyVATID
	partyTaxID
	partyRegister
	partyEmail
	partyPhone
	partyIBAN
	partyBIC
	partyAccountName
	partyPayment
	partyDescription
)

// Column indexes of the product worksheet.
const (
	productName = iota
	productDescription
	productUnit
	productPrice
	productVAT
	productCategory
	productExemption
)

// PartyHeader is the header row written for senders and recipients.
var PartyHeader = []string{
	"Name", "Straße", "Adresszusatz", "PLZ", "Ort", "Land",
	"USt-IdNr.", "Steuernummer", "Handelsregister", "E-Mail", "Telefon",
	"IBAN", "BIC", "Kontoinhaber", "Zahlungsart", "Beschreibung",
}

// ProductHeader is the header row written for products.
var ProductHeader = []string{
	"Name", "Beschreibung", "Einheit", "Preis", "MwSt %", "Steuerkategorie", "Befreiungsgrund",
}

// English aliases accepted on import, keyed by normalized header text.
var (
	partyAliases = map[string]int{
		"street":            partyStreet,
		"strasse":           partyStreet,
		"additionaladdress": partyAdditional,
		"zip":               partyZIP,
		"postcode":          partyZIP,
		"location":          partyLocation,
		"city":              partyLocation,
		"country":           partyCountry,
		"vatid":             partyVATID,
		"ustid":             partyVATID,
		"taxid":             partyTaxID,
		"registernumber":    partyRegister,
		"email":             partyEmail,
		"mail":              partyEmail,
		"phone":             partyPhone,
		"telefonnummer":     partyPhone,
		"accountname":       partyAccountName,
		"paymentmethod":     partyPayment,
		"description":       partyDescription,
	}
	productAliases = map[string]int{
		"description":        productDescription,
		"unit":               productUnit,
		"price":              productPrice,
		"einzelpreis":        productPrice,
		"vat":                productVAT,
		"vatpercent":         productVAT,
		"mwst":               productVAT,
		"ust":                productVAT,
		"taxcategory":        productCategory,
		"taxexemptionreason": productExemption,
		"exemptionreason":    productExemption,
	}
)

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("ß", "ss", "-", "", ".", "", " ", "", "_", "", "%", "").Replace(s)
	return s
}

// columnIndex maps each known column to its position in header, or -1.
func columnIndex(header []interface{}, names []string, aliases map[string]int) ([]int, bool) {
	known := make(map[string]int, len(names)+len(aliases))
	for i, name := range names {
		known[normalizeHeader(name)] = i
	}
	for alias, i := range aliases {
		known[alias] = i
	}

	index := make([]int, len(names))
	for i := range index {
		index[i] = -1
	}
	found := false
	for pos, cell := range header {
		if i, ok := known[normalizeHeader(fmt.Sprint(cell))]; ok && index[i] < 0 {
			index[i] = pos
			found = true
		}
	}
	return index, found && index[0] >= 0
}

func cell(row []interface{}, pos int) string {
	if pos < 0 || pos >= len(row) || row[pos] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[pos]))
}

func partyRow(p models.TradeParty) []interface{} {
	row := make([]interface{}, len(PartyHeader))
	row[partyName] = p.Name
	row[partyStreet] = p.Street
	row[partyAdditional] = p.AdditionalAddress
	row[partyZIP] = p.ZIP
	row[partyLocation] = p.Location
	row[partyCountry] = p.Country
	row[partyVATID] = p.VATID
	row[partyTaxID] = p.TaxID
	row[partyRegister] = p.RegisterNumber
	row[partyEmail], row[partyPhone] = "", ""
	if p.Contact != nil {
		row[partyEmail] = p.Contact.Email
		row[partyPhone] = p.Contact.Phone
	}
	row[partyIBAN], row[partyBIC], row[partyAccountName] = "", "", ""
	if len(p.BankDetails) > 0 {
		row[partyIBAN] = p.BankDetails[0].IBAN
		row[partyBIC] = p.BankDetails[0].BIC
		row[partyAccountName] = p.BankDetails[0].AccountName
	}
	row[partyPayment] = p.PreferredPaymentMethod
	row[partyDescription] = p.Description
	return row
}

func partyFromRow(row []interface{}, index []int) (models.TradeParty, error) {
	get := func(col int) string { return cell(row, index[col]) }

	p := models.NewTradeParty(get(partyName))
	p.Street = get(partyStreet)
	p.AdditionalAddress = get(partyAdditional)
	p.ZIP = get(partyZIP)
	p.Location = get(partyLocation)
	if country := get(partyCountry); country != "" {
		p.Country = strings.ToUpper(country)
	}
	p.VATID = get(partyVATID)
	p.TaxID = get(partyTaxID)
	p.RegisterNumber = get(partyRegister)
	p.Description = get(partyDescription)

	if email, phone := get(partyEmail), get(partyPhone); email != "" || phone != "" {
		p = p.WithContact(models.Contact{Email: email, Phone: phone})
	}
	if iban := strings.Join(strings.Fields(get(partyIBAN)), ""); iban != "" {
		p = p.WithBankDetails(models.BankDetails{
			IBAN:        strings.ToUpper(iban),
			BIC:         get(partyBIC),
			AccountName: get(partyAccountName),
		})
	}
	if raw := get(partyPayment); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return models.TradeParty{}, fmt.Errorf("%w: payment method %q", ErrInvalidRow, raw)
		}
		if _, ok := models.FindPaymentMethod(code); !ok {
			return models.TradeParty{}, fmt.Errorf("%w: unknown payment method %d", ErrInvalidRow, code)
		}
		p.PreferredPaymentMethod = code
	}
	return p, nil
}

func productRow(p models.Product) []interface{} {
	row := make([]interface{}, len(ProductHeader))
	row[productName] = p.Name
	row[productDescription] = p.Description
	row[productUnit] = p.Unit
	row[productPrice] = p.Price
	row[productVAT] = p.VATPercent
	row[productCategory] = p.TaxCategory
	row[productExemption] = p.TaxExemptionReason
	return row
}

func productFromRow(row []interface{}, index []int) (models.Product, error) {
	get := func(col int) string { return cell(row, index[col]) }

	p := models.NewProduct(get(productName))
	p.Description = get(productDescription)

	if category := get(productCategory); category != "" {
		if _, ok := models.FindTaxCategory(strings.ToUpper(category)); !ok {
			return models.Product{}, fmt.Errorf("%w: unknown tax category %q", ErrInvalidRow, category)
		}
		p = p.WithTaxCategory(category)
	}
	if unit := strings.ToUpper(get(productUnit)); unit != "" {
		if _, ok := models.FindUnit(unit); !ok {
			return models.Product{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidRow, unit)
		}
		p.Unit = unit
	}
	if raw := get(productPrice); raw != "" {
		price, err := parse.Amount(raw)
		if err != nil {
			return models.Product{}, fmt.Errorf("%w: price: %v", ErrInvalidRow, err)
		}
		p.Price = price
	}
	if raw := get(productVAT); raw != "" {
		vat, err := parse.Percent(raw)
		if err != nil {
			return models.Product{}, fmt.Errorf("%w: VAT: %v", ErrInvalidRow, err)
		}
		if vat < 0 || vat > 100 {
			return models.Product{}, fmt.Errorf("%w: VAT %v out of range", ErrInvalidRow, vat)
		}
		p.VATPercent = vat
	}
	if reason := get(productExemption); reason != "" {
		p.TaxExemptionReason = reason
	}
	return p, nil
}
