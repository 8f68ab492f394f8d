package extract

import (
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"

	"zugferd/internal/invoice"
	"zugferd/internal/parse"
	"zugferd/pkg/models"
	"zugferd/pkg/services"
)

// fallbackConfidence is reported for an invoice number found by text search.
const fallbackConfidence = 0.6

var (
	zipLocationPattern = regexp.MustCompile(`^(?:([A-Z]{2})[- ]|[A-Z]-)?(\d{4,5})\s+(.+)$`)
	vatIDPattern       = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z+*.]{2,13}$`)
	ratePattern        = regexp.MustCompile(`(\d{1,2}(?:[.,]\d{1,2})?)\s*%`)

	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:rechnungs?[\s-]*(?:nummer|nr\.?)?|belegnr|beleg)[\s\-:.]*([A-Z]{0,4}[\-/]?\d[\d\-/.]{3,})`),
		regexp.MustCompile(`(?i)(?:rg\.?\s?nr|rg\.)[\s\-:.]*([A-Z]{0,4}[\-/]?\d[\d\-/.]{3,})`),
		regexp.MustCompile(`(?i)(?:invoice|inv)[\s\-:.]*(?:no|nr|number|#)[\s\-:.]*([A-Z]{0,4}[\-/]?\d[\d\-/.]{3,})`),
		regexp.MustCompile(`(?i)(?:dokument|document)[\s\-:.]*(?:nr|no)[\s\-:.]*(\d{6,})`),
		regexp.MustCompile(`(?:^|\s)(\d{8,})(?:\s|$)`),
	}

	// germanUnits maps common invoice abbreviations to unit codes.
	germanUnits = map[string]string{
		"stk": "H87", "stück": "H87", "st": "H87", "pcs": "H87",
		"std": "HUR", "stunde": "HUR", "stunden": "HUR", "h": "HUR",
		"tag": "DAY", "tage": "DAY",
		"kg": "KGM", "m": "MTR", "l": "LTR", "m2": "MTK", "m²": "MTK", "km": "KMT",
		"pauschal": "LS", "psch": "LS", "pausch.": "LS",
	}
)

// mapper turns the entities of a processed document into a draft.
type mapper struct {
	log zerolog.Logger
	now func() time.Time
}

func (m mapper) draft(doc *documentaipb.Document) *services.Draft {
	confidence := make(map[string]float32)
	inv := models.NewInvoice(m.now().UTC().Truncate(24 * time.Hour))
	sender, recipient := newParty(), newParty()
	rates := map[float64]bool{}
	var lines []*documentaipb.Document_Entity
	var dueSet bool

	for _, entity := range doc.GetEntities() {
		kind := entity.GetType()
		value := strings.TrimSpace(entity.GetMentionText())
		if c := entity.GetConfidence(); c > confidence[kind] {
			confidence[kind] = c
		}

		m.log.Debug().
			Str("entity_type", kind).
			Str("value", value).
			Float32("confidence", entity.GetConfidence()).
			Msg("Processing Document AI entity")

		switch kind {
		case "invoice_id", "invoice_number":
			inv.Number = value
		case "invoice_date":
			if date, ok := m.date(entity); ok {
				inv.IssueDate = date
			}
		case "due_date":
			if date, ok := m.date(entity); ok {
				inv.DueDate = date
				dueSet = true
			}
		case "currency":
			if value != "" {
				inv.Currency = normalizeCurrency(value)
			}
		case "line_item":
			lines = append(lines, entity)
		case "vat":
			if rate, ok := vatRate(entity); ok {
				rates[rate] = true
			}
		case "payment_terms", "purchase_order":
			inv.Note = joinLines(inv.Note, value)
		default:
			if field, ok := strings.CutPrefix(kind, "supplier_"); ok {
				sender.set(field, entity)
			} else if field, ok := strings.CutPrefix(kind, "receiver_"); ok {
				recipient.set(field, entity)
			}
		}
	}

	if inv.Number == "" {
		if number := m.invoiceNumberFallback(doc); number != "" {
			inv.Number = number
			confidence["invoice_number_fallback"] = fallbackConfidence
			m.log.Info().Str("fallback_number", number).Msg("Invoice number extracted using fallback strategy")
		}
	}
	if !dueSet || inv.DueDate.Before(inv.IssueDate) {
		inv.DueDate = inv.IssueDate.Add(invoice.DefaultPaymentTerm)
	}
	if p, ok := sender.party(); ok {
		inv.Sender = &p
	}
	if p, ok := recipient.party(); ok {
		inv.Recipient = &p
	}

	rate := models.DefaultVATPercent
	if len(rates) == 1 {
		for r := range rates {
			rate = r
		}
	}
	for _, line := range lines {
		if item, ok := m.item(line, rate); ok {
			inv = inv.AddItem(item)
		}
	}

	return &services.Draft{Invoice: inv, Confidence: confidence}
}

func (m mapper) date(entity *documentaipb.Document_Entity) (time.Time, bool) {
	if d := entity.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 {
		return time.Date(int(d.GetYear()), time.Month(d.GetMonth()), int(d.GetDay()), 0, 0, 0, 0, time.UTC), true
	}
	date, err := parse.Date(entity.GetMentionText())
	if err != nil {
		m.log.Warn().Err(err).Str("raw_value", entity.GetMentionText()).Msg("Failed to parse date from Document AI")
		return time.Time{}, false
	}
	return date, true
}

// item maps a line_item entity. Lines without a description and an amount
// are dropped.
func (m mapper) item(entity *documentaipb.Document_Entity, rate float64) (models.Item, bool) {
	var (
		description, unit      string
		quantity, price, total float64
	)
	lineRate := -1.0
	for _, prop := range entity.GetProperties() {
		value := strings.TrimSpace(prop.GetMentionText())
		switch strings.TrimPrefix(prop.GetType(), "line_item/") {
		case "description":
			description = joinLines(description, value)
		case "quantity":
			quantity = m.amount(prop)
		case "unit_price":
			price = m.amount(prop)
		case "amount":
			total = m.amount(prop)
		case "unit":
			unit = value
		case "vat_rate", "tax_rate":
			if r, err := parse.Percent(value); err == nil && value != "" {
				lineRate = r
			}
		}
	}
	if description == "" {
		description = strings.TrimSpace(entity.GetMentionText())
	}
	if description == "" && total == 0 && price == 0 {
		return models.Item{}, false
	}

	if quantity == 0 {
		quantity = 1
	}
	if price == 0 && total != 0 {
		price = total / quantity
	}
	if lineRate >= 0 {
		rate = lineRate
	}

	name, _, _ := strings.Cut(description, "\n")
	product := models.NewProduct(strings.TrimSpace(name))
	product.Description = description
	product.Price = price
	if code, ok := unitCode(unit); ok {
		product.Unit = code
	}
	if rate == 0 {
		product = product.WithTaxCategory("Z")
	}
	product.VATPercent = rate

	return models.NewItem(&product, quantity), true
}

func (m mapper) amount(entity *documentaipb.Document_Entity) float64 {
	if money := entity.GetNormalizedValue().GetMoneyValue(); money != nil {
		return float64(money.GetUnits()) + float64(money.GetNanos())/1e9
	}
	v, err := parse.Amount(entity.GetMentionText())
	if err != nil {
		m.log.Warn().Err(err).Str("raw_value", entity.GetMentionText()).Msg("Failed to parse amount from Document AI")
		return 0
	}
	return v
}

// invoiceNumberFallback searches line items, the full text and entity
// properties, in that order.
func (m mapper) invoiceNumberFallback(doc *documentaipb.Document) string {
	for _, entity := range doc.GetEntities() {
		if entity.GetType() == "line_item" || entity.GetType() == "line_item/description" {
			if number := invoiceNumberFromText(entity.GetMentionText()); number != "" {
				m.log.Debug().Str("source", "line_item").Str("number", number).Msg("Found invoice number in line item")
				return number
			}
		}
	}
	if number := invoiceNumberFromText(doc.GetText()); number != "" {
		m.log.Debug().Str("source", "full_text").Str("number", number).Msg("Found invoice number in full OCR text")
		return number
	}
	for _, entity := range doc.GetEntities() {
		for _, prop := range entity.GetProperties() {
			if number := invoiceNumberFromText(prop.GetMentionText()); number != "" {
				m.log.Debug().Str("source", "entity_property").Str("property_type", prop.GetType()).Msg("Found invoice number in entity property")
				return number
			}
		}
	}
	return ""
}

func invoiceNumberFromText(text string) string {
	for _, re := range invoiceNumberPatterns {
		for _, line := range strings.Split(text, "\n") {
			match := re.FindStringSubmatch(line)
			if len(match) < 2 {
				continue
			}
			candidate := strings.TrimRight(strings.TrimSpace(match[1]), "-/.")
			if len(candidate) >= 4 && len(candidate) <= 20 {
				return candidate
			}
		}
	}
	return ""
}

func vatRate(entity *documentaipb.Document_Entity) (float64, bool) {
	for _, prop := range entity.GetProperties() {
		if prop.GetType() == "vat/tax_rate" {
			if r, err := parse.Percent(prop.GetMentionText()); err == nil {
				return r, true
			}
		}
	}
	if match := ratePattern.FindStringSubmatch(entity.GetMentionText()); match != nil {
		if r, err := parse.Percent(match[1] + "%"); err == nil {
			return r, true
		}
	}
	return 0, false
}

func unitCode(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, u := range models.Units() {
		if strings.EqualFold(text, u.Code) || strings.EqualFold(text, u.Singular) || strings.EqualFold(text, u.Plural) {
			return u.Code, true
		}
	}
	code, ok := germanUnits[strings.ToLower(text)]
	return code, ok
}

// normalizeCurrency maps symbols and names to ISO 4217 codes.
func normalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	switch normalized {
	case "€", "EURO", "EUROS", "EUR":
		return "EUR"
	case "$", "DOLLAR", "DOLLARS", "USD", "US$":
		return "USD"
	case "£", "POUND", "POUNDS", "GBP":
		return "GBP"
	case "CHF", "FRANKEN", "SFR", "SFR.":
		return "CHF"
	}
	if len(normalized) == 3 {
		return normalized
	}
	return models.DefaultCurrency
}

func joinLines(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}

// partyBuilder collects supplier_* or receiver_* entities.
type partyBuilder struct {
	p     models.TradeParty
	found bool
}

func newParty() *partyBuilder {
	return &partyBuilder{p: models.NewTradeParty("")}
}

func (b *partyBuilder) set(field string, entity *documentaipb.Document_Entity) {
	value := strings.TrimSpace(entity.GetMentionText())
	if value == "" {
		return
	}

	switch field {
	case "name":
		b.p.Name = value
	case "address":
		b.address(entity)
	case "tax_id", "vat_id":
		id := strings.ToUpper(strings.Join(strings.Fields(value), ""))
		if vatIDPattern.MatchString(id) {
			b.p.VATID = id
		} else {
			b.p.TaxID = value
		}
	case "registration":
		b.p.RegisterNumber = value
	case "iban":
		iban := strings.ToUpper(strings.Join(strings.Fields(value), ""))
		b.p = b.p.WithBankDetails(models.BankDetails{IBAN: iban})
	case "email":
		b.contact().Email = value
	case "phone":
		b.contact().Phone = value
	case "website":
		b.p.Description = joinLines(b.p.Description, value)
	default:
		return
	}
	b.found = true
}

func (b *partyBuilder) contact() *models.Contact {
	if b.p.Contact == nil {
		b.p.Contact = &models.Contact{}
	}
	return b.p.Contact
}

// address prefers the structured postal address and falls back to reading
// "street / additional / ZIP location" lines.
func (b *partyBuilder) address(entity *documentaipb.Document_Entity) {
	if addr := entity.GetNormalizedValue().GetAddressValue(); addr != nil && len(addr.GetAddressLines()) > 0 {
		b.p.Street = addr.GetAddressLines()[0]
		b.p.AdditionalAddress = strings.Join(addr.GetAddressLines()[1:], ", ")
		b.p.ZIP = addr.GetPostalCode()
		b.p.Location = addr.GetLocality()
		if region := addr.GetRegionCode(); region != "" {
			b.p.Country = strings.ToUpper(region)
		}
		return
	}

	var rest []string
	for _, line := range strings.FieldsFunc(entity.GetMentionText(), func(r rune) bool { return r == '\n' || r == ',' }) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if match := zipLocationPattern.FindStringSubmatch(line); match != nil && b.p.ZIP == "" {
			if match[1] != "" {
				b.p.Country = match[1]
			}
			b.p.ZIP = match[2]
			b.p.Location = match[3]
			continue
		}
		rest = append(rest, line)
	}
	if len(rest) > 0 {
		b.p.Street = rest[0]
		b.p.AdditionalAddress = strings.Join(rest[1:], ", ")
	}
}

func (b *partyBuilder) party() (models.TradeParty, bool) {
	return b.p, b.found
}
