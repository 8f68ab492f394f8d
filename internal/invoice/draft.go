package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"zugferd/internal/preferences"
	"zugferd/internal/repository"
	"zugferd/pkg/models"
)

// DefaultPaymentTerm is the gap between issue and due date when a draft
// does not set a due date.
const DefaultPaymentTerm = 14 * 24 * time.Hour

// Draft is the file format for preparing an invoice outside the
// application. Parties and products are either referenced by repository key
// or written inline.
type Draft struct {
	Number        string      `json:"number"`
	IssueDate     string      `json:"issueDate" validate:"omitempty,datetime=2006-01-02"`
	DueDate       string      `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Currency      string      `json:"currency" validate:"omitempty,len=3,uppercase"`
	Sender        *PartyRef   `json:"sender"`
	Recipient     *PartyRef   `json:"recipient"`
	PaymentMethod int         `json:"paymentMethod" validate:"gte=0"`
	Note          string      `json:"note"`
	Items         []DraftItem `json:"items" validate:"dive"`
}

// PartyRef selects a stored party by key or carries one inline.
type PartyRef struct {
	Key   int                `json:"key" validate:"gte=0"`
	Party *models.TradeParty `json:"party"`
}

// DraftItem is one line of a draft. Price defaults to the product price.
type DraftItem struct {
	ProductKey int             `json:"productKey" validate:"gte=0"`
	Product    *models.Product `json:"product"`
	Quantity   float64         `json:"quantity" validate:"gte=0"`
	Price      *float64        `json:"price"`
	Notes      string          `json:"notes"`
}

// UnmarshalJSON starts an inline party from the record defaults, so fields
// left out of the draft keep them.
func (r *PartyRef) UnmarshalJSON(data []byte) error {
	type plain PartyRef
	aux := struct {
		*plain
		Party json.RawMessage `json:"party"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Party = nil
	if isJSONValue(aux.Party) {
		p := models.NewTradeParty("")
		if err := json.Unmarshal(aux.Party, &p); err != nil {
			return err
		}
		r.Party = &p
	}
	return nil
}

// UnmarshalJSON starts an inline product from the record defaults.
func (di *DraftItem) UnmarshalJSON(data []byte) error {
	type plain DraftItem
	aux := struct {
		*plain
		Product json.RawMessage `json:"product"`
	}{plain: (*plain)(di)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	di.Product = nil
	if isJSONValue(aux.Product) {
		p := models.NewProduct("")
		if err := json.Unmarshal(aux.Product, &p); err != nil {
			return err
		}
		di.Product = &p
	}
	return nil
}

func isJSONValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

var validate = validator.New()

// ReadDraft decodes and validates a draft.
func ReadDraft(r io.Reader) (*Draft, error) {
	const op = "ReadDraft"

	var d Draft
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return nil, WrapInvoiceError(op, ErrInvalidDraft, err.Error())
	}
	if err := validate.Struct(d); err != nil {
		return nil, WrapInvoiceError(op, ErrInvalidDraft, describeValidation(err))
	}
	return &d, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, (&FieldError{
			Field:   fe.Namespace(),
			Value:   fe.Value(),
			Message: fmt.Sprintf("fails %q", fe.Tag()),
		}).Error())
	}
	return strings.Join(msgs, "; ")
}

// Resolver turns drafts into invoices using the stored records and the
// user's preferences.
type Resolver struct {
	Repos *repository.Set
	Prefs preferences.Preferences
	Now   func() time.Time
}

// Resolve builds the invoice described by d. Missing values fall back to
// the preferences: currency, payment method and the default sender.
func (r *Resolver) Resolve(d *Draft) (models.Invoice, error) {
	const op = "Resolve"

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	today := now().UTC().Truncate(24 * time.Hour)

	inv := models.NewInvoice(today).WithNumber(d.Number).WithNote(d.Note)

	if d.IssueDate != "" {
		t, _ := time.Parse(DateLayout, d.IssueDate)
		inv = inv.WithIssueDate(t)
	}
	if d.DueDate != "" {
		t, _ := time.Parse(DateLayout, d.DueDate)
		inv = inv.WithDueDate(t)
	} else {
		inv = inv.WithDueDate(inv.IssueDate.Add(DefaultPaymentTerm))
	}

	inv = inv.WithCurrency(firstNonEmpty(d.Currency, r.Prefs.Currency, models.DefaultCurrency))
	inv = inv.WithPaymentMethod(firstPositive(d.PaymentMethod, r.Prefs.PaymentMethod, models.DefaultPaymentMethod))

	senderRef := d.Sender
	if senderRef == nil && r.Prefs.DefaultSenderKey > 0 {
		senderRef = &PartyRef{Key: r.Prefs.DefaultSenderKey}
	}
	sender, err := r.party(senderRef, r.Repos.Senders, "sender")
	if err != nil {
		return models.Invoice{}, WrapInvoiceError(op, err, "")
	}
	inv = inv.WithSender(sender)

	recipient, err := r.party(d.Recipient, r.Repos.Recipients, "recipient")
	if err != nil {
		return models.Invoice{}, WrapInvoiceError(op, err, "")
	}
	inv = inv.WithRecipient(recipient)

	for i, di := range d.Items {
		item, err := r.item(di)
		if err != nil {
			return models.Invoice{}, WrapInvoiceError(op, err, fmt.Sprintf("item %d", i+1))
		}
		inv = inv.AddItem(item)
	}
	return inv, nil
}

func (r *Resolver) party(ref *PartyRef, repo *repository.Parties, role string) (*models.TradeParty, error) {
	switch {
	case ref == nil:
		return nil, nil
	case ref.Party != nil:
		p := ref.Party.Clone()
		return &p, nil
	case ref.Key > 0:
		p, ok := repo.Get(ref.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s %d", ErrUnknownRecord, role, ref.Key)
		}
		return &p, nil
	}
	return nil, nil
}

func (r *Resolver) item(di DraftItem) (models.Item, error) {
	var product *models.Product
	switch {
	case di.Product != nil:
		p := *di.Product
		product = &p
	case di.ProductKey > 0:
		p, ok := r.Repos.Products.Get(di.ProductKey)
		if !ok {
			return models.Item{}, fmt.Errorf("%w: product %d", ErrUnknownRecord, di.ProductKey)
		}
		product = &p
	}

	item := models.NewItem(product, di.Quantity).WithNotes(di.Notes)
	if di.Price != nil {
		item = item.WithPrice(*di.Price)
	}
	return item, nil
}

// NewDraft is the inverse of Resolve: stored parties and products become
// key references, transient ones are written inline.
func NewDraft(inv models.Invoice) *Draft {
	d := &Draft{
		Number:        inv.Number,
		IssueDate:     formatDate(inv.IssueDate),
		DueDate:       formatDate(inv.DueDate),
		Currency:      inv.Currency,
		PaymentMethod: inv.PaymentMethod,
		Note:          inv.Note,
		Sender:        refFor(inv.Sender),
		Recipient:     refFor(inv.Recipient),
	}
	for _, item := range inv.Items {
		price := item.Price
		di := DraftItem{Quantity: item.Quantity, Price: &price, Notes: item.Notes}
		if item.Product != nil {
			if item.Product.IsSaved() {
				di.ProductKey = item.Product.Key
			} else {
				p := *item.Product
				di.Product = &p
			}
		}
		d.Items = append(d.Items, di)
	}
	return d
}

func refFor(p *models.TradeParty) *PartyRef {
	if p == nil {
		return nil
	}
	if p.IsSaved() {
		return &PartyRef{Key: p.Key}
	}
	c := p.Clone()
	return &PartyRef{Party: &c}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
