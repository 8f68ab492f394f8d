package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Invoice is the aggregate being edited. It is a plain value: every change
// produces a new revision through one of the With methods and the holder
// replaces its copy.
type Invoice struct {
	Number        string      `json:"number"`
	IssueDate     time.Time   `json:"issueDate"`
	DueDate       time.Time   `json:"dueDate"`
	Currency      string      `json:"currency"`
	Sender        *TradeParty `json:"sender"`
	Recipient     *TradeParty `json:"recipient"`
	PaymentMethod int         `json:"paymentMethod"`
	Note          string      `json:"note"`
	Items         []Item      `json:"items"`
}

// Totals are the unrounded sums over all items.
type Totals struct {
	Net   float64 `json:"net"`
	Tax   float64 `json:"tax"`
	Gross float64 `json:"gross"`
}

// NewInvoice returns an empty invoice issued at issued with the default
// currency and payment method.
func NewInvoice(issued time.Time) Invoice {
	return Invoice{
		IssueDate:     issued,
		DueDate:       issued,
		Currency:      DefaultCurrency,
		PaymentMethod: DefaultPaymentMethod,
	}
}

// IsValid reports whether the invoice has the minimum data for export: a
// number, a named sender with a VAT ID or tax ID, and a named recipient.
func (inv Invoice) IsValid() bool {
	return len(inv.Problems()) == 0
}

// Problems lists the reasons why IsValid is false, in a fixed order.
func (inv Invoice) Problems() []string {
	var problems []string
	if strings.TrimSpace(inv.Number) == "" {
		problems = append(problems, "invoice number is missing")
	}
	switch {
	case inv.Sender == nil:
		problems = append(problems, "sender is missing")
	default:
		if strings.TrimSpace(inv.Sender.Name) == "" {
			problems = append(problems, "sender name is missing")
		}
		if !inv.Sender.HasTaxIdentifier() {
			problems = append(problems, "sender needs a VAT ID or tax ID")
		}
	}
	switch {
	case inv.Recipient == nil:
		problems = append(problems, "recipient is missing")
	case strings.TrimSpace(inv.Recipient.Name) == "":
		problems = append(problems, "recipient name is missing")
	}
	return problems
}

// LineProblems lists lines the XML generator would refuse although the
// invoice itself is valid: zero rated products whose tax category requires
// an exemption reason that is blank.
func (inv Invoice) LineProblems() []string {
	var problems []string
	for i, item := range inv.Items {
		if item.Product != nil && item.Product.MissingExemptionReason() {
			problems = append(problems, fmt.Sprintf("line %d (%s): tax category %s at 0 %% needs an exemption reason",
				i+1, item.Product.Name, item.Product.TaxCategory))
		}
	}
	return problems
}

// Totals sums net, tax and gross over all items.
func (inv Invoice) Totals() Totals {
	var t Totals
	for _, item := range inv.Items {
		t.Net += item.TotalNetPrice()
		t.Tax += item.Tax()
		t.Gross += item.TotalGrossPrice()
	}
	return t
}

// Item returns the line with the given uid.
func (inv Invoice) Item(uid int64) (Item, bool) {
	for _, item := range inv.Items {
		if item.UID == uid {
			return item, true
		}
	}
	return Item{}, false
}

func (inv Invoice) WithNumber(number string) Invoice {
	inv.Number = number
	return inv
}

func (inv Invoice) WithIssueDate(date time.Time) Invoice {
	inv.IssueDate = date
	return inv
}

func (inv Invoice) WithDueDate(date time.Time) Invoice {
	inv.DueDate = date
	return inv
}

func (inv Invoice) WithCurrency(currency string) Invoice {
	inv.Currency = currency
	return inv
}

func (inv Invoice) WithPaymentMethod(code int) Invoice {
	inv.PaymentMethod = code
	return inv
}

func (inv Invoice) WithNote(note string) Invoice {
	inv.Note = note
	return inv
}

// WithSender returns a revision holding a copy of party, or no sender when
// party is nil.
func (inv Invoice) WithSender(party *TradeParty) Invoice {
	inv.Sender = cloneParty(party)
	return inv
}

// WithRecipient returns a revision holding a copy of party, or no recipient
// when party is nil.
func (inv Invoice) WithRecipient(party *TradeParty) Invoice {
	inv.Recipient = cloneParty(party)
	return inv
}

// AddItem appends item. Items stay ordered by uid.
func (inv Invoice) AddItem(item Item) Invoice {
	items := make([]Item, 0, len(inv.Items)+1)
	items = append(items, inv.Items...)
	items = append(items, item)
	sort.SliceStable(items, func(a, b int) bool { return items[a].UID < items[b].UID })
	inv.Items = items
	return inv
}

// UpdateItem replaces the line whose uid matches item. Unknown uids leave
// the invoice unchanged.
func (inv Invoice) UpdateItem(item Item) Invoice {
	items := make([]Item, len(inv.Items))
	copy(items, inv.Items)
	for i := range items {
		if items[i].UID == item.UID {
			items[i] = item
		}
	}
	inv.Items = items
	return inv
}

// RemoveItem drops the line with the given uid.
func (inv Invoice) RemoveItem(uid int64) Invoice {
	items := make([]Item, 0, len(inv.Items))
	for _, item := range inv.Items {
		if item.UID != uid {
			items = append(items, item)
		}
	}
	inv.Items = items
	return inv
}

func cloneParty(party *TradeParty) *TradeParty {
	if party == nil {
		return nil
	}
	c := party.Clone()
	return &c
}
