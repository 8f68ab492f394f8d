package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zugferd/pkg/models"
)

func TestItemTotals(t *testing.T) {
	product := models.NewProduct("Consulting")
	product.Price = 10

	item := models.NewItem(&product, 3)

	assert.InDelta(t, 30.0, item.TotalNetPrice(), 1e-9)
	assert.InDelta(t, 5.7, item.Tax(), 1e-9)
	assert.InDelta(t, 35.7, item.TotalGrossPrice(), 1e-9)
}

func TestItemWithoutProductHasNoTax(t *testing.T) {
	item := models.NewItem(nil, 2).WithPrice(12.5)

	assert.Equal(t, 25.0, item.TotalNetPrice())
	assert.Zero(t, item.Tax())
	assert.Equal(t, 25.0, item.TotalGrossPrice())
}

func TestItemUIDsStrictlyIncrease(t *testing.T) {
	prev := models.NewItem(nil, 1).UID
	for i := 0; i < 1000; i++ {
		next := models.NewItem(nil, 1).UID
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestInvoiceIsValid(t *testing.T) {
	sender := models.NewTradeParty("Acme")
	sender.VATID = "DE123"
	recipient := models.NewTradeParty("Client GmbH")

	valid := models.NewInvoice(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)).
		WithNumber("R-2025-001").
		WithSender(&sender).
		WithRecipient(&recipient)

	require.True(t, valid.IsValid())
	assert.Empty(t, valid.Problems())

	tests := []struct {
		name   string
		change func(models.Invoice) models.Invoice
	}{
		{"blank number", func(inv models.Invoice) models.Invoice { return inv.WithNumber("   ") }},
		{"no sender", func(inv models.Invoice) models.Invoice { return inv.WithSender(nil) }},
		{"no recipient", func(inv models.Invoice) models.Invoice { return inv.WithRecipient(nil) }},
		{"sender without tax identifiers", func(inv models.Invoice) models.Invoice {
			s := *inv.Sender
			s.VATID = ""
			s.TaxID = " "
			return inv.WithSender(&s)
		}},
		{"blank sender name", func(inv models.Invoice) models.Invoice {
			s := *inv.Sender
			s.Name = ""
			return inv.WithSender(&s)
		}},
		{"blank recipient name", func(inv models.Invoice) models.Invoice {
			r := *inv.Recipient
			r.Name = "\t"
			return inv.WithRecipient(&r)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := tt.change(valid)
			assert.False(t, inv.IsValid())
			assert.NotEmpty(t, inv.Problems())
			assert.True(t, valid.IsValid(), "original revision must not change")
		})
	}
}

func TestInvoiceTaxIDIsEnough(t *testing.T) {
	sender := models.NewTradeParty("Acme")
	sender.TaxID = "12/345/67890"
	recipient := models.NewTradeParty("Client GmbH")

	inv := models.Invoice{Number: "R-1"}.WithSender(&sender).WithRecipient(&recipient)
	assert.True(t, inv.IsValid())
}

func TestInvoiceItems(t *testing.T) {
	product := models.NewProduct("Hosting")
	product.Price = 10

	first := models.NewItem(&product, 3)
	second := models.NewItem(nil, 1).WithPrice(5)

	inv := models.Invoice{}.AddItem(second).AddItem(first)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, first.UID, inv.Items[0].UID, "items are ordered by uid")

	totals := inv.Totals()
	assert.InDelta(t, 35.0, totals.Net, 1e-9)
	assert.InDelta(t, 5.7, totals.Tax, 1e-9)
	assert.InDelta(t, 40.7, totals.Gross, 1e-9)

	updated := inv.UpdateItem(second.WithQuantity(4))
	got, ok := updated.Item(second.UID)
	require.True(t, ok)
	assert.Equal(t, 4.0, got.Quantity)
	orig, _ := inv.Item(second.UID)
	assert.Equal(t, 1.0, orig.Quantity)

	removed := updated.RemoveItem(first.UID)
	assert.Len(t, removed.Items, 1)
	assert.Len(t, updated.Items, 2)

	same := removed.RemoveItem(12345)
	assert.Equal(t, removed.Items, same.Items)
}

func TestWithSenderCopies(t *testing.T) {
	sender := models.NewTradeParty("Acme").WithContact(models.Contact{Name: "Jane"})
	inv := models.Invoice{}.WithSender(&sender)

	sender.Name = "Changed"
	sender.Contact.Name = "Changed"

	assert.Equal(t, "Acme", inv.Sender.Name)
	assert.Equal(t, "Jane", inv.Sender.Contact.Name)
}

func TestNewRecordDefaults(t *testing.T) {
	party := models.NewTradeParty("Acme")
	assert.Equal(t, "DE", party.Country)
	assert.Equal(t, 58, party.PreferredPaymentMethod)
	assert.False(t, party.IsSaved())
	assert.True(t, party.WithKey(3).IsSaved())

	product := models.NewProduct("Widget")
	assert.Equal(t, "H87", product.Unit)
	assert.Equal(t, 19.0, product.VATPercent)
	assert.Equal(t, "S", product.TaxCategory)
	assert.False(t, product.RequiresExemptionReason())
}

func TestProductTaxCategory(t *testing.T) {
	product := models.NewProduct("Export").WithTaxCategory("g")
	assert.Equal(t, "G", product.TaxCategory)
	assert.Zero(t, product.VATPercent)
	assert.Equal(t, "Export outside the EU", product.TaxExemptionReason)
	assert.True(t, product.RequiresExemptionReason())
	assert.False(t, product.MissingExemptionReason())

	exempt := models.NewProduct("Medical").WithTaxCategory("E")
	assert.True(t, exempt.MissingExemptionReason())

	reduced := models.NewProduct("Canary").WithTaxCategory("L")
	assert.Equal(t, 7.0, reduced.VATPercent)

	unknown := models.NewProduct("Odd").WithTaxCategory("XX")
	assert.Equal(t, 19.0, unknown.VATPercent)
	assert.False(t, unknown.RequiresExemptionReason())
}

func TestCodeLookups(t *testing.T) {
	c, ok := models.FindTaxCategory(" ae ")
	require.True(t, ok)
	assert.Equal(t, "Reverse charge", c.DefaultExemptionReason)

	_, ok = models.FindTaxCategory("Q")
	assert.False(t, ok)

	u, ok := models.FindUnit("hur")
	require.True(t, ok)
	assert.Equal(t, "hour", u.Describe(1))
	assert.Equal(t, "hours", u.Describe(2.5))

	m, ok := models.FindPaymentMethod(58)
	require.True(t, ok)
	assert.Equal(t, "SEPA credit transfer", m.Description)

	_, ok = models.FindPaymentMethod(0)
	assert.False(t, ok)

	cats := models.TaxCategories()
	cats[0].Code = "mutated"
	again, _ := models.FindTaxCategory("S")
	assert.Equal(t, "S", again.Code)
}
