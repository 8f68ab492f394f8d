package models

import (
	"sync/atomic"
	"time"
)

var lastItemUID atomic.Int64

// nextItemUID derives a uid from the wall clock and bumps it when two items
// are created within the same nanosecond, so uids are strictly increasing
// within the process.
func nextItemUID() int64 {
	for {
		prev := lastItemUID.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastItemUID.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Item is a single invoice line. UID is a transient identity used to update
// and remove lines; it is never persisted.
type Item struct {
	UID      int64    `json:"-"`
	Product  *Product `json:"product"`
	Quantity float64  `json:"quantity"`
	Price    float64  `json:"price"`
	Notes    string   `json:"notes"`
}

// NewItem creates a line with a fresh uid. The unit price is taken from the
// product when one is given.
func NewItem(product *Product, quantity float64) Item {
	item := Item{UID: nextItemUID(), Quantity: quantity}
	if product != nil {
		p := *product
		item.Product = &p
		item.Price = p.Price
	}
	return item
}

// TotalNetPrice is quantity times unit price.
func (i Item) TotalNetPrice() float64 {
	return i.Quantity * i.Price
}

// Tax is the VAT amount of the line. A line without a product carries no tax.
func (i Item) Tax() float64 {
	if i.Product == nil {
		return 0
	}
	return i.Product.VATPercent / 100 * i.TotalNetPrice()
}

// TotalGrossPrice is net plus tax.
func (i Item) TotalGrossPrice() float64 {
	return i.TotalNetPrice() + i.Tax()
}

// WithQuantity returns a copy of i with the quantity replaced.
func (i Item) WithQuantity(quantity float64) Item {
	i.Quantity = quantity
	return i
}

// WithPrice returns a copy of i with the unit price replaced.
func (i Item) WithPrice(price float64) Item {
	i.Price = price
	return i
}

// WithNotes returns a copy of i with the notes replaced.
func (i Item) WithNotes(notes string) Item {
	i.Notes = notes
	return i
}

// WithProduct returns a copy of i referencing product. The price is left
// alone so a negotiated price survives a product change.
func (i Item) WithProduct(product *Product) Item {
	if product == nil {
		i.Product = nil
		return i
	}
	p := *product
	i.Product = &p
	return i
}
