package models_test

import (
	"fmt"
	"time"

	"zugferd/pkg/models"
)

func ExampleInvoice_Totals() {
	consulting := models.NewProduct("Consulting")
	consulting.Price = 10

	inv := models.NewInvoice(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)).
		WithNumber("R-2025-001").
		AddItem(models.NewItem(&consulting, 3))

	t := inv.Totals()
	fmt.Printf("%.2f %.2f %.2f\n", t.Net, t.Tax, t.Gross)
	fmt.Println(inv.IsValid())
	// Output:
	// 30.00 5.70 35.70
	// false
}

func ExampleFindTaxCategory() {
	c, ok := models.FindTaxCategory("AE")
	fmt.Println(ok, c.Description)
	// Output: true VAT reverse charge
}
