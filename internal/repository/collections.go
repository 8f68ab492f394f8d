package repository

import (
	"path/filepath"

	"zugferd/internal/platform"
	"zugferd/internal/store"
	"zugferd/pkg/models"
)

// File names below the data directory.
const (
	SendersFile    = "senders.json"
	RecipientsFile = "recipients.json"
	ProductsFile   = "products.json"
)

// Parties holds senders or recipients.
type Parties = Repository[models.TradeParty]

// Products holds the product catalogue.
type Products = Repository[models.Product]

// Set bundles the three collections the application works with.
type Set struct {
	Senders    *Parties
	Recipients *Parties
	Products   *Products
}

// OpenSenders loads the sender collection.
func OpenSenders(dirs platform.Dirs) *Parties {
	return New[models.TradeParty]("senders", document(dirs, SendersFile))
}

// OpenRecipients loads the recipient collection.
func OpenRecipients(dirs platform.Dirs) *Parties {
	return New[models.TradeParty]("recipients", document(dirs, RecipientsFile))
}

// OpenProducts loads the product catalogue.
func OpenProducts(dirs platform.Dirs) *Products {
	return New[models.Product]("products", document(dirs, ProductsFile))
}

// OpenAll loads every collection.
func OpenAll(dirs platform.Dirs) *Set {
	return &Set{
		Senders:    OpenSenders(dirs),
		Recipients: OpenRecipients(dirs),
		Products:   OpenProducts(dirs),
	}
}

func document(dirs platform.Dirs, name string) *store.JSONFile {
	return store.NewJSONFile(filepath.Join(dirs.DataDir(), name), dirs.QuarantineDir(), store.Array)
}
