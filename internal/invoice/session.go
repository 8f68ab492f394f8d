// Package invoice holds the invoice being edited, loads invoice drafts and
// builds the rounded document handed to the e-invoice toolkit.
package invoice

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"zugferd/internal/logger"
	"zugferd/internal/repository"
	"zugferd/pkg/models"
)

// Session owns the current revision of the invoice being edited. Every
// change replaces the revision and notifies observers; readers always get a
// consistent value.
type Session struct {
	repos *repository.Set
	log   zerolog.Logger

	mu      sync.RWMutex
	current models.Invoice

	obsMu     sync.Mutex
	observers map[int]func(models.Invoice)
	nextObs   int
}

// NewSession starts editing inv. repos receives parties and products saved
// from the session and may be nil when saving is not needed.
func NewSession(repos *repository.Set, inv models.Invoice) *Session {
	return &Session{
		repos:     repos,
		log:       logger.WithComponent("invoice"),
		current:   inv,
		observers: make(map[int]func(models.Invoice)),
	}
}

// Current returns the current revision.
func (s *Session) Current() models.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace makes inv the current revision.
func (s *Session) Replace(inv models.Invoice) {
	s.mu.Lock()
	s.current = inv
	s.mu.Unlock()
	s.notify(inv)
}

// Update derives the next revision from the current one. fn runs with the
// session locked and must not call back into the session.
func (s *Session) Update(fn func(models.Invoice) models.Invoice) models.Invoice {
	s.mu.Lock()
	next := fn(s.current)
	s.current = next
	s.mu.Unlock()
	s.notify(next)
	return next
}

// IsValid evaluates the export gate against the current revision.
func (s *Session) IsValid() bool {
	return s.Current().IsValid()
}

// Subscribe registers fn to receive every new revision and returns a
// function that removes it.
func (s *Session) Subscribe(fn func(models.Invoice)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) notify(inv models.Invoice) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(models.Invoice), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(inv)
	}
}

// SaveSender stores the current sender in the sender repository and makes
// the invoice reference the keyed record. An incomplete sender is refused
// with models.ErrInvalidRecord. The returned error otherwise reports a
// failed write; the record is stored in memory either way.
func (s *Session) SaveSender() (models.TradeParty, error) {
	const op = "SaveSender"

	inv := s.Current()
	if inv.Sender == nil || s.repos == nil {
		return models.TradeParty{}, WrapInvoiceError(op, ErrNothingToSave, "no sender")
	}
	if err := inv.Sender.Validate(); err != nil {
		return models.TradeParty{}, WrapInvoiceError(op, err, "sender")
	}
	stored := s.putSender(*inv.Sender)
	return stored, s.repos.Senders.Save()
}

func (s *Session) putSender(p models.TradeParty) models.TradeParty {
	stored := s.repos.Senders.Put(p)
	s.Update(func(cur models.Invoice) models.Invoice { return cur.WithSender(&stored) })
	s.log.Info().Int("key", stored.Key).Str("name", stored.Name).Msg("Sender saved permanently")
	return stored
}

// SaveRecipient is SaveSender for the recipient.
func (s *Session) SaveRecipient() (models.TradeParty, error) {
	const op = "SaveRecipient"

	inv := s.Current()
	if inv.Recipient == nil || s.repos == nil {
		return models.TradeParty{}, WrapInvoiceError(op, ErrNothingToSave, "no recipient")
	}
	if err := inv.Recipient.Validate(); err != nil {
		return models.TradeParty{}, WrapInvoiceError(op, err, "recipient")
	}
	stored := s.putRecipient(*inv.Recipient)
	return stored, s.repos.Recipients.Save()
}

func (s *Session) putRecipient(p models.TradeParty) models.TradeParty {
	stored := s.repos.Recipients.Put(p)
	s.Update(func(cur models.Invoice) models.Invoice { return cur.WithRecipient(&stored) })
	s.log.Info().Int("key", stored.Key).Str("name", stored.Name).Msg("Recipient saved permanently")
	return stored
}

// SaveProduct stores the product of the line with the given uid in the
// catalogue and points the line at the keyed record.
func (s *Session) SaveProduct(uid int64) (models.Product, error) {
	const op = "SaveProduct"

	item, ok := s.Current().Item(uid)
	if !ok || item.Product == nil || s.repos == nil {
		return models.Product{}, WrapInvoiceError(op, ErrNothingToSave, "no product on this line")
	}
	if err := item.Product.Validate(); err != nil {
		return models.Product{}, WrapInvoiceError(op, err, "product")
	}
	stored := s.putProduct(uid, *item.Product)
	return stored, s.repos.Products.Save()
}

func (s *Session) putProduct(uid int64, p models.Product) models.Product {
	stored := s.repos.Products.Put(p)
	s.Update(func(cur models.Invoice) models.Invoice {
		if line, ok := cur.Item(uid); ok {
			return cur.UpdateItem(line.WithProduct(&stored))
		}
		return cur
	})
	s.log.Info().Int("key", stored.Key).Str("name", stored.Name).Msg("Product saved permanently")
	return stored
}

// Saved lists the records SaveAll stored.
type Saved struct {
	Sender    *models.TradeParty
	Recipient *models.TradeParty
	Products  []models.Product
}

// Count is the number of stored records.
func (s Saved) Count() int {
	n := len(s.Products)
	if s.Sender != nil {
		n++
	}
	if s.Recipient != nil {
		n++
	}
	return n
}

// SaveAll stores every transient party and product of the invoice and
// writes the touched collections concurrently. When one of the records is
// incomplete nothing is stored.
func (s *Session) SaveAll() (Saved, error) {
	const op = "SaveAll"

	var saved Saved
	if s.repos == nil {
		return saved, WrapInvoiceError(op, ErrNothingToSave, "no repositories")
	}

	inv := s.Current()
	var invalid []error
	if inv.Sender != nil && !inv.Sender.IsSaved() {
		invalid = append(invalid, inv.Sender.Validate())
	}
	if inv.Recipient != nil && !inv.Recipient.IsSaved() {
		invalid = append(invalid, inv.Recipient.Validate())
	}
	for _, item := range inv.Items {
		if item.Product != nil && !item.Product.IsSaved() {
			invalid = append(invalid, item.Product.Validate())
		}
	}
	if err := errors.Join(invalid...); err != nil {
		return saved, WrapInvoiceError(op, err, "")
	}

	var writes []<-chan error
	if inv.Sender != nil && !inv.Sender.IsSaved() {
		p := s.putSender(*inv.Sender)
		saved.Sender = &p
		writes = append(writes, s.repos.Senders.SaveAsync())
	}
	if inv.Recipient != nil && !inv.Recipient.IsSaved() {
		p := s.putRecipient(*inv.Recipient)
		saved.Recipient = &p
		writes = append(writes, s.repos.Recipients.SaveAsync())
	}
	for _, item := range inv.Items {
		if item.Product != nil && !item.Product.IsSaved() {
			saved.Products = append(saved.Products, s.putProduct(item.UID, *item.Product))
		}
	}
	if len(saved.Products) > 0 {
		writes = append(writes, s.repos.Products.SaveAsync())
	}

	var failed []error
	for _, done := range writes {
		if err := <-done; err != nil {
			failed = append(failed, err)
		}
	}
	return saved, errors.Join(failed...)
}
