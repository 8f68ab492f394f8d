// Package repository keeps the user's address book (senders, recipients)
// and product catalogue in memory and persists each collection as a JSON
// array.
package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"zugferd/internal/logger"
	"zugferd/internal/store"
)

// Record is implemented by every value a Repository can hold. Key 0 marks a
// transient record.
type Record[T any] interface {
	RecordKey() int
	WithKey(key int) T
	DisplayName() string
	Validate() error
}

// ChangeKind tells observers what happened to a record.
type ChangeKind int

const (
	Stored ChangeKind = iota + 1
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Stored:
		return "stored"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every Put and Remove.
type Change[T any] struct {
	Kind   ChangeKind
	Record T
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Repository is a keyed collection of records backed by one JSON document.
//
// Put and Remove only change memory; Save writes the whole collection. A
// failed Save leaves the file as it was and never rolls back memory, so the
// caller can retry.
type Repository[T Record[T]] struct {
	name string
	file *store.JSONFile
	log  zerolog.Logger

	mu      sync.RWMutex
	records []T

	saveMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]func(Change[T])
	nextObs   int
}

// New builds a repository over file and loads it. A missing document gives
// an empty collection. An unreadable one is quarantined and the collection
// starts empty, so New never fails.
func New[T Record[T]](name string, file *store.JSONFile) *Repository[T] {
	r := &Repository[T]{
		name:      name,
		file:      file,
		log:       logger.WithComponent("repository").With().Str("collection", name).Logger(),
		observers: make(map[int]func(Change[T])),
	}
	r.load()
	return r
}

func (r *Repository[T]) load() {
	var records []T
	err := r.file.Read(&records)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.log.Debug().Str("path", r.file.Path()).Msg("No stored collection, starting empty")
		return
	case err != nil:
		// The store has already logged and quarantined.
		return
	}

	if err := checkRecords(records); err != nil {
		_ = r.file.Quarantine(err)
		return
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			r.log.Warn().Err(err).Int("key", rec.RecordKey()).Msg("Stored record is incomplete, kept for editing")
		}
	}
	r.records = records
	r.log.Info().Int("records", len(records)).Msg("Collection loaded")
}

// checkRecords rejects stored collections with transient or duplicate keys.
// Field contents are checked where records enter the application, so a
// single odd value never costs the whole collection.
func checkRecords[T Record[T]](records []T) error {
	seen := make(map[int]bool, len(records))
	for i, rec := range records {
		key := rec.RecordKey()
		if err := validate.Var(key, "gt=0"); err != nil {
			return fmt.Errorf("record %d has invalid key %d", i, key)
		}
		if seen[key] {
			return fmt.Errorf("record %d repeats key %d", i, key)
		}
		seen[key] = true
	}
	return nil
}

// Name returns the collection name used in logs.
func (r *Repository[T]) Name() string {
	return r.name
}

// Put stores rec. A transient record gets the next free key and is
// appended; a keyed record replaces the record with the same key. The
// stored record is returned. Field contents are not checked here; callers
// run Validate on records that come from user input.
func (r *Repository[T]) Put(rec T) T {
	r.mu.Lock()
	key := rec.RecordKey()
	if key <= 0 {
		rec = rec.WithKey(r.nextKeyLocked())
	} else {
		r.removeLocked(key)
	}
	r.records = append(r.records, rec)
	r.mu.Unlock()

	r.log.Debug().Int("key", rec.RecordKey()).Str("name", rec.DisplayName()).Msg("Record stored")
	r.notify(Change[T]{Kind: Stored, Record: rec})
	return rec
}

// Remove drops the record with rec's key.
func (r *Repository[T]) Remove(rec T) bool {
	return r.RemoveKey(rec.RecordKey())
}

// RemoveKey drops every record carrying key and reports whether one was
// found. Transient keys never match.
func (r *Repository[T]) RemoveKey(key int) bool {
	if key <= 0 {
		return false
	}

	r.mu.Lock()
	removed, ok := r.removeLocked(key)
	r.mu.Unlock()
	if !ok {
		return false
	}

	r.log.Debug().Int("key", key).Msg("Record removed")
	r.notify(Change[T]{Kind: Removed, Record: removed})
	return true
}

func (r *Repository[T]) removeLocked(key int) (T, bool) {
	var (
		removed T
		found   bool
	)
	kept := r.records[:0:0]
	for _, rec := range r.records {
		if rec.RecordKey() == key {
			removed, found = rec, true
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, found
}

// All returns the records ordered by display name, case-insensitively.
// Records with equal names keep their insertion order.
func (r *Repository[T]) All() []T {
	r.mu.RLock()
	out := make([]T, len(r.records))
	copy(out, r.records)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName()) < strings.ToLower(out[j].DisplayName())
	})
	return out
}

// Get returns the record with key.
func (r *Repository[T]) Get(key int) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.RecordKey() == key {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the first record whose name matches name, ignoring case.
func (r *Repository[T]) Find(name string) (T, bool) {
	for _, rec := range r.All() {
		if strings.EqualFold(rec.DisplayName(), strings.TrimSpace(name)) {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of records.
func (r *Repository[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// NextKey returns the key the next transient record will get: one more than
// the largest key in use. Keys freed by removing the largest record are
// handed out again.
func (r *Repository[T]) NextKey() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextKeyLocked()
}

func (r *Repository[T]) nextKeyLocked() int {
	highest := 0
	for _, rec := range r.records {
		if k := rec.RecordKey(); k > highest {
			highest = k
		}
	}
	return highest + 1
}

// Import stores every record as a new one. Keys from the source are
// discarded so they cannot collide with existing records.
func (r *Repository[T]) Import(records []T) []T {
	stored := make([]T, 0, len(records))
	for _, rec := range records {
		stored = append(stored, r.Put(rec.WithKey(0)))
	}
	r.log.Info().Int("records", len(stored)).Msg("Records imported")
	return stored
}

// Save writes the collection. On failure the previous document is kept,
// the failure is logged and returned for information; memory is unchanged.
func (r *Repository[T]) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	snapshot := make([]T, len(r.records))
	copy(snapshot, r.records)
	r.mu.RUnlock()

	if err := r.file.Write(snapshot); err != nil {
		r.log.Warn().Err(err).Int("records", len(snapshot)).Msg("Could not save collection, previous file kept")
		return fmt.Errorf("save %s: %w", r.name, err)
	}
	r.log.Info().Int("records", len(snapshot)).Msg("Collection saved")
	return nil
}

// SaveAsync runs Save in the background. The result is delivered on the
// returned channel, which is closed afterwards.
func (r *Repository[T]) SaveAsync() <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- r.Save()
	}()
	return done
}

// Subscribe registers fn for change notifications and returns a function
// that removes it again. fn runs on the goroutine that made the change.
func (r *Repository[T]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

func (r *Repository[T]) notify(c Change[T]) {
	r.obsMu.Lock()
	ids := make([]int, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change[T]), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.observers[id])
	}
	r.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
