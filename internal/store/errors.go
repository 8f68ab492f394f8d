package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the document does not exist yet. Callers
	// treat it as an empty collection.
	ErrNotFound = errors.New("document not found")

	// ErrQuarantined is returned when the document could not be read or did
	// not have the expected shape and was moved out of the way.
	ErrQuarantined = errors.New("document quarantined")

	// ErrWriteFailed is returned when a document could not be written. The
	// previous content has been restored.
	ErrWriteFailed = errors.New("document write failed")
)

// StoreError adds the file and operation to a store failure.
type StoreError struct {
	Op      string
	Path    string
	Err     error
	Details string
}

func (e *StoreError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("store: %s %s: %s: %v", e.Op, e.Path, e.Details, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newStoreError(op, path string, err error, details string) *StoreError {
	return &StoreError{Op: op, Path: path, Err: err, Details: details}
}
