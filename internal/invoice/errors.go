package invoice

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInvoice is returned when an invoice that fails IsValid is
	// exported. The details list what is missing.
	ErrInvalidInvoice = errors.New("invoice is not ready for export")

	// ErrUnknownRecord is returned when a draft references a sender,
	// recipient or product key that is not in the repository.
	ErrUnknownRecord = errors.New("unknown record")

	// ErrInvalidDraft is returned when a draft file fails validation.
	ErrInvalidDraft = errors.New("invalid invoice draft")

	// ErrNothingToSave is returned when the session has no party or product
	// at the requested place.
	ErrNothingToSave = errors.New("nothing to save")
)

// InvoiceError wraps errors with the operation that failed.
type InvoiceError struct {
	// Op is the operation that failed (e.g., "Export", "LoadDraft").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *InvoiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("invoice: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("invoice: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *InvoiceError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *InvoiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapInvoiceError wraps an error as an InvoiceError if it isn't already one.
func WrapInvoiceError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var invoiceErr *InvoiceError
	if errors.As(err, &invoiceErr) {
		return err
	}

	return &InvoiceError{Op: op, Err: err, Details: details}
}

// FieldError describes one invalid field of a draft.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}
