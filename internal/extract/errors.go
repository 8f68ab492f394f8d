package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPDF is returned when the data is not a PDF or Document AI
	// refuses it.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrDocumentTooLarge is returned when the PDF exceeds the online
	// processing limit.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")

	// ErrProcessingFailed is returned when Document AI processing fails.
	ErrProcessingFailed = errors.New("document AI processing failed")

	// ErrInvalidConfiguration is returned when project or location are missing.
	ErrInvalidConfiguration = errors.New("invalid Document AI configuration")

	// ErrMissingCredentials is returned when no Google Cloud credentials are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials")

	// ErrInvalidCredentials is returned when the credentials lack permission.
	ErrInvalidCredentials = errors.New("invalid Google Cloud credentials")

	// ErrProcessorNotFound is returned when the configured processor does not exist.
	ErrProcessorNotFound = errors.New("Document AI processor not found")

	// ErrQuotaExceeded is returned when Document AI API quota limits are exceeded.
	ErrQuotaExceeded = errors.New("Document AI API quota exceeded")

	// ErrNoInvoiceData is returned when the document yields neither a
	// number, a party nor a line item.
	ErrNoInvoiceData = errors.New("no invoice data found in document")
)

// ExtractError wraps errors with the operation and processor involved.
type ExtractError struct {
	// Op is the operation that failed (e.g., "Extract", "New").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// ProcessorID is the Document AI processor used, if known.
	ProcessorID string
}

// Error implements the error interface.
func (e *ExtractError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extract: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	if e.ProcessorID != "" {
		return fmt.Sprintf("extract: %s failed (processor: %s): %v", e.Op, e.ProcessorID, e.Err)
	}
	return fmt.Sprintf("extract: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractError wraps an error as an ExtractError if it isn't already one.
func WrapExtractError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var extractErr *ExtractError
	if errors.As(err, &extractErr) {
		return err
	}
	return &ExtractError{Op: op, Err: err, Details: details}
}
