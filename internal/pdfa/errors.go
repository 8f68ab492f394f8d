package pdfa

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPDF is returned when the input does not start like a PDF.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrDocumentTooLarge is returned when the PDF exceeds MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")

	// ErrConversionFailed is returned when the converter ran but did not
	// produce a PDF/A-3 file.
	ErrConversionFailed = errors.New("PDF/A conversion failed")

	// ErrConverterMissing is returned when the Ghostscript binary cannot be
	// found.
	ErrConverterMissing = errors.New("ghostscript not found")
)

// ConversionError carries the converter's diagnostic output.
type ConversionError struct {
	Op     string
	Path   string
	Err    error
	Stderr string
}

func (e *ConversionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("pdfa: %s %s: %v: %s", e.Op, e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("pdfa: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func (e *ConversionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
