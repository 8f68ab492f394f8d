package sheets

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when a spreadsheet URL has no document ID.
	ErrInvalidURL = errors.New("invalid Google Sheets URL")

	// ErrMissingCredentials is returned when no service account key is configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials")

	// ErrMissingHeader is returned when a worksheet has no recognizable
	// header row.
	ErrMissingHeader = errors.New("worksheet has no header row")

	// ErrInvalidRow is returned for a row whose cells cannot be converted.
	ErrInvalidRow = errors.New("invalid row")
)

// SheetsError wraps errors with the operation and worksheet involved.
type SheetsError struct {
	Op      string
	Sheet   string
	Err     error
	Details string
}

func (e *SheetsError) Error() string {
	msg := fmt.Sprintf("sheets: %s failed", e.Op)
	if e.Sheet != "" {
		msg += fmt.Sprintf(" (sheet %q)", e.Sheet)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *SheetsError) Unwrap() error {
	return e.Err
}

func (e *SheetsError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// RowError reports a skipped row. Row is the 1-based row number as shown
// in the spreadsheet.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}
