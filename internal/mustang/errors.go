package mustang

import (
	"errors"
	"fmt"
)

var (
	// ErrToolkitMissing is returned when the toolkit command cannot be
	// started, usually because java or the jar is not installed.
	ErrToolkitMissing = errors.New("e-invoice toolkit not available")

	// ErrToolkitFailed is returned when the toolkit exits with an error.
	ErrToolkitFailed = errors.New("e-invoice toolkit failed")

	// ErrNoReport is returned when a validation run printed no report.
	ErrNoReport = errors.New("no validation report in toolkit output")

	// ErrUnknownProfile is returned for profiles the toolkit cannot embed.
	ErrUnknownProfile = errors.New("unknown e-invoice profile")
)

// ToolkitError keeps the toolkit's diagnostic output for the user.
type ToolkitError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *ToolkitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("mustang: %s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("mustang: %s: %v", e.Op, e.Err)
}

func (e *ToolkitError) Unwrap() error {
	return e.Err
}

func (e *ToolkitError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
