package services

import (
	"fmt"
	"strings"
)

// Severity classifies a validation message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNotice  Severity = "notice"
)

// ValidationMessage is a single finding of the toolkit.
type ValidationMessage struct {
	Severity Severity `json:"severity"`
	Type     string   `json:"type"`     // rule or error code reported by the toolkit
	Text     string   `json:"text"`
	Location string   `json:"location"` // XPath or PDF object, when known
}

// ValidationReport summarizes a toolkit validation run.
type ValidationReport struct {
	Valid     bool                `json:"valid"`
	PDFValid  *bool               `json:"pdfValid"` // nil when no PDF part was checked
	XMLValid  bool                `json:"xmlValid"`
	Profile   string              `json:"profile"`
	Version   string              `json:"version"`
	Signature string              `json:"signature"` // producer signature found in the file
	Messages  []ValidationMessage `json:"messages"`
}

// Count returns the number of messages with severity s.
func (r *ValidationReport) Count(s Severity) int {
	n := 0
	for _, m := range r.Messages {
		if m.Severity == s {
			n++
		}
	}
	return n
}

// Summary is a one-line description such as "invalid: 2 errors, 1 warning".
func (r *ValidationReport) Summary() string {
	var b strings.Builder
	if r.Valid {
		b.WriteString("valid")
	} else {
		b.WriteString("invalid")
	}
	parts := []string{}
	if n := r.Count(SeverityError); n > 0 {
		parts = append(parts, plural(n, "error"))
	}
	if n := r.Count(SeverityWarning); n > 0 {
		parts = append(parts, plural(n, "warning"))
	}
	if n := r.Count(SeverityNotice); n > 0 {
		parts = append(parts, plural(n, "notice"))
	}
	if len(parts) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
