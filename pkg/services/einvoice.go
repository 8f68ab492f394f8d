package services

import (
	"context"
	"io"

	"zugferd/pkg/models"
)

// EInvoiceToolkit is the external toolkit that knows the ZUGFeRD/Factur-X
// formats. The application never writes or checks the XML itself.
type EInvoiceToolkit interface {
	// Validate checks a hybrid PDF or a bare invoice XML file.
	Validate(ctx context.Context, path string) (*ValidationReport, error)

	// Visualize renders invoice XML as a human readable HTML page.
	Visualize(ctx context.Context, xmlPath, htmlPath string) error

	// Combine embeds invoice XML into a PDF/A file, producing a hybrid
	// e-invoice in the given profile (e.g. "EN16931").
	Combine(ctx context.Context, req CombineRequest) error
}

// CombineRequest names the inputs and output of EInvoiceToolkit.Combine.
type CombineRequest struct {
	PDFPath    string
	XMLPath    string
	OutputPath string
	Profile    string
	Version    string // ZUGFeRD/Factur-X major version, e.g. "2"
}

// PDFAConverter turns an arbitrary PDF into PDF/A-3, the only PDF/A part
// that permits embedded XML.
type PDFAConverter interface {
	Convert(ctx context.Context, srcPath, dstPath string) error
}

// DraftExtractor reads a scanned or digital invoice and proposes an Invoice
// with its parties and lines filled in. The draft is transient: nothing is
// stored until the user saves it.
type DraftExtractor interface {
	Extract(ctx context.Context, pdf io.Reader) (*Draft, error)
}

// Draft is what a DraftExtractor found, with per-field confidence values
// between 0 and 1 keyed by entity type (e.g. "invoice_id").
type Draft struct {
	Invoice    models.Invoice     `json:"invoice"`
	Confidence map[string]float32 `json:"confidence"`
}
