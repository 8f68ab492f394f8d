// Package extract proposes invoice drafts from PDF invoices using the Google
// Document AI invoice parser. Nothing it returns is stored: parties and
// products come back transient (key 0) for the user to review.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zugferd/internal/logger"
	"zugferd/pkg/services"
)

const (
	// MaxDocumentSizeBytes is the online processing limit of Document AI (20MB).
	MaxDocumentSizeBytes = 20 * 1024 * 1024

	// DefaultTimeout bounds a single ProcessDocument call.
	DefaultTimeout = 60 * time.Second

	// DefaultLocation is the multi-region served by the global endpoint.
	DefaultLocation = "us"
)

// Config selects the processor and credentials.
type Config struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration

	// CredentialsJSON takes precedence over CredentialsFile. With neither,
	// application default credentials are used.
	CredentialsJSON string
	CredentialsFile string
}

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// Extractor implements services.DraftExtractor with Document AI.
type Extractor struct {
	config  Config
	process processFunc
	close   func() error
	now     func() time.Time
	log     zerolog.Logger
}

var _ services.DraftExtractor = (*Extractor)(nil)

// New connects to the regional Document AI endpoint for cfg.Location.
func New(ctx context.Context, cfg Config) (*Extractor, error) {
	const op = "New"

	if cfg.ProjectID == "" {
		return nil, WrapExtractError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if cfg.ProcessorID == "" {
		return nil, WrapExtractError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}

	var opts []option.ClientOption
	if cfg.Location != DefaultLocation {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)))
	}
	hasCredentials := true
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		hasCredentials = false
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if !hasCredentials {
			return nil, WrapExtractError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapExtractError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	e := newExtractor(cfg, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return client.ProcessDocument(ctx, req)
	})
	e.close = client.Close
	return e, nil
}

func newExtractor(cfg Config, process processFunc) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Extractor{
		config:  cfg,
		process: process,
		now:     time.Now,
		log:     logger.WithComponent("document-ai"),
	}
}

// Close closes the underlying Document AI client.
func (e *Extractor) Close() error {
	if e.close != nil {
		return e.close()
	}
	return nil
}

// Extract sends the PDF to the processor and maps the entities it finds to a
// draft invoice.
func (e *Extractor) Extract(ctx context.Context, pdf io.Reader) (*services.Draft, error) {
	const op = "Extract"

	data, err := io.ReadAll(io.LimitReader(pdf, MaxDocumentSizeBytes+1))
	if err != nil {
		return nil, WrapExtractError(op, err, "failed to read PDF data")
	}
	if len(data) > MaxDocumentSizeBytes {
		return nil, WrapExtractError(op, ErrDocumentTooLarge, fmt.Sprintf("more than %d bytes", MaxDocumentSizeBytes))
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, WrapExtractError(op, ErrInvalidPDF, "missing PDF header")
	}

	processCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.process(processCtx, &documentaipb.ProcessRequest{
		Name: e.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return nil, e.handleProcessingError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, WrapExtractError(op, ErrProcessingFailed, "no document in response")
	}

	m := mapper{log: e.log, now: e.now}
	draft := m.draft(resp.GetDocument())
	if draft.Invoice.Number == "" && draft.Invoice.Sender == nil && len(draft.Invoice.Items) == 0 {
		return nil, &ExtractError{Op: op, Err: ErrNoInvoiceData, ProcessorID: e.config.ProcessorID}
	}

	e.log.Info().
		Str("invoice_number", draft.Invoice.Number).
		Int("items", len(draft.Invoice.Items)).
		Dur("duration", time.Since(start)).
		Msg("Document AI extraction completed")
	return draft, nil
}

func (e *Extractor) processorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		e.config.ProjectID, e.config.Location, e.config.ProcessorID)
	if e.config.ProcessorVersion != "" {
		name += "/processorVersions/" + e.config.ProcessorVersion
	}
	return name
}

func (e *Extractor) handleProcessingError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return WrapExtractError(op, err, "processing was interrupted")
	}

	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapExtractError(op, ErrInvalidCredentials, "insufficient permissions for Document AI")
	case codes.ResourceExhausted:
		return WrapExtractError(op, ErrQuotaExceeded, "Document AI API quota exceeded")
	case codes.NotFound:
		return WrapExtractError(op, ErrProcessorNotFound, fmt.Sprintf("processor not found: %s", e.config.ProcessorID))
	case codes.InvalidArgument:
		return WrapExtractError(op, ErrInvalidPDF, "document format not supported or corrupted")
	case codes.DeadlineExceeded:
		return WrapExtractError(op, context.DeadlineExceeded, "processing timeout")
	case codes.Canceled:
		return WrapExtractError(op, context.Canceled, "processing was canceled")
	default:
		return WrapExtractError(op, ErrProcessingFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}
