package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zugferd/internal/extract"
	"zugferd/internal/invoice"
	"zugferd/internal/logger"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Propose an invoice draft from a PDF using Google Document AI",
	Long: `Process a PDF invoice using Google Document AI's invoice parser and
write an invoice draft: number, dates, sender, recipient and lines.

The draft is a proposal. Nothing is stored; review it, then use
"zugferd invoice check" and "zugferd invoice save" to keep the parties
and products.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  GOOGLE_CLOUD_LOCATION - Processing location (us, eu, etc.)
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI invoice processor ID`,
	Example: `  # Write the draft to stdout
  zugferd extract rechnung.pdf

  # Save the draft for editing
  zugferd extract rechnung.pdf -o draft.json

  # Include confidence scores and processing metadata
  zugferd extract rechnung.pdf --report`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractReport wraps the draft with what the processor reported about it.
type ExtractReport struct {
	Draft      *invoice.Draft     `json:"draft"`
	Confidence map[string]float32 `json:"confidence,omitempty"`
	Metadata   ProcessingMetadata `json:"metadata"`
}

// ProcessingMetadata contains information about the processing run
type ProcessingMetadata struct {
	FileName           string        `json:"file_name"`
	FileSize           int64         `json:"file_size"`
	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration_ns"`
	ProcessorUsed      string        `json:"processor_used"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("report", false, "Include confidence scores and metadata in the output")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	withReport, _ := cmd.Flags().GetBool("report")
	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Bool("report", withReport).
		Msg("Starting draft extraction")

	fileInfo, err := checkPDF(pdfPath)
	if err != nil {
		return err
	}

	ctx, cancel := createContext(cmd, log)
	defer cancel()

	extractor, err := newExtractor(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := extractor.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close Document AI client")
		}
	}()

	pdfFile, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer pdfFile.Close()

	startTime := time.Now()
	result, err := extractor.Extract(ctx, pdfFile)
	if err != nil {
		return handleExtractError(err, log)
	}
	processingDuration := time.Since(startTime)

	draft := invoice.NewDraft(result.Invoice)
	log.Info().
		Str("invoice_number", draft.Number).
		Int("items", len(draft.Items)).
		Dur("duration", processingDuration).
		Msg("Draft extraction completed successfully")

	if !withReport {
		return writeJSON(cmd, draft, outputPath, log)
	}
	return writeJSON(cmd, ExtractReport{
		Draft:      draft,
		Confidence: result.Confidence,
		Metadata: ProcessingMetadata{
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
			ProcessedAt:        time.Now(),
			ProcessingDuration: processingDuration,
			ProcessorUsed:      "Google Document AI Invoice Parser",
		},
	}, outputPath, log)
}

// checkPDF rejects files that cannot be sent to the processor.
func checkPDF(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case !fi.Mode().IsRegular():
		return nil, fmt.Errorf("%s is not a regular file", path)
	case fi.Size() == 0:
		return nil, fmt.Errorf("%s is empty", path)
	case fi.Size() > extract.MaxDocumentSizeBytes:
		return nil, fmt.Errorf("%s: %w (%d bytes, at most %d)", path, extract.ErrDocumentTooLarge, fi.Size(), extract.MaxDocumentSizeBytes)
	}
	return fi, nil
}

func newExtractor(ctx context.Context) (*extract.Extractor, error) {
	extractor, err := extract.New(ctx, extract.Config{
		ProjectID:        cfg.GoogleCloudProject,
		Location:         cfg.GoogleCloudLocation,
		ProcessorID:      cfg.DocumentAIProcessorID,
		ProcessorVersion: cfg.DocumentAIProcessorVersion,
		Timeout:          cfg.Timeout,
		CredentialsJSON:  cfg.GoogleCredentials,
		CredentialsFile:  cfg.GoogleCredentialsFile,
	})
	if errors.Is(err, extract.ErrMissingCredentials) || errors.Is(err, extract.ErrInvalidConfiguration) {
		return nil, fmt.Errorf("%w (see zugferd extract --help for the required environment)", err)
	}
	return extractor, err
}

// handleExtractError adds a hint to the failures a user can act on.
func handleExtractError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Draft extraction failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out, try a larger --timeout: %w", err)
	case errors.Is(err, extract.ErrInvalidCredentials), errors.Is(err, extract.ErrProcessorNotFound):
		return fmt.Errorf("%w (see zugferd extract --help for the required environment)", err)
	case errors.Is(err, extract.ErrNoInvoiceData):
		return fmt.Errorf("%w: the PDF may not be an invoice", err)
	default:
		return fmt.Errorf("extraction failed: %w", err)
	}
}
