package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zugferd/internal/logger"
	"zugferd/internal/pdfa"
)

var pdfaCmd = &cobra.Command{
	Use:   "pdfa",
	Short: "Inspect and convert PDF/A files",
}

var pdfaInspectCmd = &cobra.Command{
	Use:   "inspect <file-or-folder>...",
	Short: "Report PDF/A conformance and embedded invoice XML",
	Long: `Inspects PDF files for their PDF/A identification and for an embedded
ZUGFeRD, Factur-X or XRechnung attachment. Folders are searched for PDF
files recursively. Files are inspected in parallel (BATCH_WORKERS).`,
	Example: `  zugferd pdfa inspect rechnung.pdf
  zugferd pdfa inspect ./rechnungen --workers 8
  zugferd pdfa inspect ./rechnungen --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPDFAInspect,
}

var pdfaConvertCmd = &cobra.Command{
	Use:   "convert <input.pdf> <output.pdf>",
	Short: "Convert a PDF to PDF/A-3B with Ghostscript",
	Args:  cobra.ExactArgs(2),
	RunE:  runPDFAConvert,
}

// InspectOutput is the JSON form of one inspected file.
type InspectOutput struct {
	File  string     `json:"file"`
	Info  *pdfa.Info `json:"info,omitempty"`
	Label string     `json:"label,omitempty"`
	Error string     `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(pdfaCmd)
	pdfaCmd.AddCommand(pdfaInspectCmd, pdfaConvertCmd)

	pdfaInspectCmd.Flags().Int("workers", 0, "Number of parallel workers (default: BATCH_WORKERS)")
	pdfaInspectCmd.Flags().Bool("json", false, "Print the results as JSON")
}

func runPDFAInspect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pdfa")

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	var files []string
	for _, arg := range args {
		found, err := findPDFFiles(arg)
		if err != nil {
			return fmt.Errorf("failed to find PDF files: %w", err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Keine PDF-Dateien gefunden.")
		return nil
	}

	log.Info().
		Int("files", len(files)).
		Int("workers", workers).
		Msg("Starting PDF inspection")

	ctx, cancel := createContext(cmd, log)
	defer cancel()

	out := cmd.OutOrStdout()
	var progress func(done, total int, r pdfa.Result)
	if !asJSON {
		progress = func(done, total int, r pdfa.Result) {
			if r.Err != nil {
				fmt.Fprintf(out, "[%d/%d] %s - %s %v\n", done, total, r.Filename(), getStatusEmoji(r), r.Err)
				return
			}
			fmt.Fprintf(out, "[%d/%d] %s - %s %s\n", done, total, r.Filename(), getStatusEmoji(r), describeInfo(r.Info))
		}
	}

	results := pdfa.InspectAll(ctx, files, workers, progress)

	hybrid, plain, failed := 0, 0, 0
	outputs := make([]InspectOutput, 0, len(results))
	for _, r := range results {
		o := InspectOutput{File: r.Path}
		switch {
		case r.Err != nil:
			failed++
			o.Error = r.Err.Error()
		case r.Info.IsHybridInvoice():
			hybrid++
		default:
			plain++
		}
		if r.Err == nil {
			info := r.Info
			o.Info = &info
			o.Label = info.Label()
		}
		outputs = append(outputs, o)
	}

	if asJSON {
		return writeJSON(cmd, outputs, "", log)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "E-Rechnungen (PDF/A-3 mit XML): %d\n", hybrid)
	fmt.Fprintf(out, "Andere PDFs: %d\n", plain)
	if failed > 0 {
		fmt.Fprintf(out, "Fehler: %d\n", failed)
	}

	log.Info().
		Int("total", len(files)).
		Int("hybrid", hybrid).
		Int("errors", failed).
		Msg("PDF inspection completed")
	return nil
}

func describeInfo(info pdfa.Info) string {
	if info.HasInvoiceXML {
		return fmt.Sprintf("%s, %s", info.Label(), info.AttachmentName)
	}
	return info.Label()
}

// getStatusEmoji returns the emoji for an inspection result
func getStatusEmoji(r pdfa.Result) string {
	switch {
	case r.Err != nil:
		return "❌"
	case r.Info.IsHybridInvoice():
		return "✅"
	default:
		return "⚠️"
	}
}

// findPDFFiles returns path itself when it is a file, or all PDF files below
// it when it is a folder.
func findPDFFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var pdfFiles []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".pdf") {
			pdfFiles = append(pdfFiles, p)
		}
		return nil
	})
	return pdfFiles, err
}

func runPDFAConvert(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pdfa")
	src, dst := args[0], args[1]

	ctx, cancel := createContext(cmd, log)
	defer cancel()

	if err := newConverter().Convert(ctx, src, dst); err != nil {
		return handlePDFAError(err, log)
	}

	info, err := pdfa.InspectFile(dst)
	if err != nil {
		return handlePDFAError(err, log)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s written (%s)\n", dst, info.Label())
	return nil
}

// handlePDFAError provides user-friendly error messages for PDF failures
func handlePDFAError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("PDF processing failed")

	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("PDF file not found: %w", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("PDF/A conversion timed out. Try increasing --timeout")
	case errors.Is(err, pdfa.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, pdfa.ErrDocumentTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB)")
	case errors.Is(err, pdfa.ErrConverterMissing):
		return fmt.Errorf("Ghostscript not found. Install it or set GHOSTSCRIPT_PATH: %w", err)
	case errors.Is(err, pdfa.ErrConversionFailed):
		return fmt.Errorf("Ghostscript did not produce a PDF/A-3 file: %w", err)
	default:
		return fmt.Errorf("PDF processing failed: %w", err)
	}
}
