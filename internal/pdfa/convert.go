package pdfa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"zugferd/internal/logger"
)

// runner executes a command and returns its stderr. It is replaced in tests.
type runner func(ctx context.Context, name string, args ...string) (stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// GhostscriptConverter converts PDFs to PDF/A-3B by running Ghostscript.
type GhostscriptConverter struct {
	path string
	run  runner
	log  zerolog.Logger
}

// NewGhostscriptConverter uses the gs binary at path, or looks "gs" up in
// PATH when path is empty.
func NewGhostscriptConverter(path string) *GhostscriptConverter {
	if path == "" {
		path = "gs"
	}
	return &GhostscriptConverter{
		path: path,
		run:  execRunner,
		log:  logger.WithComponent("pdfa"),
	}
}

func (c *GhostscriptConverter) args(src, dst string) []string {
	return []string{
		"-dPDFA=3",
		"-dBATCH",
		"-dNOPAUSE",
		"-dNOSAFER",
		"-dQUIET",
		"-dPDFACompatibilityPolicy=1",
		"-sColorConversionStrategy=RGB",
		"-sDEVICE=pdfwrite",
		"-sOutputFile=" + dst,
		src,
	}
}

// Convert writes a PDF/A-3B rendition of src to dst. The result is inspected
// afterwards; a file that does not identify as PDF/A-3 is removed and
// ErrConversionFailed returned.
func (c *GhostscriptConverter) Convert(ctx context.Context, src, dst string) error {
	const op = "Convert"

	if _, err := InspectFile(src); err != nil {
		return &ConversionError{Op: op, Path: src, Err: err}
	}

	c.log.Info().Str("source", src).Str("target", dst).Msg("Converting to PDF/A-3")

	stderr, err := c.run(ctx, c.path, c.args(src, dst)...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return &ConversionError{Op: op, Path: src, Err: fmt.Errorf("%w: %s", ErrConverterMissing, c.path)}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ConversionError{Op: op, Path: src, Err: ctxErr}
		}
		return &ConversionError{
			Op:     op,
			Path:   src,
			Err:    fmt.Errorf("%w: %v", ErrConversionFailed, err),
			Stderr: strings.TrimSpace(string(stderr)),
		}
	}

	info, err := InspectFile(dst)
	if err != nil || info.Version != 3 {
		_ = os.Remove(dst)
		details := "output is not PDF/A-3"
		if err != nil {
			details = err.Error()
		} else if info.IsPDFA() {
			details = "output is " + info.Label()
		}
		c.log.Warn().Str("target", dst).Str("details", details).Msg("Conversion produced no PDF/A-3")
		return &ConversionError{
			Op:     op,
			Path:   src,
			Err:    fmt.Errorf("%w: %s", ErrConversionFailed, details),
			Stderr: strings.TrimSpace(string(stderr)),
		}
	}

	c.log.Info().Str("target", dst).Str("type", info.Label()).Msg("Conversion finished")
	return nil
}
