// Package mustang drives the Mustang command line, the external toolkit that
// validates, visualizes and assembles ZUGFeRD/Factur-X invoices.
package mustang

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"zugferd/internal/logger"
	"zugferd/pkg/services"
)

// DefaultCommand starts the toolkit from the working directory.
const DefaultCommand = "java -jar Mustang-CLI.jar"

// profileLetters maps profile names to the toolkit's --profile codes.
var profileLetters = map[string]string{
	"MINIMUM":   "M",
	"BASICWL":   "T",
	"BASIC":     "B",
	"EN16931":   "E",
	"EXTENDED":  "X",
	"XRECHNUNG": "R",
}

type runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Toolkit implements services.EInvoiceToolkit on top of the Mustang CLI.
type Toolkit struct {
	command []string
	run     runner
	log     zerolog.Logger
}

var _ services.EInvoiceToolkit = (*Toolkit)(nil)

// New returns a toolkit started with command, split on white space. An
// empty command uses DefaultCommand.
func New(command string) *Toolkit {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = strings.Fields(DefaultCommand)
	}
	return &Toolkit{
		command: fields,
		run:     execRunner,
		log:     logger.WithComponent("mustang"),
	}
}

func (t *Toolkit) exec(ctx context.Context, op string, args ...string) ([]byte, error) {
	argv := append(append([]string{}, t.command[1:]...), args...)
	t.log.Debug().Str("action", op).Strs("args", args).Msg("Running toolkit")

	stdout, stderr, err := t.run(ctx, t.command[0], argv...)
	if err == nil {
		return stdout, nil
	}

	switch {
	case errors.Is(err, exec.ErrNotFound):
		err = fmt.Errorf("%w: %s", ErrToolkitMissing, t.command[0])
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		err = fmt.Errorf("%w: %v", ErrToolkitFailed, err)
	}
	return stdout, &ToolkitError{Op: op, Err: err, Stderr: strings.TrimSpace(string(stderr))}
}

// Validate checks a PDF or XML invoice. An invalid invoice is not an error:
// the report says so. Errors mean the toolkit could not produce a report.
func (t *Toolkit) Validate(ctx context.Context, path string) (*services.ValidationReport, error) {
	const op = "Validate"

	stdout, runErr := t.exec(ctx, op, "--action", "validate", "--source", path)

	// The toolkit exits non-zero for invalid invoices but still prints the
	// report, so look for it before giving up.
	report, err := ParseReport(stdout)
	if err != nil {
		if runErr != nil {
			return nil, runErr
		}
		return nil, &ToolkitError{Op: op, Err: err}
	}

	t.log.Info().
		Str("file", path).
		Bool("valid", report.Valid).
		Str("profile", report.Profile).
		Int("errors", report.Count(services.SeverityError)).
		Msg("Validation finished")
	return report, nil
}

// Visualize renders invoice XML to an HTML file.
func (t *Toolkit) Visualize(ctx context.Context, xmlPath, htmlPath string) error {
	_, err := t.exec(ctx, "Visualize", "--action", "visualize", "--source", xmlPath, "--out", htmlPath)
	return err
}

// Combine embeds invoice XML into a PDF/A file.
func (t *Toolkit) Combine(ctx context.Context, req services.CombineRequest) error {
	const op = "Combine"

	letter, ok := profileLetters[strings.ToUpper(req.Profile)]
	if !ok {
		return &ToolkitError{Op: op, Err: fmt.Errorf("%w: %q", ErrUnknownProfile, req.Profile)}
	}
	version := req.Version
	if version == "" {
		version = "2"
	}

	_, err := t.exec(ctx, op,
		"--action", "combine",
		"--source", req.PDFPath,
		"--source-xml", req.XMLPath,
		"--out", req.OutputPath,
		"--format", "fx",
		"--version", version,
		"--profile", letter,
	)
	if err == nil {
		t.log.Info().Str("output", req.OutputPath).Str("profile", req.Profile).Msg("Hybrid invoice written")
	}
	return err
}
