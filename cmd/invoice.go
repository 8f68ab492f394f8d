package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zugferd/internal/invoice"
	"zugferd/internal/logger"
	"zugferd/internal/mustang"
	"zugferd/internal/pdfa"
	"zugferd/pkg/models"
	"zugferd/pkg/services"
)

// Collaborators, replaced in tests.
var (
	newToolkit = func() services.EInvoiceToolkit {
		return mustang.New(cfg.MustangCommand)
	}
	newConverter = func() services.PDFAConverter {
		return pdfa.NewGhostscriptConverter(cfg.GhostscriptPath)
	}
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Prepare, check and combine e-invoices",
	Long: `Work with invoice drafts and finished e-invoices.

A draft is a JSON file naming the invoice number, dates, sender, recipient
and lines. Parties and products are referenced by their key or written
inline. Run "zugferd schema draft" for the JSON schema.`,
}

var invoiceCheckCmd = &cobra.Command{
	Use:   "check <draft.json>",
	Short: "Show the totals of a draft and what is missing for export",
	Example: `  zugferd invoice check draft.json
  cat draft.json | zugferd invoice check -`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoiceCheck,
}

var invoiceExportCmd = &cobra.Command{
	Use:   "export <draft.json>",
	Short: "Write the rounded invoice document for the XML generator",
	Long: `Resolves a draft against the stored records and writes the invoice
document: lines, VAT breakdown and totals rounded half-even to the
precision of EN 16931. Drafts that are not ready for export are refused.`,
	Example: `  zugferd invoice export draft.json -o invoice.json
  zugferd invoice export draft.json --profile XRECHNUNG`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoiceExport,
}

var invoiceSaveCmd = &cobra.Command{
	Use:   "save <draft.json>",
	Short: "Store the inline parties and products of a draft",
	Long: `Saves the sender, recipient and products written inline in a draft to
the address book and catalogue, then rewrites the draft so that it
references the stored records by key.`,
	Example: `  zugferd invoice save draft.json
  zugferd invoice save draft.json -o draft-with-keys.json`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoiceSave,
}

var invoiceValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate ZUGFeRD/Factur-X PDFs or invoice XML with Mustang",
	Example: `  zugferd invoice validate rechnung.pdf
  zugferd invoice validate --json factur-x.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvoiceValidate,
}

var invoiceVisualizeCmd = &cobra.Command{
	Use:   "visualize <invoice.xml>",
	Short: "Render invoice XML as HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceVisualize,
}

var invoiceCombineCmd = &cobra.Command{
	Use:   "combine <invoice.pdf> <invoice.xml>",
	Short: "Embed invoice XML into a PDF, producing a hybrid e-invoice",
	Long: `Combines a visual PDF and the invoice XML into a ZUGFeRD/Factur-X
PDF/A-3 file. A PDF that is not PDF/A-3 yet is converted with Ghostscript
first.`,
	Example: `  zugferd invoice combine rechnung.pdf factur-x.xml -o rechnung-zugferd.pdf
  zugferd invoice combine rechnung.pdf factur-x.xml -o out.pdf --profile XRECHNUNG`,
	Args: cobra.ExactArgs(2),
	RunE: runInvoiceCombine,
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceCheckCmd, invoiceExportCmd, invoiceSaveCmd,
		invoiceValidateCmd, invoiceVisualizeCmd, invoiceCombineCmd)

	invoiceExportCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	invoiceExportCmd.Flags().String("profile", "", "e-invoice profile (default: preferences)")

	invoiceSaveCmd.Flags().StringP("output", "o", "", "Where to write the updated draft (default: overwrite the draft)")

	invoiceValidateCmd.Flags().Bool("json", false, "Print the reports as JSON")

	invoiceVisualizeCmd.Flags().StringP("output", "o", "", "HTML file (default: next to the XML)")

	invoiceCombineCmd.Flags().StringP("output", "o", "", "Hybrid PDF to write [REQUIRED]")
	invoiceCombineCmd.Flags().String("profile", "", "e-invoice profile (default: preferences)")
	invoiceCombineCmd.Flags().String("version", "2", "ZUGFeRD/Factur-X version")
	_ = invoiceCombineCmd.MarkFlagRequired("output")
}

// loadDraft reads a draft and resolves it against the stored records.
func loadDraft(cmd *cobra.Command, a *app, path string) (models.Invoice, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return models.Invoice{}, err
	}
	defer in.Close()

	draft, err := invoice.ReadDraft(in)
	if err != nil {
		return models.Invoice{}, err
	}
	resolver := &invoice.Resolver{Repos: a.repos, Prefs: a.prefs.Get()}
	return resolver.Resolve(draft)
}

func runInvoiceCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	inv, err := loadDraft(cmd, a, args[0])
	if err != nil {
		return handleInvoiceError(err, logger.WithComponent("invoice"))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rechnung: %s\n", inv.Number)
	fmt.Fprintf(out, "Datum: %s, fällig %s\n", inv.IssueDate.Format(invoice.DateLayout), inv.DueDate.Format(invoice.DateLayout))
	if inv.Sender != nil {
		fmt.Fprintf(out, "Absender: %s\n", inv.Sender.Name)
	}
	if inv.Recipient != nil {
		fmt.Fprintf(out, "Empfänger: %s\n", inv.Recipient.Name)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "POS\tPRODUCT\tQUANTITY\tPRICE\tNET\tVAT\t")
	for i, item := range inv.Items {
		name, unit := "-", ""
		if item.Product != nil {
			name = item.Product.Name
			if u, ok := models.FindUnit(item.Product.Unit); ok {
				unit = " " + u.Describe(item.Quantity)
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s%s\t%s\t%s\t%s\t\n", i+1, name,
			invoice.FormatQuantity(item.Quantity), unit,
			invoice.FormatAmount(item.Price),
			invoice.FormatAmount(item.TotalNetPrice()),
			invoice.FormatAmount(item.Tax()))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	totals := inv.Totals()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Netto:  %s\n", invoice.FormatMoney(totals.Net, inv.Currency))
	fmt.Fprintf(out, "MwSt:   %s\n", invoice.FormatMoney(totals.Tax, inv.Currency))
	fmt.Fprintf(out, "Brutto: %s\n", invoice.FormatMoney(totals.Gross, inv.Currency))
	fmt.Fprintln(out)

	problems := append(inv.Problems(), inv.LineProblems()...)
	if len(problems) == 0 {
		fmt.Fprintln(out, "✅ Ready for export")
		return nil
	}
	fmt.Fprintln(out, "❌ Not ready for export:")
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return fmt.Errorf("invoice is not ready for export (%d problems)", len(problems))
}

func runInvoiceExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	inv, err := loadDraft(cmd, a, args[0])
	if err != nil {
		return handleInvoiceError(err, log)
	}

	profile, _ := cmd.Flags().GetString("profile")
	if profile == "" {
		profile = a.prefs.Get().Profile
	}
	doc, err := invoice.Export(inv, strings.ToUpper(profile))
	if err != nil {
		return handleInvoiceError(err, log)
	}

	log.Info().
		Str("number", doc.Number).
		Str("profile", doc.Profile).
		Str("grand_total", doc.Totals.GrandTotal.StringFixed(invoice.MoneyPlaces)).
		Msg("Invoice exported")

	outputPath, _ := cmd.Flags().GetString("output")
	return writeJSON(cmd, doc, outputPath, log)
}

func runInvoiceSave(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")

	if args[0] == "-" {
		return fmt.Errorf("save needs a draft file, not stdin")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	inv, err := loadDraft(cmd, a, args[0])
	if err != nil {
		return handleInvoiceError(err, log)
	}

	session := invoice.NewSession(a.repos, inv)
	saved, err := session.SaveAll()
	if errors.Is(err, models.ErrInvalidRecord) {
		return fmt.Errorf("nothing was saved: %w", err)
	}
	out := cmd.OutOrStdout()
	if saved.Sender != nil {
		fmt.Fprintf(out, "Absender %q gespeichert (key %d)\n", saved.Sender.Name, saved.Sender.Key)
	}
	if saved.Recipient != nil {
		fmt.Fprintf(out, "Empfänger %q gespeichert (key %d)\n", saved.Recipient.Name, saved.Recipient.Key)
	}
	for _, p := range saved.Products {
		fmt.Fprintf(out, "Produkt %q gespeichert (key %d)\n", p.Name, p.Key)
	}
	if err != nil {
		log.Error().Err(err).Msg("Save failed")
		return fmt.Errorf("could not save, the previous files were kept: %w", err)
	}

	if saved.Count() == 0 {
		fmt.Fprintln(out, "Nothing to save, the draft only references stored records.")
		return nil
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = args[0]
	}
	return writeJSON(cmd, invoice.NewDraft(session.Current()), outputPath, log)
}

func runInvoiceValidate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := createContext(cmd, log)
	defer cancel()

	toolkit := newToolkit()
	out := cmd.OutOrStdout()

	type fileReport struct {
		File   string                     `json:"file"`
		Report *services.ValidationReport `json:"report"`
	}
	var reports []fileReport
	invalid := 0

	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("file not found: %s", path)
		}

		start := time.Now()
		report, err := toolkit.Validate(ctx, path)
		if err != nil {
			return handleToolkitError(err, log)
		}
		log.Debug().Str("file", path).Dur("duration", elapsed(start)).Msg("Validated")

		if !report.Valid {
			invalid++
		}
		if asJSON {
			reports = append(reports, fileReport{File: path, Report: report})
			continue
		}

		fmt.Fprintf(out, "%s - %s %s\n", filepath.Base(path), validEmoji(report.Valid), report.Summary())
		if report.Profile != "" {
			fmt.Fprintf(out, "  Profil: %s %s\n", report.Profile, report.Version)
		}
		for _, m := range report.Messages {
			fmt.Fprintf(out, "  [%s] %s", m.Severity, m.Text)
			if m.Location != "" {
				fmt.Fprintf(out, " (%s)", m.Location)
			}
			fmt.Fprintln(out)
		}
	}

	if asJSON {
		if err := writeJSON(cmd, reports, "", log); err != nil {
			return err
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d files are not valid", invalid, len(args))
	}
	return nil
}

func runInvoiceVisualize(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")

	xmlPath := args[0]
	if _, err := os.Stat(xmlPath); err != nil {
		return fmt.Errorf("file not found: %s", xmlPath)
	}
	htmlPath, _ := cmd.Flags().GetString("output")
	if htmlPath == "" {
		htmlPath = strings.TrimSuffix(xmlPath, filepath.Ext(xmlPath)) + ".html"
	}

	ctx, cancel := createContext(cmd, log)
	defer cancel()

	if err := newToolkit().Visualize(ctx, xmlPath, htmlPath); err != nil {
		return handleToolkitError(err, log)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "HTML written to %s\n", htmlPath)
	return nil
}

func runInvoiceCombine(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")

	pdfPath, xmlPath := args[0], args[1]
	outputPath, _ := cmd.Flags().GetString("output")
	profile, _ := cmd.Flags().GetString("profile")
	version, _ := cmd.Flags().GetString("version")

	if _, err := os.Stat(xmlPath); err != nil {
		return fmt.Errorf("file not found: %s", xmlPath)
	}
	info, err := pdfa.InspectFile(pdfPath)
	if err != nil {
		return handlePDFAError(err, log)
	}

	if profile == "" {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		profile = a.prefs.Get().Profile
	}

	ctx, cancel := createContext(cmd, log)
	defer cancel()

	source := pdfPath
	if info.Version != 3 {
		converted, cleanup, err := convertToPDFA(ctx, pdfPath, log)
		if err != nil {
			return handlePDFAError(err, log)
		}
		defer cleanup()
		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s, converted to PDF/A-3\n", filepath.Base(pdfPath), info.Label())
		source = converted
	}

	err = newToolkit().Combine(ctx, services.CombineRequest{
		PDFPath:    source,
		XMLPath:    xmlPath,
		OutputPath: outputPath,
		Profile:    strings.ToUpper(profile),
		Version:    version,
	})
	if err != nil {
		return handleToolkitError(err, log)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s written (%s)\n", outputPath, strings.ToUpper(profile))
	return nil
}

// convertToPDFA writes a PDF/A-3 rendition of src to a temporary file.
func convertToPDFA(ctx context.Context, src string, log zerolog.Logger) (string, func(), error) {
	dir, err := os.MkdirTemp("", "zugferd-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove temporary directory")
		}
	}

	dst := filepath.Join(dir, "pdfa3.pdf")
	if err := newConverter().Convert(ctx, src, dst); err != nil {
		cleanup()
		return "", nil, err
	}
	return dst, cleanup, nil
}

func validEmoji(valid bool) string {
	if valid {
		return "✅"
	}
	return "❌"
}

// handleInvoiceError provides user-friendly error messages for draft and export failures
func handleInvoiceError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Invoice processing failed")

	switch {
	case errors.Is(err, invoice.ErrInvalidDraft):
		return fmt.Errorf("the draft is not valid: %w", err)
	case errors.Is(err, invoice.ErrUnknownRecord):
		return fmt.Errorf("the draft references a record that does not exist. Check the keys with \"zugferd senders list\", \"zugferd recipients list\" or \"zugferd products list\": %w", err)
	case errors.Is(err, invoice.ErrInvalidInvoice):
		return fmt.Errorf("the invoice is not ready for export. Run \"zugferd invoice check\" for details: %w", err)
	default:
		return fmt.Errorf("invoice processing failed: %w", err)
	}
}

// handleToolkitError provides user-friendly error messages for Mustang failures
func handleToolkitError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("e-invoice toolkit failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("the e-invoice toolkit timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("the e-invoice toolkit was canceled")
	case errors.Is(err, mustang.ErrToolkitMissing):
		return fmt.Errorf("the Mustang toolkit could not be started. Install Java and Mustang-CLI and set\n" +
			"  MUSTANG_COMMAND=\"java -jar /path/to/Mustang-CLI.jar\"\n" +
			"Original error: %w", err)
	case errors.Is(err, mustang.ErrUnknownProfile):
		return fmt.Errorf("unknown profile. Use one of MINIMUM, BASICWL, BASIC, EN16931, EXTENDED, XRECHNUNG: %w", err)
	default:
		return fmt.Errorf("e-invoice toolkit failed: %w", err)
	}
}
