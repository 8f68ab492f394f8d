package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"

	"zugferd/internal/config"
	"zugferd/internal/invoice"
	"zugferd/internal/logger"
	"zugferd/internal/repository"
	"zugferd/pkg/models"
	"zugferd/pkg/services"
)

type fakeToolkit struct {
	report   *services.ValidationReport
	combined []services.CombineRequest
}

func (f *fakeToolkit) Validate(ctx context.Context, path string) (*services.ValidationReport, error) {
	return f.report, nil
}

func (f *fakeToolkit) Visualize(ctx context.Context, xmlPath, htmlPath string) error {
	return os.WriteFile(htmlPath, []byte("<html></html>"), 0o644)
}

func (f *fakeToolkit) Combine(ctx context.Context, req services.CombineRequest) error {
	f.combined = append(f.combined, req)
	return nil
}

type fakeConverter struct {
	sources []string
}

func (f *fakeConverter) Convert(ctx context.Context, src, dst string) error {
	f.sources = append(f.sources, src)
	return os.WriteFile(dst, []byte(pdfA3), 0o644)
}

const plainPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

const pdfA3 = "%PDF-1.7\n1 0 obj\n<< /Type /Metadata /Subtype /XML >>\nstream\n" +
	`<rdf:Description xmlns:pdfaid="http://www.aiim.org/pdfa/ns/id/" pdfaid:part="3" pdfaid:conformance="B"/>` +
	"\nendstream\nendobj\n3 0 obj\n<< /Type /Filespec /F (factur-x.xml) >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

type CommandSuite struct {
	suite.Suite
	dataDir   string
	toolkit   *fakeToolkit
	converter *fakeConverter
}

func TestCommandSuite(t *testing.T) {
	suite.Run(t, new(CommandSuite))
}

func (s *CommandSuite) SetupTest() {
	logger.SetOutput(io.Discard)
	s.dataDir = s.T().TempDir()
	cfg = &config.Config{
		DataDir:         s.dataDir,
		MustangCommand:  "mustang",
		GhostscriptPath: "gs",
		DefaultProfile:  "EN16931",
		BatchWorkers:    2,
		Timeout:         time.Minute,
	}

	s.toolkit = &fakeToolkit{}
	s.converter = &fakeConverter{}
	newToolkit = func() services.EInvoiceToolkit { return s.toolkit }
	newConverter = func() services.PDFAConverter { return s.converter }
}

// resetFlags puts every flag back to its default; cobra keeps parsed values
// between executions of the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (s *CommandSuite) run(stdin string, args ...string) (string, error) {
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func (s *CommandSuite) mustRun(stdin string, args ...string) string {
	out, err := s.run(stdin, args...)
	s.Require().NoError(err, out)
	return out
}

func (s *CommandSuite) writeFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *CommandSuite) TestSendersLifecycle() {
	out := s.mustRun(`{"name": "Bravo GmbH", "vatID": "DE111"}`, "senders", "add")
	s.Contains(out, "with key 1")
	s.mustRun(`{"name": "Alpha AG"}`, "senders", "add")

	out = s.mustRun("", "senders", "list")
	s.Less(strings.Index(out, "Alpha AG"), strings.Index(out, "Bravo GmbH"), "sorted by name")

	s.mustRun(`{"zip": "10115", "location": "Berlin"}`, "senders", "update", "1")

	out = s.mustRun("", "senders", "show", "1")
	var bravo models.TradeParty
	s.Require().NoError(json.Unmarshal([]byte(out), &bravo))
	s.Equal("Bravo GmbH", bravo.Name)
	s.Equal("DE111", bravo.VATID)
	s.Equal("Berlin", bravo.Location)
	s.Equal(models.DefaultCountry, bravo.Country)

	s.mustRun("", "senders", "remove", "1")
	_, err := s.run("", "senders", "show", "1")
	s.Error(err)

	s.FileExists(filepath.Join(s.dataDir, repository.SendersFile))
}

func (s *CommandSuite) TestAddRejects() {
	_, err := s.run(`{"street": "Nowhere 1"}`, "recipients", "add")
	s.ErrorIs(err, models.ErrInvalidRecord)
	s.ErrorContains(err, "name is missing")

	_, err = s.run(`not json`, "recipients", "add")
	s.Error(err)

	_, err = s.run("", "recipients", "remove", "7")
	s.ErrorContains(err, "no recipient with key 7")

	_, err = s.run("", "recipients", "show", "abc")
	s.ErrorContains(err, `no recipient with key or name "abc"`)
}

func (s *CommandSuite) TestRecordsRejectInvalidFields() {
	tests := []struct {
		name  string
		group string
		input string
		want  string
	}{
		{"vat out of range", "products", `{"name": "Sonderposten", "vatPercent": 120}`, "vatPercent must be lte 100"},
		{"unknown unit", "products", `{"name": "Kiste", "unit": "XYZ"}`, `unknown unit "XYZ"`},
		{"empty unit", "products", `{"name": "Kiste", "unit": ""}`, `unknown unit ""`},
		{"unknown tax category", "products", `{"name": "Kiste", "taxCategory": "Q"}`, `unknown tax category "Q"`},
		{"exemption reason", "products", `{"name": "Heilbehandlung", "taxCategory": "E", "vatPercent": 0}`, "needs a taxExemptionReason"},
		{"unknown payment method", "senders", `{"name": "Acme", "preferredPaymentMethod": 99}`, "unknown payment method 99"},
		{"negative payment method", "recipients", `{"name": "Acme", "preferredPaymentMethod": -1}`, "preferredPaymentMethod must be gte 0"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.run(tt.input, tt.group, "add")
			s.ErrorIs(err, models.ErrInvalidRecord)
			s.ErrorContains(err, tt.want)
		})
	}

	out := s.mustRun("", "products", "list")
	s.Contains(out, "No products stored.")

	s.mustRun(`{"name": "Beratung", "unit": "HUR"}`, "products", "add")
	_, err := s.run(`{"vatPercent": 120}`, "products", "update", "Beratung")
	s.ErrorContains(err, "vatPercent must be lte 100")

	out = s.mustRun("", "products", "show", "beratung")
	var stored models.Product
	s.Require().NoError(json.Unmarshal([]byte(out), &stored))
	s.Equal(models.DefaultVATPercent, stored.VATPercent, "a refused update leaves the record as it was")
}

func (s *CommandSuite) TestImportRejectsInvalidRecords() {
	_, err := s.run(`[
		{"name": "Beratung", "unit": "HUR"},
		{"name": "Sonderposten", "vatPercent": 120},
		{"name": "Kiste", "unit": "XYZ"}
	]`, "products", "import")
	s.ErrorContains(err, "nothing imported")
	s.ErrorContains(err, "product 2")
	s.ErrorContains(err, "product 3")

	out := s.mustRun("", "products", "list")
	s.Contains(out, "No products stored.")
}

func (s *CommandSuite) TestRecordsByName() {
	s.mustRun(`{"name": "Alpha AG"}`, "senders", "add")
	s.mustRun(`{"name": "Bravo GmbH"}`, "senders", "add")

	out := s.mustRun("", "senders", "show", "bravo gmbh")
	s.Contains(out, `"_key": 2`)

	out = s.mustRun("", "senders", "remove", "Alpha AG")
	s.Contains(out, "Removed sender 1 (Alpha AG)")
	out = s.mustRun("", "senders", "list")
	s.NotContains(out, "Alpha AG")
}

func (s *CommandSuite) TestProductsImportKeepsDefaults() {
	out := s.mustRun(`[
		{"name": "Beratung", "unit": "HUR", "price": 100, "_key": 9},
		{"name": "Buch", "price": 12.5, "vatPercent": 7}
	]`, "products", "import")
	s.Contains(out, "Imported 2 products")
	s.Contains(out, "+ 1 Beratung")
	s.Contains(out, "+ 2 Buch")

	out = s.mustRun("", "products", "list", "--json")
	var products []models.Product
	s.Require().NoError(json.Unmarshal([]byte(out), &products))
	s.Require().Len(products, 2)

	s.Equal("Beratung", products[0].Name)
	s.Equal(1, products[0].Key, "keys from the file are ignored")
	s.Equal(models.DefaultVATPercent, products[0].VATPercent)
	s.Equal("Buch", products[1].Name)
	s.Equal(models.DefaultUnit, products[1].Unit)
	s.Equal(models.DefaultTaxCategory, products[1].TaxCategory)
	s.Equal(7.0, products[1].VATPercent)

	export := filepath.Join(s.T().TempDir(), "products.json")
	s.mustRun("", "products", "export", "-o", export)
	s.FileExists(export)
}

// storeInvoiceParties adds sender 1, recipient 1 and product 1.
func (s *CommandSuite) storeInvoiceParties() {
	s.mustRun(`{"name": "Acme", "vatID": "DE123"}`, "senders", "add")
	s.mustRun(`{"name": "Client GmbH"}`, "recipients", "add")
	s.mustRun(`{"name": "Widget", "price": 10}`, "products", "add")
}

const keyedDraft = `{
	"number": "R-2025-001",
	"issueDate": "2025-01-15",
	"sender": {"key": 1},
	"recipient": {"key": 1},
	"items": [{"productKey": 1, "quantity": 3}]
}`

func (s *CommandSuite) TestInvoiceCheck() {
	s.storeInvoiceParties()

	out := s.mustRun(keyedDraft, "invoice", "check", "-")
	s.Contains(out, "Netto:  30.00 EUR")
	s.Contains(out, "MwSt:   5.70 EUR")
	s.Contains(out, "Brutto: 35.70 EUR")
	s.Contains(out, "Ready for export")

	out, err := s.run(`{"sender": {"key": 1}, "recipient": {"key": 1}}`, "invoice", "check", "-")
	s.Error(err)
	s.Contains(out, "invoice number is missing")

	_, err = s.run(`{"number": "1", "sender": {"key": 4}}`, "invoice", "check", "-")
	s.ErrorContains(err, "does not exist")
}

func (s *CommandSuite) TestInvoiceCheckReportsMissingExemptionReason() {
	s.mustRun(`{"name": "Acme", "vatID": "DE123"}`, "senders", "add")
	s.mustRun(`{"name": "Client GmbH"}`, "recipients", "add")
	draft := `{
		"number": "R-2025-002",
		"sender": {"key": 1},
		"recipient": {"key": 1},
		"items": [{"product": {"name": "Heilbehandlung", "taxCategory": "E", "vatPercent": 0, "price": 50}, "quantity": 1}]
	}`

	out, err := s.run(draft, "invoice", "check", "-")
	s.Error(err)
	s.Contains(out, "Not ready for export")
	s.Contains(out, "tax category E at 0 % needs an exemption reason")

	_, err = s.run(draft, "invoice", "export", "-")
	s.ErrorContains(err, "not ready for export")
}

func (s *CommandSuite) TestInvoiceExport() {
	s.storeInvoiceParties()
	out := filepath.Join(s.T().TempDir(), "invoice.json")

	s.mustRun(keyedDraft, "invoice", "export", "-", "-o", out, "--profile", "xrechnung")

	data, err := os.ReadFile(out)
	s.Require().NoError(err)
	var doc invoice.Document
	s.Require().NoError(json.Unmarshal(data, &doc))
	s.Equal("XRECHNUNG", doc.Profile)
	s.Equal("R-2025-001", doc.Number)
	s.True(doc.Totals.GrandTotal.Equal(decimal.RequireFromString("35.70")), doc.Totals.GrandTotal.String())
	s.Require().Len(doc.TaxBreakdown, 1)
	s.True(doc.TaxBreakdown[0].Tax.Equal(decimal.RequireFromString("5.70")))

	_, err = s.run(`{"number": ""}`, "invoice", "export", "-")
	s.ErrorContains(err, "not ready for export")
}

func (s *CommandSuite) TestInvoiceSaveStoresInlineRecords() {
	draftPath := s.writeFile("draft.json", `{
		"number": "R-7",
		"sender": {"party": {"name": "Inline Sender", "vatID": "DE999"}},
		"recipient": {"party": {"name": "Inline Recipient"}},
		"items": [{"product": {"name": "Support", "unit": "HUR", "price": 80, "vatPercent": 19, "taxCategory": "S"}, "quantity": 2}]
	}`)

	out := s.mustRun("", "invoice", "save", draftPath)
	s.Contains(out, `Absender "Inline Sender" gespeichert (key 1)`)
	s.Contains(out, `Produkt "Support" gespeichert (key 1)`)

	f, err := os.Open(draftPath)
	s.Require().NoError(err)
	defer f.Close()
	draft, err := invoice.ReadDraft(f)
	s.Require().NoError(err)
	s.Equal(1, draft.Sender.Key)
	s.Nil(draft.Sender.Party)
	s.Equal(1, draft.Recipient.Key)
	s.Require().Len(draft.Items, 1)
	s.Equal(1, draft.Items[0].ProductKey)

	out = s.mustRun("", "invoice", "save", draftPath)
	s.Contains(out, "Nothing to save")

	out = s.mustRun("", "products", "list")
	s.Contains(out, "Support")
}

func (s *CommandSuite) TestInvoiceValidate() {
	xml := s.writeFile("factur-x.xml", "<rsm:CrossIndustryInvoice/>")
	s.toolkit.report = &services.ValidationReport{
		Valid:   false,
		Profile: "EN16931",
		Messages: []services.ValidationMessage{
			{Severity: services.SeverityError, Text: "BR-CO-15 total mismatch"},
		},
	}

	out, err := s.run("", "invoice", "validate", xml)
	s.ErrorContains(err, "1 of 1 files are not valid")
	s.Contains(out, "invalid: 1 error")
	s.Contains(out, "BR-CO-15 total mismatch")

	s.toolkit.report = &services.ValidationReport{Valid: true, XMLValid: true}
	out = s.mustRun("", "invoice", "validate", "--json", xml)
	s.Contains(out, `"valid": true`)
}

func (s *CommandSuite) TestInvoiceCombineConvertsPlainPDF() {
	pdf := s.writeFile("rechnung.pdf", plainPDF)
	xml := s.writeFile("factur-x.xml", "<rsm:CrossIndustryInvoice/>")
	out := filepath.Join(s.T().TempDir(), "hybrid.pdf")

	s.mustRun("", "invoice", "combine", pdf, xml, "-o", out)

	s.Equal([]string{pdf}, s.converter.sources)
	s.Require().Len(s.toolkit.combined, 1)
	req := s.toolkit.combined[0]
	s.NotEqual(pdf, req.PDFPath, "the converted copy is combined")
	s.Equal(xml, req.XMLPath)
	s.Equal(out, req.OutputPath)
	s.Equal("EN16931", req.Profile)
	s.Equal("2", req.Version)
	s.NoFileExists(req.PDFPath, "temporary copy removed")
}

func (s *CommandSuite) TestInvoiceCombineKeepsPDFA3() {
	pdf := s.writeFile("rechnung.pdf", pdfA3)
	xml := s.writeFile("factur-x.xml", "<rsm:CrossIndustryInvoice/>")

	s.mustRun("", "invoice", "combine", pdf, xml, "-o", filepath.Join(s.T().TempDir(), "out.pdf"), "--profile", "basic")

	s.Empty(s.converter.sources)
	s.Require().Len(s.toolkit.combined, 1)
	s.Equal(pdf, s.toolkit.combined[0].PDFPath)
	s.Equal("BASIC", s.toolkit.combined[0].Profile)
}

func (s *CommandSuite) TestPDFAInspect() {
	dir := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "a.pdf"), []byte(pdfA3), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "b.pdf"), []byte(plainPDF), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "c.pdf"), []byte("not a pdf"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	out := s.mustRun("", "pdfa", "inspect", "--json", dir)
	var results []InspectOutput
	s.Require().NoError(json.Unmarshal([]byte(out), &results))
	s.Require().Len(results, 3)

	s.Equal("PDF/A-3B", results[0].Label)
	s.True(results[0].Info.IsHybridInvoice())
	s.Equal("PDF 1.4", results[1].Label)
	s.NotEmpty(results[2].Error)

	out = s.mustRun("", "pdfa", "inspect", dir)
	s.Contains(out, "E-Rechnungen (PDF/A-3 mit XML): 1")
	s.Contains(out, "Fehler: 1")
}

func (s *CommandSuite) TestExtractChecksFileFirst() {
	_, err := s.run("", "extract", s.writeFile("empty.pdf", ""))
	s.Require().Error(err)
	s.Contains(err.Error(), "is empty")

	_, err = s.run("", "extract", s.dataDir)
	s.Require().Error(err)
	s.Contains(err.Error(), "is not a regular file")

	_, err = s.run("", "extract", filepath.Join(s.dataDir, "missing.pdf"))
	s.Require().Error(err)
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *CommandSuite) TestPreferences() {
	out := s.mustRun("", "prefs", "show")
	s.Contains(out, `"profile": "EN16931"`)

	s.mustRun("", "prefs", "set", "profile", "xrechnung")
	out = s.mustRun("", "prefs", "show")
	s.Contains(out, `"profile": "XRECHNUNG"`)

	_, err := s.run("", "prefs", "set", "colour", "blue")
	s.ErrorContains(err, "unknown preference")

	_, err = s.run("", "prefs", "set", "defaultSenderKey", "5")
	s.ErrorContains(err, "no sender with key 5")
}

func (s *CommandSuite) TestFreshInstallUsesConfiguredProfile() {
	cfg.DefaultProfile = "XRECHNUNG"

	out := s.mustRun("", "prefs", "show")
	s.Contains(out, `"profile": "XRECHNUNG"`)
}

func (s *CommandSuite) TestCodesAndSchema() {
	out := s.mustRun("", "codes", "tax")
	s.Contains(out, "AE")
	s.Contains(out, "Reverse charge")

	out = s.mustRun("", "codes", "payment")
	s.Contains(out, "58")

	out = s.mustRun("", "schema", "draft")
	var schema map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &schema))
	s.Equal("draft", schema["title"])
	s.Contains(out, `"items"`)

	_, err := s.run("", "schema", "invoices")
	s.ErrorContains(err, "unknown document")
}
