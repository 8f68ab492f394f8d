package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zugferd/internal/invoice"
	"zugferd/internal/logger"
	"zugferd/internal/repository"
	"zugferd/internal/sheets"
	"zugferd/pkg/models"
)

// recordKind describes one collection for the generic record commands.
type recordKind[T repository.Record[T]] struct {
	name     string // command name, e.g. "senders"
	singular string
	sheet    string // default worksheet
	repo     func(*app) *repository.Repository[T]
	blank    func() T
	header   []string
	columns  func(T) []string

	exportSheet func(ctx context.Context, s *sheets.Service, sheet string, records []T) error
	importSheet func(ctx context.Context, s *sheets.Service, sheet string) (*sheets.Import[T], error)
}

var partyHeader = []string{"KEY", "NAME", "ADDRESS", "VAT ID / TAX ID"}

func partyColumns(p models.TradeParty) []string {
	address := strings.TrimSpace(strings.Join([]string{p.Street, strings.TrimSpace(p.ZIP + " " + p.Location), p.Country}, ", "))
	taxID := p.VATID
	if taxID == "" {
		taxID = p.TaxID
	}
	return []string{fmt.Sprint(p.Key), p.Name, address, taxID}
}

func partyKind(name, singular, sheet string, repo func(*app) *repository.Parties) recordKind[models.TradeParty] {
	return recordKind[models.TradeParty]{
		name:     name,
		singular: singular,
		sheet:    sheet,
		repo:     repo,
		blank:    func() models.TradeParty { return models.NewTradeParty("") },
		header:   partyHeader,
		columns:  partyColumns,
		exportSheet: func(ctx context.Context, s *sheets.Service, sheet string, records []models.TradeParty) error {
			return s.ExportParties(ctx, sheet, records)
		},
		importSheet: func(ctx context.Context, s *sheets.Service, sheet string) (*sheets.Import[models.TradeParty], error) {
			return s.ImportParties(ctx, sheet)
		},
	}
}

func productColumns(p models.Product) []string {
	return []string{
		fmt.Sprint(p.Key),
		p.Name,
		p.Unit,
		invoice.FormatAmount(p.Price),
		invoice.FormatPercent(p.VATPercent),
		p.TaxCategory,
	}
}

var productKind = recordKind[models.Product]{
	name:     "products",
	singular: "product",
	sheet:    "Produkte",
	repo:     func(a *app) *repository.Products { return a.repos.Products },
	blank:    func() models.Product { return models.NewProduct("") },
	header:   []string{"KEY", "NAME", "UNIT", "PRICE", "VAT", "CATEGORY"},
	columns:  productColumns,
	exportSheet: func(ctx context.Context, s *sheets.Service, sheet string, records []models.Product) error {
		return s.ExportProducts(ctx, sheet, records)
	},
	importSheet: func(ctx context.Context, s *sheets.Service, sheet string) (*sheets.Import[models.Product], error) {
		return s.ImportProducts(ctx, sheet)
	},
}

func init() {
	rootCmd.AddCommand(
		newRecordCommand(partyKind("senders", "sender", "Absender", func(a *app) *repository.Parties { return a.repos.Senders })),
		newRecordCommand(partyKind("recipients", "recipient", "Empfänger", func(a *app) *repository.Parties { return a.repos.Recipients })),
		newRecordCommand(productKind),
	)
}

func newRecordCommand[T repository.Record[T]](k recordKind[T]) *cobra.Command {
	group := &cobra.Command{
		Use:   k.name,
		Short: fmt.Sprintf("Manage the stored %s", k.name),
		Long: fmt.Sprintf(`Manage the stored %[1]s.

Records are read and written as JSON, in the format of %[1]s.json in the
data directory. Fields left out of an added record keep their defaults.
Run "zugferd schema %[1]s" for the JSON schema.`, k.name),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List all %s sorted by name", k.name),
		Args:  cobra.NoArgs,
		RunE:  k.runList,
	}
	list.Flags().Bool("json", false, "Print JSON instead of a table")

	show := &cobra.Command{
		Use:   "show <key-or-name>",
		Short: fmt.Sprintf("Print one %s as JSON", k.singular),
		Args:  cobra.ExactArgs(1),
		RunE:  k.runShow,
	}

	add := &cobra.Command{
		Use:   "add",
		Short: fmt.Sprintf("Add a %s from JSON", k.singular),
		Example: fmt.Sprintf(`  zugferd %[1]s add --file %[2]s.json
  echo '{"name": "Acme GmbH"}' | zugferd %[1]s add`, k.name, k.singular),
		Args: cobra.NoArgs,
		RunE: k.runAdd,
	}
	add.Flags().StringP("file", "f", "", "JSON file (default: stdin)")

	update := &cobra.Command{
		Use:   "update <key-or-name>",
		Short: fmt.Sprintf("Change fields of a stored %s", k.singular),
		Long:  "Reads a JSON object and applies the fields it contains to the stored record.",
		Example: fmt.Sprintf(`  echo '{"zip": "10115", "location": "Berlin"}' | zugferd %s update 3`, k.name),
		Args:    cobra.ExactArgs(1),
		RunE:    k.runUpdate,
	}
	update.Flags().StringP("file", "f", "", "JSON file (default: stdin)")

	remove := &cobra.Command{
		Use:     "remove <key-or-name>",
		Aliases: []string{"rm"},
		Short:   fmt.Sprintf("Remove a %s", k.singular),
		Args:    cobra.ExactArgs(1),
		RunE:    k.runRemove,
	}

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: fmt.Sprintf("Add every %s of a JSON array", k.singular),
		Long:  "Adds all records of a JSON array as new records. Keys in the file are ignored.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  k.runImport,
	}

	export := &cobra.Command{
		Use:   "export",
		Short: fmt.Sprintf("Write all %s as a JSON array", k.name),
		Args:  cobra.NoArgs,
		RunE:  k.runExport,
	}
	export.Flags().StringP("output", "o", "", "Output file path (default: stdout)")

	sheetExport := &cobra.Command{
		Use:   "sheet-export",
		Short: fmt.Sprintf("Replace a Google Sheets worksheet with the %s", k.name),
		Long: `Writes a header row and one row per record to a worksheet, replacing
its content. The worksheet is created when missing.

Required environment variables:
  GOOGLE_SHEET_URL - Spreadsheet URL (or --url)
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
		Example: fmt.Sprintf(`  zugferd %s sheet-export --sheet %q`, k.name, k.sheet),
		Args:    cobra.NoArgs,
		RunE:    k.runSheetExport,
	}
	sheetImport := &cobra.Command{
		Use:   "sheet-import",
		Short: fmt.Sprintf("Add the %s listed in a Google Sheets worksheet", k.name),
		Long: `Reads a worksheet with a header row and adds one record per row.
Columns are matched by their header, German or English, in any order.
Rows that cannot be read are reported and skipped.`,
		Example: fmt.Sprintf(`  zugferd %s sheet-import --sheet %q --dry-run`, k.name, k.sheet),
		Args:    cobra.NoArgs,
		RunE:    k.runSheetImport,
	}
	sheetImport.Flags().Bool("dry-run", false, "Print the records without storing them")
	for _, c := range []*cobra.Command{sheetExport, sheetImport} {
		c.Flags().String("sheet", k.sheet, "Worksheet name")
		c.Flags().String("url", "", "Spreadsheet URL (default: GOOGLE_SHEET_URL)")
	}

	group.AddCommand(list, show, add, update, remove, importCmd, export, sheetExport, sheetImport)
	return group
}

func (k recordKind[T]) open(cmd *cobra.Command) (*repository.Repository[T], error) {
	a, err := openApp(cmd)
	if err != nil {
		return nil, err
	}
	return k.repo(a), nil
}

func (k recordKind[T]) runList(cmd *cobra.Command, args []string) error {
	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	records := repo.All()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd, records, "", logger.WithComponent(k.name))
	}
	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s stored.\n", k.name)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(k.header, "\t"))
	for _, rec := range records {
		fmt.Fprintln(w, strings.Join(k.columns(rec), "\t"))
	}
	return w.Flush()
}

// get looks a record up by key, or by name when arg is not a number.
func (k recordKind[T]) get(repo *repository.Repository[T], arg string) (T, error) {
	if key, err := parseKey(arg); err == nil {
		rec, ok := repo.Get(key)
		if !ok {
			return rec, fmt.Errorf("no %s with key %d", k.singular, key)
		}
		return rec, nil
	}
	rec, ok := repo.Find(arg)
	if !ok {
		return rec, fmt.Errorf("no %s with key or name %q", k.singular, arg)
	}
	return rec, nil
}

func (k recordKind[T]) runShow(cmd *cobra.Command, args []string) error {
	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	rec, err := k.get(repo, args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd, rec, "", logger.WithComponent(k.name))
}

// decode reads one JSON object from the --file flag or stdin onto rec and
// validates the result.
func (k recordKind[T]) decode(cmd *cobra.Command, rec T) (T, error) {
	path, _ := cmd.Flags().GetString("file")
	in, err := openInput(cmd, path)
	if err != nil {
		return rec, err
	}
	defer in.Close()

	if err := json.NewDecoder(in).Decode(&rec); err != nil {
		return rec, fmt.Errorf("invalid %s JSON: %w", k.singular, err)
	}
	if err := rec.Validate(); err != nil {
		return rec, fmt.Errorf("%s not stored: %w", k.singular, err)
	}
	return rec, nil
}

func (k recordKind[T]) runAdd(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(k.name)

	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	rec, err := k.decode(cmd, k.blank())
	if err != nil {
		return err
	}

	stored := repo.Put(rec.WithKey(0))
	if err := saveRecords(repo, log); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s %q with key %d\n", k.singular, stored.DisplayName(), stored.RecordKey())
	return nil
}

func (k recordKind[T]) runUpdate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(k.name)

	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	existing, err := k.get(repo, args[0])
	if err != nil {
		return err
	}

	// WithKey returns a copy, so decoding cannot reach the stored record.
	rec, err := k.decode(cmd, existing.WithKey(existing.RecordKey()))
	if err != nil {
		return err
	}

	stored := repo.Put(rec.WithKey(existing.RecordKey()))
	if err := saveRecords(repo, log); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %d (%s)\n", k.singular, stored.RecordKey(), stored.DisplayName())
	return nil
}

func (k recordKind[T]) runRemove(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(k.name)

	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	rec, err := k.get(repo, args[0])
	if err != nil {
		return err
	}
	repo.Remove(rec)
	if err := saveRecords(repo, log); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %d (%s)\n", k.singular, rec.RecordKey(), rec.DisplayName())
	return nil
}

func (k recordKind[T]) runImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(k.name)

	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()

	var raw []json.RawMessage
	if err := json.NewDecoder(in).Decode(&raw); err != nil {
		return fmt.Errorf("expected a JSON array of %s: %w", k.name, err)
	}
	records := make([]T, 0, len(raw))
	var invalid []error
	for i, msg := range raw {
		rec := k.blank()
		if err := json.Unmarshal(msg, &rec); err != nil {
			return fmt.Errorf("%s %d: %w", k.singular, i+1, err)
		}
		if err := rec.Validate(); err != nil {
			invalid = append(invalid, fmt.Errorf("%s %d: %w", k.singular, i+1, err))
			continue
		}
		records = append(records, rec)
	}
	if len(invalid) > 0 {
		return fmt.Errorf("nothing imported: %w", errors.Join(invalid...))
	}

	unsubscribe := announceStored(repo, cmd.OutOrStdout())
	stored := repo.Import(records)
	unsubscribe()
	if err := saveRecords(repo, log); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s\n", len(stored), k.name)
	return nil
}

func (k recordKind[T]) runExport(cmd *cobra.Command, args []string) error {
	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")
	return writeJSON(cmd, repo.All(), outputPath, logger.WithComponent(k.name))
}

func (k recordKind[T]) runSheetExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(k.name)

	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := createContext(cmd, log)
	defer cancel()

	svc, url, err := createSheetsService(ctx, cmd, log)
	if err != nil {
		return err
	}
	sheet, _ := cmd.Flags().GetString("sheet")
	records := repo.All()

	if err := k.exportSheet(ctx, svc, sheet, records); err != nil {
		return handleSheetsError(err, log)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sheet: %s\nZeilen geschrieben: %d\nURL: %s\n", sheet, len(records), url)
	return nil
}

func (k recordKind[T]) runSheetImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(k.name)

	repo, err := k.open(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := createContext(cmd, log)
	defer cancel()

	svc, _, err := createSheetsService(ctx, cmd, log)
	if err != nil {
		return err
	}
	sheet, _ := cmd.Flags().GetString("sheet")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	result, err := k.importSheet(ctx, svc, sheet)
	if err != nil {
		return handleSheetsError(err, log)
	}

	out := cmd.OutOrStdout()
	for _, skipped := range result.Skipped {
		fmt.Fprintf(out, "Zeile %d übersprungen: %v\n", skipped.Row, skipped.Err)
	}
	if dryRun {
		return writeJSON(cmd, result.Records, "", log)
	}

	unsubscribe := announceStored(repo, out)
	stored := repo.Import(result.Records)
	unsubscribe()
	if err := saveRecords(repo, log); err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d %s from sheet %q\n", len(stored), k.name, sheet)
	return nil
}

// announceStored prints every record stored until unsubscribe is called.
func announceStored[T repository.Record[T]](repo *repository.Repository[T], out io.Writer) (unsubscribe func()) {
	return repo.Subscribe(func(c repository.Change[T]) {
		if c.Kind == repository.Stored {
			fmt.Fprintf(out, "  + %d %s\n", c.Record.RecordKey(), c.Record.DisplayName())
		}
	})
}

// saveRecords writes the collection and turns a failed write into a command
// error.
func saveRecords[T repository.Record[T]](repo *repository.Repository[T], log zerolog.Logger) error {
	if err := repo.Save(); err != nil {
		log.Error().Err(err).Str("repository", repo.Name()).Msg("Save failed")
		return fmt.Errorf("could not save %s, the previous file was kept: %w", repo.Name(), err)
	}
	return nil
}

func createSheetsService(ctx context.Context, cmd *cobra.Command, log zerolog.Logger) (*sheets.Service, string, error) {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = cfg.GoogleSheetURL
	}
	if url == "" {
		return nil, "", fmt.Errorf("no spreadsheet given. Set GOOGLE_SHEET_URL or pass --url")
	}

	svc, err := sheets.NewSheetsService(ctx, url, sheets.Credentials{
		JSON: cfg.GoogleCredentials,
		File: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return nil, "", handleSheetsError(err, log)
	}
	return svc, url, nil
}

// handleSheetsError provides user-friendly error messages for Google Sheets failures
func handleSheetsError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Google Sheets operation failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("Google Sheets did not answer in time. Try increasing --timeout")
	case errors.Is(err, sheets.ErrInvalidURL):
		return fmt.Errorf("invalid spreadsheet URL. Expected https://docs.google.com/spreadsheets/d/<id>/...")
	case errors.Is(err, sheets.ErrMissingCredentials):
		return fmt.Errorf("missing Google credentials. Please set one of:\n" +
			"  GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n" +
			"  GOOGLE_CREDENTIALS='<json-credentials>'\n" +
			"and share the spreadsheet with the service account")
	case errors.Is(err, sheets.ErrMissingHeader):
		return fmt.Errorf("the worksheet has no header row with a Name column: %w", err)
	default:
		return fmt.Errorf("Google Sheets operation failed: %w", err)
	}
}
