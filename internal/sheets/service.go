// Package sheets exchanges the address book and product catalogue with a
// Google Sheets spreadsheet. Export replaces a worksheet; import returns
// transient records for the caller to add to a repository.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"zugferd/internal/logger"
	"zugferd/pkg/models"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// backend is the part of the Sheets API the service needs.
type backend interface {
	// ensureSheet returns the ID of the worksheet title, creating it when missing.
	ensureSheet(ctx context.Context, title string) (int64, error)
	replace(ctx context.Context, title string, values [][]interface{}) error
	read(ctx context.Context, title string) ([][]interface{}, error)
	formatHeader(ctx context.Context, sheetID int64, columns int) error
}

// Service handles Google Sheets operations
type Service struct {
	api backend
	log zerolog.Logger
}

// Credentials holds a service account key, inline or as a file path.
type Credentials struct {
	JSON string
	File string
}

// NewSheetsService connects to the spreadsheet at sheetURL.
func NewSheetsService(ctx context.Context, sheetURL string, creds Credentials) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, &SheetsError{Op: op, Err: err, Details: sheetURL}
	}
	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var key []byte
	switch {
	case creds.JSON != "":
		key = []byte(creds.JSON)
	case creds.File != "":
		key, err = os.ReadFile(creds.File)
		if err != nil {
			return nil, &SheetsError{Op: op, Err: err, Details: "failed to read credentials file"}
		}
	default:
		return nil, &SheetsError{Op: op, Err: ErrMissingCredentials, Details: "set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS"}
	}

	config, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, &SheetsError{Op: op, Err: err, Details: "failed to parse credentials"}
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, &SheetsError{Op: op, Err: err, Details: "failed to create sheets service"}
	}

	return &Service{
		api: &apiBackend{svc: svc, spreadsheetID: spreadsheetID, log: log},
		log: log,
	}, nil
}

func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", ErrInvalidURL
	}
	return matches[1], nil
}

// ExportParties replaces the worksheet with a header row and one row per party.
func (s *Service) ExportParties(ctx context.Context, sheetName string, parties []models.TradeParty) error {
	rows := make([][]interface{}, 0, len(parties))
	for _, p := range parties {
		rows = append(rows, partyRow(p))
	}
	return s.export(ctx, "ExportParties", sheetName, PartyHeader, rows)
}

// ExportProducts replaces the worksheet with a header row and one row per product.
func (s *Service) ExportProducts(ctx context.Context, sheetName string, products []models.Product) error {
	rows := make([][]interface{}, 0, len(products))
	for _, p := range products {
		rows = append(rows, productRow(p))
	}
	return s.export(ctx, "ExportProducts", sheetName, ProductHeader, rows)
}

func (s *Service) export(ctx context.Context, op, sheetName string, header []string, rows [][]interface{}) error {
	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(rows)).
		Msg("Writing records to Google Sheet")

	sheetID, err := s.api.ensureSheet(ctx, sheetName)
	if err != nil {
		return &SheetsError{Op: op, Sheet: sheetName, Err: err, Details: "failed to ensure sheet exists"}
	}

	values := make([][]interface{}, 0, len(rows)+1)
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	values = append(values, headerRow)
	values = append(values, rows...)

	if err := s.api.replace(ctx, sheetName, values); err != nil {
		return &SheetsError{Op: op, Sheet: sheetName, Err: err, Details: "failed to write values"}
	}
	if err := s.api.formatHeader(ctx, sheetID, len(header)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}

	s.log.Info().Int("rows_written", len(rows)).Msg("Successfully wrote records to Google Sheet")
	return nil
}

// Import is the outcome of reading a worksheet: the records that converted
// and the rows that were skipped.
type Import[T any] struct {
	Records []T
	Skipped []RowError
}

// ImportParties reads senders or recipients from a worksheet. Columns are
// matched by header text, German or English, in any order.
func (s *Service) ImportParties(ctx context.Context, sheetName string) (*Import[models.TradeParty], error) {
	return importRows(ctx, s, "ImportParties", sheetName, PartyHeader, partyAliases, partyFromRow)
}

// ImportProducts reads products from a worksheet.
func (s *Service) ImportProducts(ctx context.Context, sheetName string) (*Import[models.Product], error) {
	return importRows(ctx, s, "ImportProducts", sheetName, ProductHeader, productAliases, productFromRow)
}

func importRows[T interface{ Validate() error }](
	ctx context.Context,
	s *Service,
	op, sheetName string,
	header []string,
	aliases map[string]int,
	convert func(row []interface{}, index []int) (T, error),
) (*Import[T], error) {
	values, err := s.api.read(ctx, sheetName)
	if err != nil {
		return nil, &SheetsError{Op: op, Sheet: sheetName, Err: err, Details: "failed to read values"}
	}
	if len(values) == 0 {
		return nil, &SheetsError{Op: op, Sheet: sheetName, Err: ErrMissingHeader}
	}
	index, ok := columnIndex(values[0], header, aliases)
	if !ok {
		return nil, &SheetsError{Op: op, Sheet: sheetName, Err: ErrMissingHeader, Details: fmt.Sprintf("expected a %q column", header[0])}
	}

	result := &Import[T]{}
	for i, row := range values[1:] {
		if cell(row, index[0]) == "" {
			continue
		}
		record, err := convert(row, index)
		if err == nil {
			if verr := record.Validate(); verr != nil {
				err = fmt.Errorf("%w: %v", ErrInvalidRow, verr)
			}
		}
		if err != nil {
			rowErr := RowError{Row: i + 2, Err: err}
			s.log.Warn().Err(err).Int("row", rowErr.Row).Str("sheet", sheetName).Msg("Skipping row")
			result.Skipped = append(result.Skipped, rowErr)
			continue
		}
		result.Records = append(result.Records, record)
	}

	s.log.Info().
		Str("sheet", sheetName).
		Int("records", len(result.Records)).
		Int("skipped", len(result.Skipped)).
		Msg("Read records from Google Sheet")
	return result, nil
}

type apiBackend struct {
	svc           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

func (b *apiBackend) ensureSheet(ctx context.Context, title string) (int64, error) {
	spreadsheet, err := b.svc.Spreadsheets.Get(b.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties.SheetId, nil
		}
	}

	b.log.Info().Str("sheet", title).Msg("Creating new sheet")
	resp, err := b.svc.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (b *apiBackend) replace(ctx context.Context, title string, values [][]interface{}) error {
	if _, err := b.svc.Spreadsheets.Values.Clear(b.spreadsheetID, title, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}
	_, err := b.svc.Spreadsheets.Values.Update(
		b.spreadsheetID,
		title+"!A1",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (b *apiBackend) read(ctx context.Context, title string) ([][]interface{}, error) {
	resp, err := b.svc.Spreadsheets.Values.Get(b.spreadsheetID, title).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// formatHeader makes the header row bold and resizes the columns.
func (b *apiBackend) formatHeader(ctx context.Context, sheetID int64, columns int) error {
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}

	_, err := b.svc.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}
