package ledger

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Sheet1"

// SheetsOptions configures the hosted spreadsheet backend
type SheetsOptions struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
	// Endpoint overrides the API base URL
	Endpoint string
}

// SheetsLedger appends rows to a hosted spreadsheet. values.append is atomic
// on the service side. The header is written to a fixed A1 range, so
// processes racing on an empty sheet overwrite the same cells instead of
// appending a second header row.
type SheetsLedger struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheet         string
	mu            sync.Mutex
}

// NewSheetsLedger creates a spreadsheet ledger. Extra client options are
// appended after the ones derived from opts.
func NewSheetsLedger(ctx context.Context, opts SheetsOptions, extra ...option.ClientOption) (*SheetsLedger, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if opts.SheetName == "" {
		opts.SheetName = defaultSheetName
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	switch {
	case opts.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	clientOpts = append(clientOpts, extra...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	return &SheetsLedger{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: opts.SpreadsheetID,
		sheet:         opts.SheetName,
	}, nil
}

// Append adds a row after the last filled row, writing the header first when
// the sheet is empty
func (l *SheetsLedger) Append(ctx context.Context, row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	header, err := l.values.Get(l.spreadsheetID, l.headerRange()).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet header: %w", err)
	}

	if len(header.Values) == 0 {
		if err := l.writeHeader(ctx); err != nil {
			return err
		}
	}

	rows := [][]interface{}{toCells(row.Values())}
	_, err = l.values.Append(l.spreadsheetID, l.sheet, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append sheet row: %w", err)
	}
	return nil
}

// ReadAll returns every filled row of the sheet
func (l *SheetsLedger) ReadAll(ctx context.Context) (*Table, error) {
	resp, err := l.values.Get(l.spreadsheetID, l.sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(resp.Values) == 0 {
		return NewTable(), nil
	}

	t := &Table{Header: fromCells(resp.Values[0], 0)}
	for _, cells := range resp.Values[1:] {
		t.Rows = append(t.Rows, fromCells(cells, len(t.Header)))
	}
	return t, nil
}

// Replace clears the sheet and writes table from A1
func (l *SheetsLedger) Replace(ctx context.Context, table *Table) error {
	if err := table.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.values.Clear(l.spreadsheetID, l.sheet, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	rows := [][]interface{}{toCells(Columns)}
	for _, r := range table.Rows {
		rows = append(rows, toCells(r))
	}

	_, err := l.values.Update(l.spreadsheetID, l.sheet+"!A1", &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet: %w", err)
	}
	return nil
}

func (l *SheetsLedger) writeHeader(ctx context.Context) error {
	_, err := l.values.Update(l.spreadsheetID, l.headerRange(), &sheets.ValueRange{
		Values: [][]interface{}{toCells(Columns)},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet header: %w", err)
	}
	return nil
}

func (l *SheetsLedger) headerRange() string {
	return l.sheet + "!A1:I1"
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// fromCells converts a row of cells, padding to width when width > 0
func fromCells(cells []interface{}, width int) []string {
	n := max(len(cells), width)
	out := make([]string, n)
	for i, c := range cells {
		if c != nil {
			out[i] = fmt.Sprint(c)
		}
	}
	return out
}
