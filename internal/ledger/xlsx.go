package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"

	"certificate-portal/certificate-portal-backend/internal/ledger/export"
)

// XLSXLedger keeps the ledger in a local workbook. Every append is a locked
// read-modify-write of the whole file.
type XLSXLedger struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewXLSXLedger creates a ledger backed by the workbook at path
func NewXLSXLedger(path string) (*XLSXLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &XLSXLedger{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Append adds one row below the last used row, creating the workbook with a
// styled header when it does not exist yet
func (l *XLSXLedger) Append(ctx context.Context, row Row) error {
	unlock, err := acquire(ctx, &l.mu, l.lock)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return l.writeWorkbook([][]string{row.Values()})
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to open ledger workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read ledger workbook: %w", err)
	}

	next := len(rows) + 1
	if len(rows) == 0 {
		if err := setRow(f, sheet, 1, Columns); err != nil {
			return err
		}
		next = 2
	}
	if err := setRow(f, sheet, next, row.Values()); err != nil {
		return err
	}

	return l.save(f)
}

// ReadAll returns every row of the first sheet
func (l *XLSXLedger) ReadAll(ctx context.Context) (*Table, error) {
	unlock, err := acquire(ctx, &l.mu, l.lock)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return NewTable(), nil
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger workbook: %w", err)
	}
	defer f.Close()

	return tableFromWorkbook(f)
}

// Replace writes a fresh workbook holding table
func (l *XLSXLedger) Replace(ctx context.Context, table *Table) error {
	if err := table.Validate(); err != nil {
		return err
	}

	unlock, err := acquire(ctx, &l.mu, l.lock)
	if err != nil {
		return err
	}
	defer unlock()

	return l.writeWorkbook(table.Rows)
}

func (l *XLSXLedger) writeWorkbook(rows [][]string) error {
	book := export.NewWorkbook(export.DefaultSheetLayout())
	defer book.Close()

	if err := book.WriteTable(Columns, rows); err != nil {
		return err
	}
	return l.save(book.File())
}

// save writes through a temp file so readers never see a partial workbook
func (l *XLSXLedger) save(f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write ledger row: %w", err)
	}
	return nil
}

// tableFromWorkbook reads the first sheet, padding rows that lost trailing
// empty cells
func tableFromWorkbook(f *excelize.File) (*Table, error) {
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	if len(rows) == 0 {
		return NewTable(), nil
	}

	t := &Table{Header: rows[0]}
	for _, row := range rows[1:] {
		if len(row) < len(t.Header) {
			padded := make([]string, len(t.Header))
			copy(padded, row)
			row = padded
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
