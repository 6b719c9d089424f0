// Package ledger persists one row per certificate request in an append-only
// table. Backends share the same column schema and differ only in storage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Columns is the ledger schema, in order
var Columns = []string{
	"Name",
	"Domain",
	"Duration",
	"Start Date",
	"End Date",
	"Grade",
	"Certificate ID",
	"Email",
	"Status",
}

var (
	// ErrSchemaMismatch is returned when a replacement table does not carry the ledger header
	ErrSchemaMismatch = errors.New("table does not match the ledger schema")
	// ErrUnknownBackend is returned by New for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown ledger backend")
)

// Ledger is an append-only store of certificate rows. Replace is the
// administrative full overwrite and is not used by the generation workflow.
type Ledger interface {
	Append(ctx context.Context, row Row) error
	ReadAll(ctx context.Context) (*Table, error)
	Replace(ctx context.Context, table *Table) error
}

// Row is one logged certificate request
type Row struct {
	Name          string `json:"name" db:"name" dynamodbav:"name"`
	Domain        string `json:"domain" db:"domain" dynamodbav:"domain"`
	Duration      string `json:"duration" db:"duration" dynamodbav:"duration"`
	StartDate     string `json:"start_date" db:"start_date" dynamodbav:"start_date"`
	EndDate       string `json:"end_date" db:"end_date" dynamodbav:"end_date"`
	Grade         string `json:"grade" db:"grade" dynamodbav:"grade"`
	CertificateID string `json:"certificate_id" db:"certificate_id" dynamodbav:"certificate_id"`
	Email         string `json:"email" db:"email" dynamodbav:"email"`
	Status        string `json:"status" db:"status" dynamodbav:"status"`
}

// Values returns the row in column order
func (r Row) Values() []string {
	return []string{
		r.Name,
		r.Domain,
		r.Duration,
		r.StartDate,
		r.EndDate,
		r.Grade,
		r.CertificateID,
		r.Email,
		r.Status,
	}
}

// RowFromValues builds a row from values in column order
func RowFromValues(values []string) (Row, error) {
	if len(values) != len(Columns) {
		return Row{}, fmt.Errorf("%w: expected %d values, got %d", ErrSchemaMismatch, len(Columns), len(values))
	}
	return Row{
		Name:          values[0],
		Domain:        values[1],
		Duration:      values[2],
		StartDate:     values[3],
		EndDate:       values[4],
		Grade:         values[5],
		CertificateID: values[6],
		Email:         values[7],
		Status:        values[8],
	}, nil
}

// Table is the full ledger content, header first
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// NewTable creates a table with the ledger header
func NewTable(rows ...Row) *Table {
	t := &Table{Header: append([]string(nil), Columns...)}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.Values())
	}
	return t
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Validate checks the header against Columns (trimmed, case-insensitive) and
// the width of every row
func (t *Table) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: table is empty", ErrSchemaMismatch)
	}
	if len(t.Header) != len(Columns) {
		return fmt.Errorf("%w: expected %d columns, got %d", ErrSchemaMismatch, len(Columns), len(t.Header))
	}
	for i, col := range Columns {
		if !strings.EqualFold(strings.TrimSpace(t.Header[i]), col) {
			return fmt.Errorf("%w: column %d is %q, expected %q", ErrSchemaMismatch, i+1, t.Header[i], col)
		}
	}
	for i, row := range t.Rows {
		if len(row) != len(Columns) {
			return fmt.Errorf("%w: row %d has %d values", ErrSchemaMismatch, i+1, len(row))
		}
	}
	return nil
}

// Normalized returns a copy with the canonical header and padded rows
func (t *Table) Normalized() *Table {
	out := &Table{Header: append([]string(nil), Columns...)}
	if t == nil {
		return out
	}
	for _, row := range t.Rows {
		out.Rows = append(out.Rows, padRow(row))
	}
	return out
}

// padRow stretches short rows to the column count. Spreadsheet backends drop
// trailing empty cells.
func padRow(row []string) []string {
	out := make([]string, len(Columns))
	copy(out, row)
	return out
}
