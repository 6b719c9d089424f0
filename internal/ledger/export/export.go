// Package export renders ledger tables for download as CSV, XLSX or PDF.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Supported formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ErrUnsupportedFormat is returned for an unknown export format
var ErrUnsupportedFormat = errors.New("unsupported export format")

// File is a rendered export ready to be served
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Render writes header and rows in format. baseName is the file name without
// extension.
func Render(format, baseName string, header []string, rows [][]string) (*File, error) {
	var buf bytes.Buffer

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV, "":
		if err := writeCSV(&buf, header, rows); err != nil {
			return nil, err
		}
		return &File{Name: baseName + ".csv", ContentType: "text/csv", Data: buf.Bytes()}, nil

	case FormatXLSX:
		book := NewWorkbook(DefaultSheetLayout())
		defer book.Close()
		if err := book.WriteTable(header, rows); err != nil {
			return nil, err
		}
		if err := book.File().Write(&buf); err != nil {
			return nil, fmt.Errorf("failed to write workbook: %w", err)
		}
		return &File{
			Name:        baseName + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        buf.Bytes(),
		}, nil

	case FormatPDF:
		report := newPDFReport(defaultPDFLayout(), fmt.Sprintf("%d certificates", len(rows)))
		report.table(header, rows)
		if err := report.pdf.Output(&buf); err != nil {
			return nil, fmt.Errorf("failed to write pdf: %w", err)
		}
		return &File{Name: baseName + ".pdf", ContentType: "application/pdf", Data: buf.Bytes()}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
