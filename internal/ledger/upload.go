package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedUpload is returned for replacement files that are neither CSV nor XLSX
var ErrUnsupportedUpload = errors.New("replacement ledger must be a .csv or .xlsx file")

const maxUploadSize = 10 << 20

// ParseUpload reads a replacement ledger, choosing the parser by the file
// extension, and validates it against the ledger schema
func ParseUpload(filename string, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > maxUploadSize {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxUploadSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrSchemaMismatch)
	}

	var table *Table
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		table, err = readCSV(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	case ".xlsx":
		var f *excelize.File
		f, err = excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
		defer f.Close()
		table, err = tableFromWorkbook(f)
	default:
		return nil, ErrUnsupportedUpload
	}
	if err != nil {
		return nil, err
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
