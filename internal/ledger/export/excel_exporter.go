package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetLayout controls how the ledger sheet is laid out
type SheetLayout struct {
	SheetName    string
	FreezeHeader bool
	AutoFilter   bool
	// column widths are clamped to [MinWidth, MaxWidth]; zero MaxWidth keeps
	// the excelize default width
	MinWidth float64
	MaxWidth float64
	// HeaderFill is an RGB hex colour; empty leaves the header unstyled
	HeaderFill string
}

// DefaultSheetLayout is a frozen, filterable "Ledger" sheet with a blue header
func DefaultSheetLayout() SheetLayout {
	return SheetLayout{
		SheetName:    "Ledger",
		FreezeHeader: true,
		AutoFilter:   true,
		MinWidth:     10,
		MaxWidth:     50,
		HeaderFill:   "4472C4",
	}
}

// Workbook wraps a single-sheet excelize workbook holding the ledger
type Workbook struct {
	file   *excelize.File
	layout SheetLayout
}

// NewWorkbook creates an empty workbook whose first sheet is named after layout
func NewWorkbook(layout SheetLayout) *Workbook {
	file := excelize.NewFile()
	if layout.SheetName == "" {
		layout.SheetName = "Sheet1"
	}
	_ = file.SetSheetName("Sheet1", layout.SheetName)
	return &Workbook{file: file, layout: layout}
}

// File exposes the underlying workbook
func (b *Workbook) File() *excelize.File {
	return b.file
}

// Close releases the workbook
func (b *Workbook) Close() error {
	return b.file.Close()
}

// WriteTable writes header on row 1 and rows beneath it, every cell as text
func (b *Workbook) WriteTable(header []string, rows [][]string) error {
	sheet := b.layout.SheetName

	if err := b.setRow(1, header); err != nil {
		return err
	}
	if err := b.styleHeader(len(header)); err != nil {
		return err
	}

	widths := make([]int, len(header))
	for i, col := range header {
		widths[i] = len(col)
	}
	for i, row := range rows {
		if err := b.setRow(i+2, row); err != nil {
			return err
		}
		for j, val := range row {
			if j < len(widths) && len(val) > widths[j] {
				widths[j] = len(val)
			}
		}
	}

	if b.layout.FreezeHeader {
		_ = b.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	if b.layout.AutoFilter && len(header) > 0 && len(rows) > 0 {
		corner, _ := excelize.CoordinatesToCellName(len(header), len(rows)+1)
		_ = b.file.AutoFilter(sheet, "A1:"+corner, nil)
	}
	if b.layout.MaxWidth > 0 {
		for i, chars := range widths {
			col, _ := excelize.ColumnNumberToName(i + 1)
			// about 1.2 width units per character
			width := min(max(float64(chars)*1.2, b.layout.MinWidth), b.layout.MaxWidth)
			_ = b.file.SetColWidth(sheet, col, col, width)
		}
	}
	return nil
}

func (b *Workbook) setRow(n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := b.file.SetSheetRow(b.layout.SheetName, cell, &row); err != nil {
		return fmt.Errorf("failed to write row %d: %w", n, err)
	}
	return nil
}

func (b *Workbook) styleHeader(columns int) error {
	if b.layout.HeaderFill == "" || columns == 0 {
		return nil
	}
	thin := func(side string) excelize.Border {
		return excelize.Border{Type: side, Color: "000000", Style: 1}
	}
	style, err := b.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{b.layout.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    []excelize.Border{thin("left"), thin("right"), thin("top"), thin("bottom")},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(columns, 1)
	if err := b.file.SetCellStyle(b.layout.SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return nil
}
