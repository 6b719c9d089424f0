package export

import (
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

type rgb struct{ r, g, b int }

// pdfLayout sizes the landscape A4 ledger report
type pdfLayout struct {
	title      string
	font       string
	bodySize   float64
	headSize   float64
	titleSize  float64
	margin     float64
	rowHeight  float64
	headerFill rgb
	stripe     rgb
}

func defaultPDFLayout() pdfLayout {
	return pdfLayout{
		title:      "Completion Certificates",
		font:       "Arial",
		bodySize:   8,
		headSize:   9,
		titleSize:  16,
		margin:     10,
		rowHeight:  7,
		headerFill: rgb{68, 114, 196},
		stripe:     rgb{242, 242, 242},
	}
}

type pdfReport struct {
	pdf      *gofpdf.Fpdf
	tr       func(string) string
	layout   pdfLayout
	subtitle string
	now      func() time.Time
}

func newPDFReport(layout pdfLayout, subtitle string) *pdfReport {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(layout.margin, layout.margin+5, layout.margin)
	pdf.SetAutoPageBreak(true, layout.margin+5)

	r := &pdfReport{
		pdf:      pdf,
		tr:       pdf.UnicodeTranslatorFromDescriptor(""),
		layout:   layout,
		subtitle: subtitle,
		now:      time.Now,
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(layout.font, "", 7)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	return r
}

// table renders the title block followed by the rows, repeating the header
// on every page
func (r *pdfReport) table(header []string, rows [][]string) {
	l := r.layout
	r.pdf.AddPage()

	r.pdf.SetFont(l.font, "B", l.titleSize)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.CellFormat(0, 10, r.tr(l.title), "", 1, "C", false, 0, "")
	if r.subtitle != "" {
		r.pdf.SetFont(l.font, "", l.bodySize+2)
		r.pdf.SetTextColor(100, 100, 100)
		r.pdf.CellFormat(0, 8, r.tr(r.subtitle), "", 1, "C", false, 0, "")
	}
	r.pdf.SetFont(l.font, "", l.bodySize)
	r.pdf.SetTextColor(128, 128, 128)
	r.pdf.CellFormat(0, 6, "Generated: "+r.now().Format("02 January 2006"), "", 1, "R", false, 0, "")
	r.pdf.Ln(4)

	if len(header) == 0 {
		return
	}

	widths := r.columnWidths(header, rows)
	r.headerRow(header, widths)

	_, pageHeight := r.pdf.GetPageSize()
	_, _, _, bottom := r.pdf.GetMargins()
	for i, row := range rows {
		if r.pdf.GetY()+l.rowHeight > pageHeight-bottom {
			r.pdf.AddPage()
			r.headerRow(header, widths)
		}
		fill := rgb{255, 255, 255}
		if i%2 == 1 {
			fill = l.stripe
		}
		r.pdf.SetFillColor(fill.r, fill.g, fill.b)
		for j := range header {
			val := ""
			if j < len(row) {
				val = r.fit(r.tr(row[j]), widths[j])
			}
			r.pdf.CellFormat(widths[j], l.rowHeight, val, "1", 0, "L", true, 0, "")
		}
		r.pdf.Ln(-1)
	}
}

// headerRow leaves the body font selected
func (r *pdfReport) headerRow(header []string, widths []float64) {
	l := r.layout
	r.pdf.SetFont(l.font, "B", l.headSize)
	r.pdf.SetFillColor(l.headerFill.r, l.headerFill.g, l.headerFill.b)
	r.pdf.SetTextColor(255, 255, 255)
	for i, label := range header {
		r.pdf.CellFormat(widths[i], l.rowHeight+1, r.tr(label), "1", 0, "C", true, 0, "")
	}
	r.pdf.Ln(-1)

	r.pdf.SetFont(l.font, "", l.bodySize)
	r.pdf.SetTextColor(0, 0, 0)
}

// columnWidths sizes each column to its widest value in the first 100 rows,
// then scales the set down to the printable width
func (r *pdfReport) columnWidths(header []string, rows [][]string) []float64 {
	l := r.layout
	pageWidth, _ := r.pdf.GetPageSize()
	available := pageWidth - 2*l.margin

	widths := make([]float64, len(header))
	r.pdf.SetFont(l.font, "B", l.headSize)
	for i, label := range header {
		widths[i] = r.pdf.GetStringWidth(label) + 4
	}

	r.pdf.SetFont(l.font, "", l.bodySize)
	sample := rows[:min(len(rows), 100)]
	for _, row := range sample {
		for i := 0; i < len(header) && i < len(row); i++ {
			widths[i] = max(widths[i], r.pdf.GetStringWidth(row[i])+4)
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > available {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

// fit truncates val with an ellipsis when it overflows width. val is already
// single-byte encoded by the translator.
func (r *pdfReport) fit(val string, width float64) string {
	if r.pdf.GetStringWidth(val)+2 <= width {
		return val
	}
	for len(val) > 0 && r.pdf.GetStringWidth(val+"...")+2 > width {
		val = val[:len(val)-1]
	}
	return val + "..."
}
