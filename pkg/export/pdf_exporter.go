package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	headerHeight = 8.0
	lineHeight   = 5.0
)

// PDFExporter renders datasets into a landscape A4 table. Core fonts only cover
// cp1252, so Cyrillic output needs a UTF-8 TrueType font registered via WithUTF8Font.
type PDFExporter struct {
	family   string
	fontPath string
}

// PDFOption customises PDF output.
type PDFOption func(*PDFExporter)

// WithUTF8Font registers a TrueType font used for every cell.
func WithUTF8Font(family, path string) PDFOption {
	return func(e *PDFExporter) {
		if family != "" && path != "" {
			e.family = family
			e.fontPath = path
		}
	}
}

func NewPDFExporter(opts ...PDFOption) *PDFExporter {
	e := &PDFExporter{family: "Arial"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render lays out a title, optional summary lines and the table. Long cells wrap
// and every row grows to its tallest cell.
func (e *PDFExporter) Render(data Dataset, title string, summary ...string) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("pdf: %w", errNoColumns)
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := func(s string) string { return s }
	if e.fontPath != "" {
		pdf.AddUTF8Font(e.family, "", e.fontPath)
		pdf.AddUTF8Font(e.family, "B", e.fontPath)
	} else {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont(e.family, "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	}
	if len(summary) > 0 {
		pdf.SetFont(e.family, "", 10)
		for _, line := range summary {
			pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	widths := columnWidths(pdf, data.Columns)
	header := func() {
		pdf.SetFont(e.family, "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, col := range data.Columns {
			pdf.CellFormat(widths[i], headerHeight, tr(col.title()), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(e.family, "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	left, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		cells := data.record(row)
		height := rowHeight(pdf, widths, cells, tr)
		if pdf.GetY()+height > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		x, y := pdf.GetXY()
		for i, cell := range cells {
			pdf.Rect(x, y, widths[i], height, "D")
			pdf.SetXY(x, y)
			pdf.MultiCell(widths[i], lineHeight, tr(cell), "", data.Columns[i].Align, false)
			x += widths[i]
		}
		pdf.SetXY(left, y+height)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: output: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(pdf *gofpdf.Fpdf, columns []Column) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	total := 0.0
	for _, col := range columns {
		total += weight(col)
	}
	widths := make([]float64, len(columns))
	for i, col := range columns {
		widths[i] = (pageWidth - left - right) * weight(col) / total
	}
	return widths
}

func rowHeight(pdf *gofpdf.Fpdf, widths []float64, cells []string, tr func(string) string) float64 {
	lines := 1
	for i, cell := range cells {
		if n := len(pdf.SplitText(tr(cell), widths[i])); n > lines {
			lines = n
		}
	}
	return float64(lines) * lineHeight
}

func weight(col Column) float64 {
	if col.Weight <= 0 {
		return 1
	}
	return col.Weight
}
