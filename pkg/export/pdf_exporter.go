package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a Dataset into a tabular PDF. Schedules carry several
// narrow columns, so pages are laid out landscape with the header row shaded
// and repeated state kept minimal.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const (
	pdfMarginMM    = 10.0
	pdfHeaderH     = 8.0
	pdfRowH        = 7.0
	pdfMaxCellRune = 48
)

// Render creates a PDF document with an optional title line above the table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetMargins(pdfMarginMM, 15, pdfMarginMM)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(4)
	}

	pageW, _ := doc.GetPageSize()
	cellW := (pageW - 2*pdfMarginMM) / float64(len(data.Columns))

	doc.SetFillColor(230, 230, 230)
	doc.SetFont("Arial", "B", 10)
	for _, col := range data.Columns {
		doc.CellFormat(cellW, pdfHeaderH, col, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, cell := range data.normalize(row) {
			doc.CellFormat(cellW, pdfRowH, clipCell(cell), "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func clipCell(s string) string {
	runes := []rune(s)
	if len(runes) <= pdfMaxCellRune {
		return s
	}
	return string(runes[:pdfMaxCellRune-3]) + "..."
}
