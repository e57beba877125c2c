package export

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/jung-kurt/gofpdf"
)

const utf8Family = "schedule_utf8"

//go:embed fonts/DejaVuSansCondensed.ttf
var defaultFont []byte

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter constructs a PDF exporter. fontPath overrides the embedded
// DejaVu Sans Condensed font and must point at a TTF with Cyrillic glyphs.
func NewPDFExporter(fontPath string) *PDFExporter {
	return &PDFExporter{fontPath: fontPath}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	font := defaultFont
	if e.fontPath != "" {
		custom, err := os.ReadFile(e.fontPath)
		if err != nil {
			return nil, fmt.Errorf("read pdf font: %w", err)
		}
		font = custom
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddUTF8FontFromBytes(utf8Family, "", font)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load pdf font: %w", err)
	}
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont(utf8Family, "", 13)
		pdf.CellFormat(0, 9, data.Title, "", 1, "L", false, 0, "")
		pdf.Ln(3)
	}

	width, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colWidth := (width - left - right) / float64(len(data.Headers))

	pdf.SetFont(utf8Family, "", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 7, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(utf8Family, "", 8)
	for _, row := range data.Rows {
		for _, value := range data.record(row) {
			pdf.CellFormat(colWidth, 6, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
