package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Section is one block of a report: a heading with optional facts and table.
type Section struct {
	Heading      string
	Facts        [][2]string
	Table        *Dataset
	ColumnWidths []float64
	EmptyText    string
}

// Report describes a multi-section PDF document.
type Report struct {
	Title    string
	Subtitle string
	Sections []Section
	Footer   string
}

// PDFExporter renders reports into A4 PDF documents.
type PDFExporter struct {
	orientation string
}

// NewPDFExporter constructs a portrait PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{orientation: "P"}
}

// NewLandscapePDFExporter constructs an exporter for wide tables.
func NewLandscapePDFExporter() *PDFExporter {
	return &PDFExporter{orientation: "L"}
}

// Render creates the PDF document for the report.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	pdf := gofpdf.New(e.orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if report.Footer != "" {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-12)
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s - page %d", report.Footer, pdf.PageNo())), "", 0, "C", false, 0, "")
		})
	}
	pdf.AddPage()

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(report.Title)), "", 1, "C", false, 0, "")
	}
	if report.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(report.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageWidth - left - right

	for _, section := range report.Sections {
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 12)
			pdf.CellFormat(0, 8, tr(section.Heading), "B", 1, "", false, 0, "")
			pdf.Ln(2)
		}
		for _, fact := range section.Facts {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(55, 6, tr(fact[0]), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, 6, tr(fact[1]), "", 1, "", false, 0, "")
		}
		if section.Table != nil {
			if err := writeTable(pdf, tr, *section.Table, columnWidths(section, usable), section.EmptyText); err != nil {
				return nil, err
			}
		}
		pdf.Ln(5)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(section Section, usable float64) []float64 {
	n := len(section.Table.Headers)
	if len(section.ColumnWidths) == n {
		return section.ColumnWidths
	}
	widths := make([]float64, n)
	for i := range widths {
		widths[i] = usable / float64(n)
	}
	return widths
}

func writeTable(pdf *gofpdf.Fpdf, tr func(string) string, data Dataset, widths []float64, emptyText string) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("pdf table requires at least one header")
	}
	header := func() {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()
	if len(data.Rows) == 0 && emptyText != "" {
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(sum(widths), 7, tr(emptyText), "1", 1, "C", false, 0, "")
		return nil
	}
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		if pdf.GetY()+7 > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 6, tr(truncate(row[h], widths[i])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return nil
}

// truncate keeps a cell on a single line at 8pt Arial.
func truncate(value string, width float64) string {
	limit := int(width / 1.6)
	runes := []rune(value)
	if limit < 4 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
