package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Performance symbols used in the exercise matrix.
const (
	SymbolPerformedWell    = "✓"
	SymbolNeedsImprovement = "⍻"
	SymbolPerformedBadly   = "✗"
)

// MatrixColumn is one exercise column.
type MatrixColumn struct {
	Number string
	Name   string
}

// MatrixRow is one flight line of the matrix.
type MatrixRow struct {
	FlightNumber int
	Date         string
	Solo         bool
	Cells        []string
}

// MatrixPage is a single printed page of one section.
type MatrixPage struct {
	Section    string
	Columns    []MatrixColumn
	Rows       []MatrixRow
	PageNumber int
	TotalPages int
}

// MatrixDocument is the full exercise matrix for one student.
type MatrixDocument struct {
	Title     string
	Student   string
	Generated string
	Pages     []MatrixPage
}

// MatrixRenderer draws exercise matrices with gofpdf.
type MatrixRenderer struct {
	fontPath string
}

// NewMatrixRenderer returns a renderer. When fontPath points at a UTF-8 TTF font
// the symbols are printed as text, otherwise they are drawn with ZapfDingbats.
func NewMatrixRenderer(fontPath string) *MatrixRenderer {
	return &MatrixRenderer{fontPath: fontPath}
}

const (
	matrixFlightColWidth = 12.0
	matrixDateColWidth   = 22.0
	matrixMinCellWidth   = 5.0
	matrixMaxCellWidth   = 14.0
	matrixRowHeight      = 6.0
)

// Render produces the PDF bytes for the document.
func (r *MatrixRenderer) Render(doc MatrixDocument) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	symbolFont := ""
	if r.fontPath != "" {
		pdf.AddUTF8Font("matrix", "", r.fontPath)
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("load matrix font: %w", err)
		}
		symbolFont = "matrix"
	}

	if len(doc.Pages) == 0 {
		pdf.AddPage()
		r.writeHeading(pdf, tr, doc, MatrixPage{})
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 10, "No flights recorded.", "", 1, "C", false, 0, "")
	}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageWidth - left - right

	for _, page := range doc.Pages {
		pdf.AddPage()
		r.writeHeading(pdf, tr, doc, page)

		cellWidth := matrixMaxCellWidth
		if n := len(page.Columns); n > 0 {
			cellWidth = (usable - matrixFlightColWidth - matrixDateColWidth) / float64(n)
			if cellWidth > matrixMaxCellWidth {
				cellWidth = matrixMaxCellWidth
			}
			if cellWidth < matrixMinCellWidth {
				cellWidth = matrixMinCellWidth
			}
		}

		pdf.SetFont("Arial", "B", 7)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(matrixFlightColWidth, matrixRowHeight, "#", "1", 0, "C", true, 0, "")
		pdf.CellFormat(matrixDateColWidth, matrixRowHeight, "Date", "1", 0, "C", true, 0, "")
		for _, col := range page.Columns {
			pdf.CellFormat(cellWidth, matrixRowHeight, tr(col.Number), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		for _, row := range page.Rows {
			pdf.SetFont("Arial", "", 7)
			label := fmt.Sprintf("%d", row.FlightNumber)
			if row.Solo {
				label += " S"
			}
			pdf.CellFormat(matrixFlightColWidth, matrixRowHeight, label, "1", 0, "C", false, 0, "")
			pdf.CellFormat(matrixDateColWidth, matrixRowHeight, row.Date, "1", 0, "C", false, 0, "")
			for i := range page.Columns {
				symbol := ""
				if i < len(row.Cells) {
					symbol = row.Cells[i]
				}
				r.writeSymbolCell(pdf, symbolFont, cellWidth, symbol)
			}
			pdf.Ln(-1)
		}

		r.writeLegend(pdf, tr, page.Columns)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render matrix pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *MatrixRenderer) writeHeading(pdf *gofpdf.Fpdf, tr func(string) string, doc MatrixDocument, page MatrixPage) {
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	line := doc.Student
	if doc.Generated != "" {
		line += "   Generated " + doc.Generated
	}
	pdf.CellFormat(0, 5, tr(line), "", 1, "C", false, 0, "")
	if page.Section != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s (page %d of %d)", page.Section, page.PageNumber, page.TotalPages)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(1)
}

func (r *MatrixRenderer) writeSymbolCell(pdf *gofpdf.Fpdf, symbolFont string, width float64, symbol string) {
	if symbolFont != "" {
		pdf.SetFont(symbolFont, "", 9)
		pdf.CellFormat(width, matrixRowHeight, symbol, "1", 0, "C", false, 0, "")
		return
	}

	x, y := pdf.GetXY()
	glyph := ""
	switch symbol {
	case SymbolPerformedWell, SymbolNeedsImprovement:
		glyph = "3"
	case SymbolPerformedBadly:
		glyph = "7"
	}
	pdf.SetFont("ZapfDingbats", "", 8)
	pdf.CellFormat(width, matrixRowHeight, glyph, "1", 0, "C", false, 0, "")
	if symbol == SymbolNeedsImprovement {
		cx := x + width/2
		cy := y + matrixRowHeight/2
		pdf.SetLineWidth(0.3)
		pdf.Line(cx-1.8, cy+1.8, cx+1.8, cy-1.8)
		pdf.SetLineWidth(0.2)
	}
}

func (r *MatrixRenderer) writeLegend(pdf *gofpdf.Fpdf, tr func(string) string, columns []MatrixColumn) {
	if len(columns) == 0 {
		return
	}
	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 7)
	pdf.CellFormat(0, 4, "Exercises", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 6)
	_, pageHeight := pdf.GetPageSize()
	colWidth := 90.0
	startX, _ := pdf.GetXY()
	for i, col := range columns {
		if pdf.GetY() > pageHeight-14 {
			break
		}
		pdf.SetX(startX + float64(i%3)*colWidth)
		ln := 0
		if i%3 == 2 || i == len(columns)-1 {
			ln = 1
		}
		pdf.CellFormat(colWidth, 3.5, tr(truncate(col.Number+"  "+col.Name, colWidth*1.4)), "", ln, "", false, 0, "")
	}
	pdf.Ln(2)
	pdf.SetFont("Arial", "I", 6)
	pdf.CellFormat(0, 4, "Check: performed well. Struck check: needs improvement. Cross: performed badly. Blank: not performed.", "", 1, "", false, 0, "")
}
