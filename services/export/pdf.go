package exportsvc

import (
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/pkg/errors"

	"github.com/etda/school/core/report"
)

const (
	pageWidth  = 190.0 // A4 width minus the 10mm margins
	lineHeight = 7.0
	cellMargin = 1.0 // gofpdf default
)

type pdfExporter struct{}

var _ report.Exporter = (*pdfExporter)(nil)

func NewPDFExporter() report.Exporter { return pdfExporter{} }

func (pdfExporter) Format() string      { return "pdf" }
func (pdfExporter) ContentType() string { return "application/pdf" }

// Export lays the table out on A4 pages, columns sharing the page width evenly.
// The header row is repeated on every page.
func (pdfExporter) Export(w io.Writer, t report.Table) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	colWidth := pageWidth
	if len(t.Headers) > 0 {
		colWidth = pageWidth / float64(len(t.Headers))
	}
	headers := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range t.Headers {
			pdf.CellFormat(colWidth, lineHeight, tr(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			headers()
		}
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(pageWidth/2, 10, tr("Generated on "+t.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 0, "L", false, 0, "")
		pdf.CellFormat(pageWidth/2, 10, strconv.Itoa(pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(t.Title))
	pdf.Ln(14)
	headers()

	for _, row := range t.Rows {
		for _, val := range row {
			pdf.CellFormat(colWidth, lineHeight, tr(fit(pdf, val, colWidth)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(t.Rows) == 0 {
		pdf.CellFormat(pageWidth, lineHeight, "No data", "1", 1, "C", false, 0, "")
	}

	return errors.Wrap(pdf.Output(w), "writing pdf")
}

// fit truncates s so that it fits into a cell of the given width.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	const ellipsis = "..."
	max := width - 2*cellMargin
	if pdf.GetStringWidth(s) <= max {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+ellipsis) > max {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + ellipsis
}
