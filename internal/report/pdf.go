package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/router-for-me/strepsil/internal/cost"
	"github.com/router-for-me/strepsil/internal/models"
)

// LinesPerPage is the number of call lines printed before a page break.
const LinesPerPage = 20

// DefaultTitle heads generated PDF reports.
const DefaultTitle = "Strepsil AI Usage Report"

// Document is the input to WritePDF.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Summary     Summary
	Records     []models.AICall
}

// WritePDF renders doc as a paginated PDF.
func WritePDF(w io.Writer, doc Document) error {
	pdf := buildPDF(doc)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: write pdf: %w", err)
	}
	return nil
}

func buildPDF(doc Document) *fpdf.Fpdf {
	title := doc.Title
	if title == "" {
		title = DefaultTitle
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("strepsil", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	line := func(size float64, style, text, align string) {
		pdf.SetFont("Helvetica", style, size)
		pdf.CellFormat(0, size*0.6, tr(text), "", 1, align, false, 0, "")
	}

	pdf.AddPage()
	line(20, "B", title, "C")
	line(12, "", "Generated on: "+doc.GeneratedAt.UTC().Format(rowDateLayout), "C")
	pdf.Ln(6)

	s := doc.Summary
	line(16, "BU", "Summary", "L")
	line(12, "", fmt.Sprintf("Total Calls: %d", s.TotalCalls), "L")
	line(12, "", "Total Cost: $"+cost.UnitCost(s.TotalCost), "L")
	line(12, "", fmt.Sprintf("Total Tokens: %d", s.TotalTokens), "L")
	line(12, "", fmt.Sprintf("Average Latency: %dms", s.AverageLatency), "L")
	line(12, "", fmt.Sprintf("Date Range: %s to %s", s.DateRange.Start, s.DateRange.End), "L")
	pdf.Ln(6)

	line(16, "BU", "Detailed Calls", "L")
	for i := range doc.Records {
		if i > 0 && i%LinesPerPage == 0 {
			pdf.AddPage()
		}
		row := NewRow(&doc.Records[i])
		line(10, "", fmt.Sprintf("%s | %s/%s | %s | $%s | %s",
			row.Date, row.Provider, row.Model, row.Endpoint,
			cost.UnitCost(cost.FromFloat(row.Cost)), row.Status), "L")
	}
	return pdf
}
