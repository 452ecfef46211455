package report

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

const (
	pdfMargin    = 30
	titleSize    = 18
	bodySize     = 10
	bodyLineSize = 13
)

// WritePDF renders an A4 report with a centered title and one numbered block
// per row.
func WritePDF(w io.Writer, accountName string, rows []model.MediaRow) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle("Media Report - "+accountName, true)
	pdf.AddPage()

	// Core fonts are cp1252; translate so captions with accents survive.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "", titleSize)
	pdf.CellFormat(0, titleSize+6, tr("Media Report - "+accountName), "", 1, "C", false, 0, "")
	pdf.Ln(bodyLineSize)

	pdf.SetFont("Helvetica", "", bodySize)
	for i, r := range rows {
		lines := []string{
			fmt.Sprintf("%d. ID: %s", i+1, r.ID),
			"   Caption: " + r.Caption,
			fmt.Sprintf("   Type: %s  |  Timestamp: %s", r.MediaType, r.Timestamp),
			fmt.Sprintf("   Likes: %d  Comments: %d  Impressions: %s", r.Likes, r.Comments, r.Impressions),
		}
		for _, line := range lines {
			pdf.MultiCell(0, bodyLineSize, tr(line), "", "L", false)
		}
		pdf.Ln(bodyLineSize / 2)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
