package export

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/civiclab/reportd/internal/model"
)

// pdf layout constants, landscape A4 in millimeters.
const (
	pdfMargin    = 10.0
	pdfPageWidth = 297.0
	pdfRowHeight = 7.0
	pdfMaxCols   = 20
)

// WritePDF flattens the result onto columns and renders it as a tabular
// PDF document, one header row per page.
func WritePDF(w io.Writer, result *model.QueryResult, columns []string, title string, now time.Time) error {
	table, err := Flatten(result, columns)
	if err != nil {
		return err
	}
	if len(table.Header) > pdfMaxCols {
		return fmt.Errorf("too many columns for pdf layout: %d (max %d)", len(table.Header), pdfMaxCols)
	}

	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin+pdfRowHeight)

	colWidth := (pdfPageWidth - 2*pdfMargin) / float64(len(table.Header))

	header := func() {
		doc.SetFont("Helvetica", "B", 8)
		doc.SetFillColor(230, 230, 230)
		for _, name := range table.Header {
			doc.CellFormat(colWidth, pdfRowHeight, clipCell(doc, name, colWidth), "1", 0, "L", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Helvetica", "", 8)
	}

	doc.SetHeaderFunc(func() {
		doc.SetFont("Helvetica", "B", 12)
		doc.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 8)
		doc.CellFormat(0, 5, "Generated "+now.Format("January 2, 2006"), "", 1, "L", false, 0, "")
		doc.Ln(2)
		header()
	})

	doc.AddPage()
	for _, row := range table.Rows {
		for _, cell := range row {
			doc.CellFormat(colWidth, pdfRowHeight, clipCell(doc, cell, colWidth), "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// clipCell trims a value to fit its column, appending an ellipsis when
// it is cut.
func clipCell(doc *fpdf.Fpdf, s string, width float64) string {
	const pad = 2.0
	if doc.GetStringWidth(s) <= width-pad {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && doc.GetStringWidth(string(runes)+"...") > width-pad {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
