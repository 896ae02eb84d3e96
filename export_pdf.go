package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	pdfFont       = "goregular"
	pdfFontSize   = 8
	pdfLineHeight = 3.5
	pdfPadding    = 0.5

	defaultPDFLineWidth = 0.2
)

// pdfCellText is the text written in a table cell. Arrows are drawn instead:
// the embedded font has no glyph for most of them.
func pdfCellText(c Cell) string {
	if _, ok := c.(Arrow); ok {
		return ""
	}
	return CellText(c)
}

// writePDF renders the grid as an A4 table, one text per cell.
func writePDF(w io.Writer, g *Grid) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(pdfFont, "", goregular.TTF)
	pdf.SetFont(pdfFont, "", pdfFontSize)
	pdf.SetDrawColor(0, 0, 0)
	pdf.AddPage()

	left, top, right, bottom := pdf.GetMargins()
	pageW, pageH := pdf.GetPageSize()
	cellW := (pageW - left - right) / float64(g.Cols)
	textW := cellW - 2*pdfPadding

	y := top
	for _, row := range g.Cells {
		lines := make([][]string, len(row))
		n := 1
		for c, cell := range row {
			for _, part := range strings.Split(pdfCellText(cell), "\n") {
				if part == "" {
					continue
				}
				lines[c] = append(lines[c], pdf.SplitText(part, textW)...)
			}
			n = max(n, len(lines[c]))
		}
		h := float64(n)*pdfLineHeight + 2*pdfPadding

		if y+h > pageH-bottom {
			pdf.AddPage()
			y = top
		}
		for c, cell := range row {
			x := left + float64(c)*cellW
			pdf.Rect(x, y, cellW, h, "D")
			if a, ok := cell.(Arrow); ok {
				side := min(cellW, h) - 2*pdfPadding
				pdfArrow(pdf, a, x+(cellW-side)/2, y+(h-side)/2, side, side)
			}
			for i, line := range lines[c] {
				pdf.SetXY(x+pdfPadding, y+pdfPadding+float64(i)*pdfLineHeight)
				pdf.CellFormat(textW, pdfLineHeight, line, "", 0, "L", false, 0, "")
			}
		}
		y += h
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// pdfArrow strokes the arrow path inside the box and fills its head.
func pdfArrow(pdf *fpdf.Fpdf, a Arrow, x, y, w, h float64) {
	path, ok := arrowPaths[a.Look]
	if !ok {
		path = arrowPaths[LookRight]
	}
	lw := defaultPDFLineWidth
	if a.Style == StyleBold {
		lw = 0.45
	}
	pt := func(p [2]float64) (float64, float64) { return x + p[0]*w, y + p[1]*h }

	pdf.SetLineWidth(lw)
	defer pdf.SetLineWidth(defaultPDFLineWidth)
	for i := 1; i < len(path); i++ {
		x1, y1 := pt(path[i-1])
		x2, y2 := pt(path[i])
		pdf.Line(x1, y1, x2, y2)
	}

	fx, fy := pt(path[len(path)-2])
	tx, ty := pt(path[len(path)-1])
	dx, dy := tx-fx, ty-fy
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dx, dy = dx/length, dy/length
	size := min(w, h)/5 + 2*lw
	pdf.SetFillColor(0, 0, 0)
	pdf.Polygon([]fpdf.PointType{
		{X: tx + dx*size/2, Y: ty + dy*size/2},
		{X: tx - dx*size/2 + dy*size/2, Y: ty - dy*size/2 - dx*size/2},
		{X: tx - dx*size/2 - dy*size/2, Y: ty - dy*size/2 + dx*size/2},
	}, "F")
}
