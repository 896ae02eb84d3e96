package main

import (
	"fmt"
	"io"
	"strings"
)

// Format is an export format.
type Format string

const (
	// FormatPDF is a table with one text per grid cell.
	FormatPDF Format = "pdf"
	// FormatJPEG is a picture of the grid.
	FormatJPEG Format = "jpeg"
	// FormatPNG is a picture of the grid.
	FormatPNG Format = "png"
)

// ParseFormat converts a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "pdf":
		return FormatPDF, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("unknown export format: %s", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatJPEG:
		return "image/jpeg"
	}
	return "image/png"
}

// Extension returns the recommended file extension.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// ExportOptions tunes an export.
type ExportOptions struct {
	// ShowSolutions draws solution letters on picture exports.
	ShowSolutions bool
	// CellSize is the side of a cell in pixels on picture exports.
	CellSize int
}

// Export writes the grid to w in format f.
func Export(w io.Writer, g *Grid, f Format, opts ExportOptions) error {
	switch f {
	case FormatPDF:
		return writePDF(w, g)
	case FormatJPEG, FormatPNG:
		return writeImage(w, g, f, opts)
	}
	return fmt.Errorf("unsupported export format: %s", f)
}

// CellText returns the text shown for a cell when it is copied or listed.
func CellText(c Cell) string {
	switch v := c.(type) {
	case Clue:
		texts := make([]string, len(v.Subclues))
		for i, sc := range v.Subclues {
			texts[i] = sc.Text
		}
		return strings.Join(texts, "\n")
	case Arrow:
		return v.Symbol()
	case Image:
		return "[Image]"
	}
	return ""
}
