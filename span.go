package main

import (
	"encoding/base64"
	"slices"
	"strings"
)

// SaveArrow updates the selected arrow cell and re-stamps its footprint with
// the new span. The anchor never moves.
func (e *Editor) SaveArrow(look Look, style ArrowStyle, spanRows, spanCols int) error {
	if e.sel.Multi() {
		return ErrMultiSelected
	}
	old, ok := e.Selected().(Arrow)
	if !ok {
		return ErrNotArrow
	}
	if style != StyleNormal && style != StyleBold {
		return ErrInvalidStyle
	}
	if err := e.checkSpan(old.SpanRows, old.SpanCols, spanRows, spanCols); err != nil {
		return err
	}
	if !slices.Contains(AvailableLooks(spanRows, spanCols), look) {
		return ErrInvalidLook
	}
	e.respan(old.SpanRows, old.SpanCols, Arrow{Look: look, Style: style, SpanRows: spanRows, SpanCols: spanCols})
	return nil
}

// SaveImage updates the selected image cell and re-stamps its footprint with
// the new span. url must be empty or a base64 image data URI.
func (e *Editor) SaveImage(url string, spanRows, spanCols int) error {
	if e.sel.Multi() {
		return ErrMultiSelected
	}
	old, ok := e.Selected().(Image)
	if !ok {
		return ErrNotImage
	}
	if url != "" && !isImageDataURI(url) {
		return ErrInvalidImageURL
	}
	if err := e.checkSpan(old.SpanRows, old.SpanCols, spanRows, spanCols); err != nil {
		return err
	}
	e.respan(old.SpanRows, old.SpanCols, Image{URL: url, SpanRows: spanRows, SpanCols: spanCols})
	return nil
}

// checkSpan reports whether a footprint of spanRows x spanCols can replace the
// current one at the active cell: it must fit in the grid and cover only
// unset cells or cells of the current footprint.
func (e *Editor) checkSpan(oldRows, oldCols, spanRows, spanCols int) error {
	if spanRows < 1 || spanCols < 1 {
		return ErrInvalidSpan
	}
	a := e.sel.Active
	if !e.grid.InBounds(a.Row+spanRows-1, a.Col+spanCols-1) {
		return ErrSpanOutOfBounds
	}
	for i := 0; i < spanRows; i++ {
		for j := 0; j < spanCols; j++ {
			if i == 0 && j == 0 {
				continue
			}
			switch e.grid.At(a.Row+i, a.Col+j).Kind() {
			case KindUnset:
			case KindMerged:
				if i >= oldRows || j >= oldCols {
					return ErrFootprintOccupied
				}
			default:
				return ErrFootprintOccupied
			}
		}
	}
	return nil
}

func (e *Editor) respan(oldRows, oldCols int, anchor Cell) {
	a := e.sel.Active
	e.grid.releaseFootprint(a.Row, a.Col, max(oldRows, 1), max(oldCols, 1))
	e.grid.set(a.Row, a.Col, anchor)
	rows, cols, _ := footprint(anchor)
	e.grid.stampFootprint(a.Row, a.Col, rows, cols)
}

// DataURI encodes image bytes as a data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func isImageDataURI(s string) bool {
	_, _, err := decodeDataURI(s)
	return err == nil
}

// decodeDataURI returns the MIME type and payload of a base64 image data URI.
func decodeDataURI(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidImageURL
	}
	mimeType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok || !strings.HasPrefix(mimeType, "image/") {
		return "", nil, ErrInvalidImageURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidImageURL
	}
	return mimeType, data, nil
}
