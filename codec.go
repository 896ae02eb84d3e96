package main

import (
	"encoding/json"
	"fmt"
)

// cellJSON is the persisted form of a cell: its type tag plus the fields of
// that type.
type cellJSON struct {
	Type     Kind       `json:"type"`
	Clues    []Subclue  `json:"clues,omitempty"`
	Letter   *string    `json:"letter,omitempty"`
	Look     Look       `json:"look,omitempty"`
	Style    ArrowStyle `json:"style,omitempty"`
	URL      *string    `json:"url,omitempty"`
	SpanRows int        `json:"spanRows,omitempty"`
	SpanCols int        `json:"spanCols,omitempty"`
}

type gridJSON struct {
	Rows int          `json:"rows"`
	Cols int          `json:"cols"`
	Grid [][]cellJSON `json:"grid"`
}

func encodeCell(c Cell) cellJSON {
	out := cellJSON{Type: c.Kind()}
	switch v := c.(type) {
	case Clue:
		out.Clues = v.Subclues
	case Solution:
		out.Letter = &v.Letter
	case Arrow:
		out.Look, out.Style = v.Look, v.Style
		out.SpanRows, out.SpanCols = v.SpanRows, v.SpanCols
	case Image:
		out.URL = &v.URL
		out.SpanRows, out.SpanCols = v.SpanRows, v.SpanCols
	}
	return out
}

func decodeCell(in cellJSON) (Cell, error) {
	k, err := ParseKind(string(in.Type))
	if err != nil {
		return nil, err
	}
	switch k {
	case KindClue:
		return Clue{Subclues: in.Clues}, nil
	case KindSolution:
		var letter string
		if in.Letter != nil {
			letter = *in.Letter
		}
		return Solution{Letter: letter}, nil
	case KindArrow:
		a := Arrow{Look: in.Look, Style: in.Style, SpanRows: max(in.SpanRows, 1), SpanCols: max(in.SpanCols, 1)}
		if a.Look == "" {
			a.Look = LookRight
		}
		if a.Style == "" {
			a.Style = StyleNormal
		}
		return a, nil
	case KindImage:
		var url string
		if in.URL != nil {
			url = *in.URL
		}
		return Image{URL: url, SpanRows: max(in.SpanRows, 1), SpanCols: max(in.SpanCols, 1)}, nil
	}
	return newCell(k), nil
}

// MarshalJSON encodes the grid as {"rows", "cols", "grid"}.
func (g *Grid) MarshalJSON() ([]byte, error) {
	out := gridJSON{Rows: g.Rows, Cols: g.Cols, Grid: make([][]cellJSON, g.Rows)}
	for r, row := range g.Cells {
		out.Grid[r] = make([]cellJSON, len(row))
		for c, cell := range row {
			out.Grid[r][c] = encodeCell(cell)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a grid written by MarshalJSON.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var in gridJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if err := checkDimensions(in.Rows, in.Cols); err != nil {
		return fmt.Errorf("grid %dx%d: %w", in.Rows, in.Cols, err)
	}
	if len(in.Grid) != in.Rows {
		return fmt.Errorf("grid has %d rows, want %d", len(in.Grid), in.Rows)
	}
	cells := make([][]Cell, in.Rows)
	for r, row := range in.Grid {
		if len(row) != in.Cols {
			return fmt.Errorf("grid row %d has %d cells, want %d", r, len(row), in.Cols)
		}
		cells[r] = make([]Cell, in.Cols)
		for c, cj := range row {
			cell, err := decodeCell(cj)
			if err != nil {
				return fmt.Errorf("cell %s: %w", Pos{Row: r, Col: c}, err)
			}
			cells[r][c] = cell
		}
	}
	*g = Grid{Rows: in.Rows, Cols: in.Cols, Cells: cells}
	return nil
}

// DecodeGrid parses a persisted grid document.
func DecodeGrid(data []byte) (*Grid, error) {
	var g Grid
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	return &g, nil
}
