package main

import (
	"fmt"
	"strconv"
)

// MaxDimension bounds the number of rows and columns of a grid.
const MaxDimension = 100

// Pos addresses a cell, 0-indexed.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// String returns the display address of the cell, e.g. "A1" for (0,0).
func (p Pos) String() string {
	return ColumnLabel(p.Col) + strconv.Itoa(p.Row+1)
}

// ColumnLabel returns the letter label of a 0-indexed column: A..Z, then AA, AB...
func ColumnLabel(col int) string {
	var b []byte
	for col >= 0 {
		b = append([]byte{byte('A' + col%26)}, b...)
		col = col/26 - 1
	}
	return string(b)
}

// Grid is a rows x cols array of cells in row-major order.
type Grid struct {
	Rows  int
	Cols  int
	Cells [][]Cell
}

// NewGrid creates a grid with every cell unset.
func NewGrid(rows, cols int) *Grid {
	cells := make([][]Cell, rows)
	for r := range cells {
		cells[r] = make([]Cell, cols)
		for c := range cells[r] {
			cells[r][c] = Unset{}
		}
	}
	return &Grid{Rows: rows, Cols: cols, Cells: cells}
}

func checkDimensions(rows, cols int) error {
	if rows < 1 || cols < 1 || rows > MaxDimension || cols > MaxDimension {
		return &EditError{msg: fmt.Sprintf("Grid size must be between 1 and %d rows and columns.", MaxDimension)}
	}
	return nil
}

// InBounds reports whether (row, col) lies inside the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// At returns the cell at (row, col). It panics when out of bounds.
func (g *Grid) At(row, col int) Cell {
	return g.Cells[row][col]
}

func (g *Grid) set(row, col int, c Cell) {
	g.Cells[row][col] = c
}

// Resized returns a new grid of the given size holding the cells of g that
// fall inside it. New cells are unset. Footprints that now run off the grid
// are kept as they are.
func (g *Grid) Resized(rows, cols int) *Grid {
	ng := NewGrid(rows, cols)
	for r := 0; r < min(rows, g.Rows); r++ {
		for c := 0; c < min(cols, g.Cols); c++ {
			ng.Cells[r][c] = cloneCell(g.Cells[r][c])
		}
	}
	return ng
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	return g.Resized(g.Rows, g.Cols)
}

// releaseFootprint reverts the cells covered by the footprint anchored at
// (row, col) to unset, leaving the anchor itself alone. Off-grid cells are
// skipped.
func (g *Grid) releaseFootprint(row, col, spanRows, spanCols int) {
	for i := 0; i < spanRows; i++ {
		for j := 0; j < spanCols; j++ {
			if i == 0 && j == 0 {
				continue
			}
			if g.InBounds(row+i, col+j) {
				g.set(row+i, col+j, Unset{})
			}
		}
	}
}

// stampFootprint marks the cells covered by the footprint anchored at
// (row, col) as merged, leaving the anchor itself alone.
func (g *Grid) stampFootprint(row, col, spanRows, spanCols int) {
	for i := 0; i < spanRows; i++ {
		for j := 0; j < spanCols; j++ {
			if i == 0 && j == 0 {
				continue
			}
			if g.InBounds(row+i, col+j) {
				g.set(row+i, col+j, Merged{})
			}
		}
	}
}
