package main

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Editor is the state of one editing session: the grid and the selection.
// Every edit either succeeds completely or returns an *EditError and leaves
// the grid untouched. An Editor is not safe for concurrent use.
type Editor struct {
	grid *Grid
	sel  Selection
}

// NewEditor returns an editor on g with the top-left cell selected.
func NewEditor(g *Grid) *Editor {
	e := &Editor{}
	e.Load(g)
	return e
}

// Grid returns the grid being edited.
func (e *Editor) Grid() *Grid { return e.grid }

// Selection returns the current selection.
func (e *Editor) Selection() Selection { return e.sel }

// Selected returns the active cell.
func (e *Editor) Selected() Cell {
	return e.grid.At(e.sel.Active.Row, e.sel.Active.Col)
}

// Load replaces the grid wholesale and selects the top-left cell.
func (e *Editor) Load(g *Grid) {
	e.grid = g
	p := e.nearestSelectable(Pos{})
	e.sel = Selection{Anchor: p, Active: p}
}

// Resize replaces the grid with one of the new size. Cells inside both sizes
// are kept, new cells are unset. The selection is clamped into the grid and a
// range selection collapses.
func (e *Editor) Resize(rows, cols int) error {
	if err := checkDimensions(rows, cols); err != nil {
		return err
	}
	e.grid = e.grid.Resized(rows, cols)
	p := Pos{Row: min(e.sel.Active.Row, rows-1), Col: min(e.sel.Active.Col, cols-1)}
	p = e.nearestSelectable(p)
	e.sel = Selection{Anchor: p, Active: p}
	return nil
}

// ApplyType changes the type of the selected cells to k.
//
// With a single cell selected the cell is replaced by a fresh cell of kind k
// carrying its defaults. With a range selected only unset, image and arrow are
// accepted: the bounding rectangle of the range is cleared and, for images and
// arrows, becomes the footprint of a new anchor at its top-left corner.
func (e *Editor) ApplyType(k Kind) error {
	if _, err := ParseKind(string(k)); err != nil || k == KindMerged {
		return ErrInvalidType
	}
	if e.sel.Multi() {
		return e.applyRange(k)
	}

	p := e.sel.Active
	if rows, cols, ok := footprint(e.grid.At(p.Row, p.Col)); ok {
		e.grid.releaseFootprint(p.Row, p.Col, rows, cols)
	}
	e.grid.set(p.Row, p.Col, newCell(k))
	return nil
}

func (e *Editor) applyRange(k Kind) error {
	if k != KindUnset && k != KindImage && k != KindArrow {
		return ErrMultiSelectType
	}
	top, left, bottom, right := e.sel.bounds()
	spanRows, spanCols := bottom-top+1, right-left+1

	for r := top; r <= bottom; r++ {
		for c := left; c <= right; c++ {
			if e.grid.At(r, c).Kind() == KindMerged {
				return ErrSelectionMerged
			}
		}
	}

	var anchor Cell
	switch k {
	case KindImage:
		anchor = Image{SpanRows: spanRows, SpanCols: spanCols}
	case KindArrow:
		switch {
		case spanRows == 1:
			anchor = Arrow{Look: LookRight, Style: StyleNormal, SpanRows: 1, SpanCols: spanCols}
		case spanCols == 1:
			anchor = Arrow{Look: LookDown, Style: StyleNormal, SpanRows: spanRows, SpanCols: 1}
		default:
			return ErrArrowShape
		}
	}

	// Old footprints are released in full so none is left hanging outside
	// the rectangle.
	for r := top; r <= bottom; r++ {
		for c := left; c <= right; c++ {
			if fr, fc, ok := footprint(e.grid.At(r, c)); ok {
				e.grid.releaseFootprint(r, c, fr, fc)
			}
			e.grid.set(r, c, Unset{})
		}
	}

	if anchor != nil {
		e.grid.set(top, left, anchor)
		e.grid.stampFootprint(top, left, spanRows, spanCols)
	}
	p := Pos{Row: top, Col: left}
	e.sel = Selection{Anchor: p, Active: p}
	return nil
}

// SetLetter sets the letter of the selected solution cell. The letter is
// stored upper-cased; an empty letter clears the cell.
func (e *Editor) SetLetter(letter string) error {
	if e.sel.Multi() {
		return ErrMultiSelected
	}
	if _, ok := e.Selected().(Solution); !ok {
		return ErrNotSolution
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter != "" {
		r, _ := utf8.DecodeRuneInString(letter)
		if utf8.RuneCountInString(letter) != 1 || !unicode.IsLetter(r) {
			return ErrInvalidLetter
		}
	}
	e.grid.set(e.sel.Active.Row, e.sel.Active.Col, Solution{Letter: letter})
	return nil
}
