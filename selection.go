package main

// Selection is the editor's cursor. A plain selection has Anchor == Active and
// no members; a range selection lists every non-merged cell of the rectangle
// spanned by Anchor and Active.
type Selection struct {
	Anchor  Pos   `json:"anchor"`
	Active  Pos   `json:"active"`
	Members []Pos `json:"members,omitempty"`
}

// Multi reports whether more than one cell is selected.
func (s Selection) Multi() bool { return len(s.Members) > 1 }

// bounds returns the bounding rectangle of the members.
func (s Selection) bounds() (top, left, bottom, right int) {
	top, left = s.Members[0].Row, s.Members[0].Col
	bottom, right = top, left
	for _, p := range s.Members[1:] {
		top, left = min(top, p.Row), min(left, p.Col)
		bottom, right = max(bottom, p.Row), max(right, p.Col)
	}
	return top, left, bottom, right
}

// MoveDirection is an arrow-key direction.
type MoveDirection string

const (
	MoveUp    MoveDirection = "up"
	MoveDown  MoveDirection = "down"
	MoveLeft  MoveDirection = "left"
	MoveRight MoveDirection = "right"
)

func (d MoveDirection) delta() (dr, dc int, err error) {
	switch d {
	case MoveUp:
		return -1, 0, nil
	case MoveDown:
		return 1, 0, nil
	case MoveLeft:
		return 0, -1, nil
	case MoveRight:
		return 0, 1, nil
	}
	return 0, 0, ErrInvalidMove
}

func (e *Editor) selectable(row, col int) bool {
	return e.grid.InBounds(row, col) && e.grid.At(row, col).Kind() != KindMerged
}

// Select makes (row, col) the single selected cell and resets the anchor to it.
func (e *Editor) Select(row, col int) error {
	if !e.selectable(row, col) {
		return ErrNotSelectable
	}
	p := Pos{Row: row, Col: col}
	e.sel = Selection{Anchor: p, Active: p}
	return nil
}

// Extend moves the active corner to (row, col), keeping the anchor, and
// recomputes the selected rectangle.
func (e *Editor) Extend(row, col int) error {
	if !e.selectable(row, col) {
		return ErrNotSelectable
	}
	e.sel.Active = Pos{Row: row, Col: col}
	e.sel.Members = e.rangeMembers(e.sel.Anchor, e.sel.Active)
	return nil
}

func (e *Editor) rangeMembers(a, b Pos) []Pos {
	var members []Pos
	for r := min(a.Row, b.Row); r <= max(a.Row, b.Row); r++ {
		for c := min(a.Col, b.Col); c <= max(a.Col, b.Col); c++ {
			if e.grid.At(r, c).Kind() != KindMerged {
				members = append(members, Pos{Row: r, Col: c})
			}
		}
	}
	return members
}

// Move steps the active cell one selectable cell in direction d, jumping over
// merged cells. At the grid edge the cursor stays put. With extend set the
// anchor is kept and the range grows; otherwise the selection collapses.
func (e *Editor) Move(d MoveDirection, extend bool) error {
	dr, dc, err := d.delta()
	if err != nil {
		return err
	}
	r, c := e.sel.Active.Row+dr, e.sel.Active.Col+dc
	for e.grid.InBounds(r, c) && !e.selectable(r, c) {
		r, c = r+dr, c+dc
	}
	if !e.grid.InBounds(r, c) {
		return nil
	}
	if extend {
		return e.Extend(r, c)
	}
	return e.Select(r, c)
}

// nearestSelectable returns p if it can be selected, otherwise the closest
// selectable cell before it in row-major order.
func (e *Editor) nearestSelectable(p Pos) Pos {
	for i := p.Row*e.grid.Cols + p.Col; i >= 0; i-- {
		r, c := i/e.grid.Cols, i%e.grid.Cols
		if e.selectable(r, c) {
			return Pos{Row: r, Col: c}
		}
	}
	return Pos{}
}
