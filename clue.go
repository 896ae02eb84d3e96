package main

import (
	"strings"
	"unicode"
)

// MaxSubclues is the number of subclues a clue cell can hold.
const MaxSubclues = 3

// Target is a letter a committed subclue writes into the grid.
type Target struct {
	Row    int
	Col    int
	Letter string
}

// SaveClue validates the subclues against the grid and commits them to the
// selected clue cell. Each subclue's solution is written as solution cells
// starting next to the clue in its direction. Nothing is written unless every
// subclue fits.
func (e *Editor) SaveClue(subclues []Subclue) error {
	if e.sel.Multi() {
		return ErrMultiSelected
	}
	if _, ok := e.Selected().(Clue); !ok {
		return ErrNotClue
	}
	if len(subclues) < 1 || len(subclues) > MaxSubclues {
		return ErrClueCount
	}

	drafts := make([]Subclue, len(subclues))
	for i, sc := range subclues {
		sc.Solution = strings.ToUpper(sc.Solution)
		if sc.Text == "" || !sc.Direction.valid() || sc.Solution == "" {
			return ErrClueIncomplete
		}
		if strings.IndexFunc(sc.Solution, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
			return ErrInvalidSolution
		}
		drafts[i] = sc
	}

	var targets []Target
	pending := make(map[Pos]string)
	for _, sc := range drafts {
		ts, ok := e.fit(e.sel.Active, sc)
		if !ok {
			return ErrClueDoesNotFit
		}
		for _, t := range ts {
			p := Pos{Row: t.Row, Col: t.Col}
			if prev, seen := pending[p]; seen && prev != t.Letter {
				return ErrClueDoesNotFit
			}
			pending[p] = t.Letter
		}
		targets = append(targets, ts...)
	}

	for _, t := range targets {
		e.grid.set(t.Row, t.Col, Solution{Letter: t.Letter})
	}
	e.grid.set(e.sel.Active.Row, e.sel.Active.Col, Clue{Subclues: drafts})
	return nil
}

// fit walks the cells a subclue's solution would occupy, starting one cell
// after the clue at from. It stops at the first cell that is off the grid,
// not unset or solution, or holds a different letter.
func (e *Editor) fit(from Pos, sc Subclue) ([]Target, bool) {
	dr, dc := 0, 1
	if sc.Direction == Down {
		dr, dc = 1, 0
	}
	letters := []rune(sc.Solution)
	targets := make([]Target, 0, len(letters))
	r, c := from.Row+dr, from.Col+dc
	for _, l := range letters {
		if !e.grid.InBounds(r, c) {
			return nil, false
		}
		letter := string(l)
		switch cell := e.grid.At(r, c).(type) {
		case Unset:
		case Solution:
			if cell.Letter != "" && cell.Letter != letter {
				return nil, false
			}
		default:
			return nil, false
		}
		targets = append(targets, Target{Row: r, Col: c, Letter: letter})
		r, c = r+dr, c+dc
	}
	return targets, true
}

// ResizeSubclues sets the number of subclues on the selected clue cell,
// appending empty across subclues or dropping trailing ones.
func (e *Editor) ResizeSubclues(n int) error {
	clue, err := e.selectedClue()
	if err != nil {
		return err
	}
	if n < 1 || n > MaxSubclues {
		return ErrClueCount
	}
	subs := make([]Subclue, n)
	copy(subs, clue.Subclues)
	for i := len(clue.Subclues); i < n; i++ {
		subs[i] = Subclue{Direction: Across}
	}
	e.grid.set(e.sel.Active.Row, e.sel.Active.Col, Clue{Subclues: subs})
	return nil
}

// SetSubclueDirection changes the direction of subclue i on the selected
// clue cell without committing its solution.
func (e *Editor) SetSubclueDirection(i int, d Direction) error {
	clue, err := e.selectedClue()
	if err != nil {
		return err
	}
	if !d.valid() {
		return ErrInvalidDirection
	}
	if i < 0 || i >= len(clue.Subclues) {
		return ErrSubclueIndex
	}
	clue = cloneCell(clue).(Clue)
	clue.Subclues[i].Direction = d
	e.grid.set(e.sel.Active.Row, e.sel.Active.Col, clue)
	return nil
}

func (e *Editor) selectedClue() (Clue, error) {
	if e.sel.Multi() {
		return Clue{}, ErrMultiSelected
	}
	clue, ok := e.Selected().(Clue)
	if !ok {
		return Clue{}, ErrNotClue
	}
	return clue, nil
}
