package main

import "fmt"

// Kind identifies the type of a grid cell. The values are the persisted type tags.
type Kind string

const (
	KindUnset    Kind = "not_set"
	KindBlocked  Kind = "blocked"
	KindClue     Kind = "clue"
	KindSolution Kind = "solution"
	KindArrow    Kind = "arrow"
	KindImage    Kind = "image"
	KindMerged   Kind = "merged"
)

// ParseKind converts a type tag to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindUnset, KindBlocked, KindClue, KindSolution, KindArrow, KindImage, KindMerged:
		return k, nil
	}
	return "", fmt.Errorf("unknown cell type %q", s)
}

// Direction is the way a subclue's answer runs from its clue cell.
type Direction string

const (
	Across Direction = "across"
	Down   Direction = "down"
)

func (d Direction) valid() bool { return d == Across || d == Down }

// Look is the glyph drawn for an arrow cell.
type Look string

const (
	LookRight     Look = "right"
	LookDown      Look = "down"
	LookRightDown Look = "right-down"
	LookDownRight Look = "down-right"
	LookLeftDown  Look = "left-down"
	LookUpRight   Look = "up-right"
)

// ArrowStyle is the stroke weight of an arrow glyph.
type ArrowStyle string

const (
	StyleNormal ArrowStyle = "normal"
	StyleBold   ArrowStyle = "bold"
)

var arrowSymbols = map[ArrowStyle]map[Look]string{
	StyleNormal: {
		LookRight:     "→",
		LookDown:      "↓",
		LookRightDown: "↴",
		LookDownRight: "↳",
		LookLeftDown:  "↲",
		LookUpRight:   "↱",
	},
	StyleBold: {
		LookRight:     "➜",
		LookDown:      "⬇",
		LookRightDown: "➥",
		LookDownRight: "➦",
		LookLeftDown:  "➧",
		LookUpRight:   "➨",
	},
}

var (
	horizontalLooks = []Look{LookRight, LookRightDown, LookLeftDown}
	verticalLooks   = []Look{LookDown, LookUpRight, LookDownRight}
	allLooks        = []Look{LookRight, LookRightDown, LookLeftDown, LookDown, LookUpRight, LookDownRight}
)

// AvailableLooks returns the arrow looks offered for a footprint of the given shape.
func AvailableLooks(spanRows, spanCols int) []Look {
	switch {
	case spanRows == 1 && spanCols > 1:
		return horizontalLooks
	case spanCols == 1 && spanRows > 1:
		return verticalLooks
	}
	return allLooks
}

// Cell is one square of the grid. Its dynamic type is one of Unset, Blocked,
// Clue, Solution, Arrow, Image or Merged.
type Cell interface {
	Kind() Kind
	isCell()
}

// Unset is a cell with no type assigned yet.
type Unset struct{}

// Blocked is an impassable cell.
type Blocked struct{}

// Subclue is one clue entry of a clue cell.
type Subclue struct {
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`
	Solution  string    `json:"solution"`
}

// Clue holds between one and three subclues.
type Clue struct {
	Subclues []Subclue
}

// Solution is a letter cell. Letter is empty or a single upper-case letter.
type Solution struct {
	Letter string
}

// Arrow anchors a footprint of SpanRows x SpanCols cells.
type Arrow struct {
	Look     Look
	Style    ArrowStyle
	SpanRows int
	SpanCols int
}

// Image anchors a footprint showing the picture in URL, a data URI.
type Image struct {
	URL      string
	SpanRows int
	SpanCols int
}

// Merged is a cell covered by a neighbouring arrow or image footprint.
type Merged struct{}

func (Unset) Kind() Kind    { return KindUnset }
func (Blocked) Kind() Kind  { return KindBlocked }
func (Clue) Kind() Kind     { return KindClue }
func (Solution) Kind() Kind { return KindSolution }
func (Arrow) Kind() Kind    { return KindArrow }
func (Image) Kind() Kind    { return KindImage }
func (Merged) Kind() Kind   { return KindMerged }

func (Unset) isCell()    {}
func (Blocked) isCell()  {}
func (Clue) isCell()     {}
func (Solution) isCell() {}
func (Arrow) isCell()    {}
func (Image) isCell()    {}
func (Merged) isCell()   {}

// Symbol returns the glyph for the arrow's look and style.
func (a Arrow) Symbol() string {
	style := a.Style
	if style == "" {
		style = StyleNormal
	}
	look := a.Look
	if look == "" {
		look = LookRight
	}
	return arrowSymbols[style][look]
}

// newCell returns a cell of kind k carrying the kind's defaults.
func newCell(k Kind) Cell {
	switch k {
	case KindBlocked:
		return Blocked{}
	case KindClue:
		return Clue{Subclues: []Subclue{{Direction: Across}}}
	case KindSolution:
		return Solution{}
	case KindArrow:
		return Arrow{Look: LookRight, Style: StyleNormal, SpanRows: 1, SpanCols: 1}
	case KindImage:
		return Image{SpanRows: 1, SpanCols: 1}
	case KindMerged:
		return Merged{}
	}
	return Unset{}
}

// footprint returns the span of an anchor cell, or ok=false for other kinds.
func footprint(c Cell) (rows, cols int, ok bool) {
	switch v := c.(type) {
	case Arrow:
		return max(v.SpanRows, 1), max(v.SpanCols, 1), true
	case Image:
		return max(v.SpanRows, 1), max(v.SpanCols, 1), true
	}
	return 0, 0, false
}

// cloneCell returns a copy of c that shares no memory with it.
func cloneCell(c Cell) Cell {
	if v, ok := c.(Clue); ok {
		subs := make([]Subclue, len(v.Subclues))
		copy(subs, v.Subclues)
		return Clue{Subclues: subs}
	}
	return c
}
