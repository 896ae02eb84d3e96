package main

// EditError is an edit rejected by the editor. The message is meant for the
// user; the grid is left as it was before the edit.
type EditError struct {
	msg string
}

func (e *EditError) Error() string { return e.msg }

var (
	ErrMultiSelectType   = &EditError{"Multi-select only supports setting to Not Set, Image, or Arrow (linear row or column)."}
	ErrSelectionMerged   = &EditError{"Selection includes merged cells. Cannot apply."}
	ErrArrowShape        = &EditError{"Arrow multi-select must be a single row or column."}
	ErrInvalidType       = &EditError{"Unknown cell type."}
	ErrNotSelectable     = &EditError{"Cell is outside the grid or covered by another cell."}
	ErrInvalidMove       = &EditError{"Move direction must be up, down, left or right."}
	ErrMultiSelected     = &EditError{"Multiple cells selected. Use cell type buttons to apply."}
	ErrNotClue           = &EditError{"Selected cell is not a clue."}
	ErrNotSolution       = &EditError{"Selected cell is not a solution."}
	ErrNotArrow          = &EditError{"Selected cell is not an arrow."}
	ErrNotImage          = &EditError{"Selected cell is not an image."}
	ErrClueCount         = &EditError{"A clue holds between 1 and 3 sub-clues."}
	ErrClueIncomplete    = &EditError{"Invalid input: All fields (text, direction, solution) must be filled for each clue."}
	ErrClueDoesNotFit    = &EditError{"Solution does not fit: Runs off grid, into invalid cell types, or conflicts with existing letters."}
	ErrSubclueIndex      = &EditError{"No such sub-clue."}
	ErrInvalidDirection  = &EditError{"Direction must be across or down."}
	ErrInvalidLetter     = &EditError{"Letter must be a single letter or empty."}
	ErrInvalidSolution   = &EditError{"Solution must contain letters only."}
	ErrInvalidSpan       = &EditError{"Span rows and columns must be at least 1."}
	ErrSpanOutOfBounds   = &EditError{"Span runs off the grid."}
	ErrFootprintOccupied = &EditError{"Span covers cells that are already in use."}
	ErrInvalidLook       = &EditError{"Arrow look is not available for this span."}
	ErrInvalidStyle      = &EditError{"Arrow style must be normal or bold."}
	ErrInvalidImageURL   = &EditError{"Image must be a base64 image data URI."}
)
