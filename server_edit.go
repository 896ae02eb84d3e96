package main

import (
	"net/http"
)

// commit runs an edit on the puzzle's session, then broadcasts and returns
// the new state. The session saves the grid before answering.
func (s *Server) commit(w http.ResponseWriter, r *http.Request, fn func(e *Editor) error) {
	if !s.editRL.allow(r.RemoteAddr) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	state, ok := s.editSession(w, r, func(sess *Session) (SessionState, error) {
		return sess.Commit(r.Context(), fn)
	})
	if !ok {
		return
	}
	s.broadcast(state.PuzzleID, event{Type: "grid_update", State: &state})
	writeJSON(w, http.StatusOK, state)
}

// moveCursor is commit for selection changes, which are not saved.
func (s *Server) moveCursor(w http.ResponseWriter, r *http.Request, fn func(e *Editor) error) {
	if !s.editRL.allow(r.RemoteAddr) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	state, ok := s.editSession(w, r, func(sess *Session) (SessionState, error) {
		return sess.Edit(fn)
	})
	if !ok {
		return
	}
	s.broadcast(state.PuzzleID, event{Type: "selection", Selection: &state.Selection})
	writeJSON(w, http.StatusOK, state)
}

// POST /api/puzzles/{id}/select
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Row    int  `json:"row"`
		Col    int  `json:"col"`
		Extend bool `json:"extend"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.moveCursor(w, r, func(e *Editor) error {
		if req.Extend {
			return e.Extend(req.Row, req.Col)
		}
		return e.Select(req.Row, req.Col)
	})
}

// POST /api/puzzles/{id}/move
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction MoveDirection `json:"direction"`
		Extend    bool          `json:"extend"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.moveCursor(w, r, func(e *Editor) error {
		return e.Move(req.Direction, req.Extend)
	})
}

// POST /api/puzzles/{id}/type
func (s *Server) handleApplyType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	k, err := ParseKind(req.Type)
	if err != nil {
		s.fail(w, r, ErrInvalidType)
		return
	}
	s.commit(w, r, func(e *Editor) error { return e.ApplyType(k) })
}

// POST /api/puzzles/{id}/resize
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows int `json:"rows"`
		Cols int `json:"cols"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.commit(w, r, func(e *Editor) error { return e.Resize(req.Rows, req.Cols) })
}

// POST /api/puzzles/{id}/clue
func (s *Server) handleSaveClue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Clues []Subclue `json:"clues"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.commit(w, r, func(e *Editor) error { return e.SaveClue(req.Clues) })
}

// POST /api/puzzles/{id}/subclues sets the number of sub-clues when count is
// given, otherwise the direction of sub-clue index.
func (s *Server) handleSubclues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count     *int      `json:"count"`
		Index     *int      `json:"index"`
		Direction Direction `json:"direction"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case req.Count != nil:
		s.commit(w, r, func(e *Editor) error { return e.ResizeSubclues(*req.Count) })
	case req.Index != nil:
		s.commit(w, r, func(e *Editor) error { return e.SetSubclueDirection(*req.Index, req.Direction) })
	default:
		jsonError(w, "Field 'count' or 'index' is required", http.StatusBadRequest)
	}
}

// POST /api/puzzles/{id}/solution
func (s *Server) handleSetLetter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Letter string `json:"letter"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.commit(w, r, func(e *Editor) error { return e.SetLetter(req.Letter) })
}

// POST /api/puzzles/{id}/arrow
func (s *Server) handleSaveArrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Look     Look       `json:"look"`
		Style    ArrowStyle `json:"style"`
		SpanRows int        `json:"spanRows"`
		SpanCols int        `json:"spanCols"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.commit(w, r, func(e *Editor) error {
		return e.SaveArrow(req.Look, req.Style, req.SpanRows, req.SpanCols)
	})
}

// POST /api/puzzles/{id}/image
func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		SpanRows int    `json:"spanRows"`
		SpanCols int    `json:"spanCols"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.commit(w, r, func(e *Editor) error {
		return e.SaveImage(req.URL, req.SpanRows, req.SpanCols)
	})
}
