package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Collaborator is a person connected to an editing session.
type Collaborator struct {
	Pseudo   string    `json:"pseudo"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joined_at"`
}

// collaboratorColors is the palette assigned to collaborators in order.
var collaboratorColors = []string{
	"#2563eb", "#dc2626", "#16a34a", "#9333ea",
	"#ea580c", "#0891b2", "#c026d3", "#ca8a04",
}

// errSessionClosed is returned by edits on a session that was evicted or
// whose puzzle was deleted.
var errSessionClosed = errors.New("session closed")

// Session is the live editor of one puzzle, shared by every connected client.
// Edits are serialised by the session mutex.
type Session struct {
	PuzzleID string
	Title    string

	mu            sync.Mutex
	editor        *Editor
	collaborators map[string]*Collaborator
	save          func(ctx context.Context, id string, g *Grid) error
	closed        bool
}

// SessionState is a consistent snapshot of a session.
type SessionState struct {
	PuzzleID      string                   `json:"puzzle_id"`
	Title         string                   `json:"title"`
	Grid          *Grid                    `json:"grid"`
	Selection     Selection                `json:"selection"`
	Collaborators map[string]*Collaborator `json:"collaborators"`
}

// NewSession starts a session on a stored puzzle.
func NewSession(p *Puzzle) *Session {
	return &Session{
		PuzzleID:      p.ID,
		Title:         p.Title,
		editor:        NewEditor(p.Grid),
		collaborators: make(map[string]*Collaborator),
	}
}

// AddCollaborator adds a collaborator to the session and returns it.
func (s *Session) AddCollaborator(pseudo string) *Collaborator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collaborators[pseudo]; ok {
		return c
	}

	c := &Collaborator{
		Pseudo:   pseudo,
		Color:    collaboratorColors[len(s.collaborators)%len(collaboratorColors)],
		JoinedAt: time.Now(),
	}
	s.collaborators[pseudo] = c
	return c
}

// RemoveCollaborator removes a collaborator from the session.
func (s *Session) RemoveCollaborator(pseudo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collaborators, pseudo)
}

// Edit runs fn on the session's editor. On success it returns the new state.
func (s *Session) Edit(fn func(e *Editor) error) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return SessionState{}, errSessionClosed
	}
	if err := fn(s.editor); err != nil {
		return SessionState{}, err
	}
	return s.stateLocked(), nil
}

// Commit is Edit followed by saving the grid. The save happens under the
// session lock so stored documents follow the edit order. When fn or the save
// fails, the grid and selection are put back as they were.
func (s *Session) Commit(ctx context.Context, fn func(e *Editor) error) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return SessionState{}, errSessionClosed
	}
	grid, sel := s.editor.grid.Clone(), s.editor.sel
	sel.Members = append([]Pos(nil), sel.Members...)
	rollback := func() { s.editor.grid, s.editor.sel = grid, sel }

	if err := fn(s.editor); err != nil {
		rollback()
		return SessionState{}, err
	}
	state := s.stateLocked()
	if s.save != nil {
		if err := s.save(ctx, s.PuzzleID, state.Grid); err != nil {
			rollback()
			return SessionState{}, fmt.Errorf("autosave %s: %w", s.PuzzleID, err)
		}
	}
	return state, nil
}

// State returns a copy of the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	sel := s.editor.Selection()
	sel.Members = append([]Pos(nil), sel.Members...)
	collaborators := make(map[string]*Collaborator, len(s.collaborators))
	for k, c := range s.collaborators {
		cp := *c
		collaborators[k] = &cp
	}
	return SessionState{
		PuzzleID:      s.PuzzleID,
		Title:         s.Title,
		Grid:          s.editor.Grid().Clone(),
		Selection:     sel,
		Collaborators: collaborators,
	}
}

// Sessions keeps the open session of every puzzle being edited.
type Sessions struct {
	store *Store

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty session registry backed by store.
func NewSessions(store *Store) *Sessions {
	return &Sessions{
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session of a puzzle, loading the puzzle on first use.
func (ss *Sessions) Open(ctx context.Context, id string) (*Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if s, ok := ss.sessions[id]; ok {
		return s, nil
	}
	p, err := ss.store.GetPuzzle(ctx, id)
	if err != nil {
		return nil, err
	}
	s := NewSession(p)
	s.save = ss.store.SaveGrid
	ss.sessions[id] = s
	return s, nil
}

// Close drops the session of a puzzle. Edits still holding it fail with
// errSessionClosed.
func (ss *Sessions) Close(id string) {
	ss.Evict(id, func() bool { return true })
}

// Evict drops the session of a puzzle when idle reports true. idle runs with
// the registry locked, after any edit in flight on the session has finished,
// so no one can open the session meanwhile.
func (ss *Sessions) Evict(id string, idle func() bool) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.sessions[id]
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !idle() {
		return false
	}
	s.closed = true
	delete(ss.sessions, id)
	return true
}

// Len returns the number of open sessions.
func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}
