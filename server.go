package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

//go:embed frontend
var frontendFS embed.FS

const maxUploadSize = 10 << 20 // 10 MB

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// rateLimiter is a simple per-IP token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
	}
	// Cleanup stale entries every minute.
	go func() {
		for {
			time.Sleep(time.Minute)
			rl.mu.Lock()
			for ip, b := range rl.visitors {
				if time.Since(b.lastSeen) > 5*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}()
	return rl
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: time.Now()}
		return true
	}

	// Refill tokens based on elapsed time.
	elapsed := time.Since(b.lastSeen)
	refill := int(elapsed / rl.interval)
	if refill > 0 {
		b.tokens += refill * rl.rate
		if b.tokens > rl.rate {
			b.tokens = rl.rate
		}
		b.lastSeen = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// GridScanner extracts a grid from a photo of a printed puzzle.
type GridScanner interface {
	AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Grid, error)
}

// Remote keeps copies of grid documents outside the server.
type Remote interface {
	Publish(ctx context.Context, id string, g *Grid) (sha string, err error)
	Fetch(ctx context.Context, id string) (*Grid, error)
}

// ServerOptions holds the optional collaborators of a Server.
type ServerOptions struct {
	Scanner  GridScanner // nil disables photo import
	Remote   Remote      // nil disables publish and pull
	Logger   *slog.Logger
	GridRows int
	GridCols int
}

// Server is the main HTTP server.
type Server struct {
	mux      *http.ServeMux
	store    *Store
	sessions *Sessions
	scanner  GridScanner
	remote   Remote
	hub      *Hub
	log      *slog.Logger
	rows     int
	cols     int
	uploadRL *rateLimiter
	editRL   *rateLimiter
	exportRL *rateLimiter
}

// NewServer creates a configured HTTP server.
func NewServer(store *Store, opts ServerOptions) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		store:    store,
		sessions: NewSessions(store),
		scanner:  opts.Scanner,
		remote:   opts.Remote,
		hub:      NewHub(),
		log:      opts.Logger,
		rows:     opts.GridRows,
		cols:     opts.GridCols,
		uploadRL: newRateLimiter(5, time.Minute),  // 5 uploads/min per IP
		editRL:   newRateLimiter(60, time.Second), // 60 edits/sec per IP
		exportRL: newRateLimiter(10, time.Minute), // 10 exports/min per IP
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.rows == 0 || s.cols == 0 {
		s.rows, s.cols = 15, 15
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Puzzle API
	s.mux.HandleFunc("POST /api/puzzles", s.handleCreatePuzzle)
	s.mux.HandleFunc("GET /api/puzzles", s.handleListPuzzles)
	s.mux.HandleFunc("GET /api/puzzles/{id}", s.handleGetPuzzle)
	s.mux.HandleFunc("DELETE /api/puzzles/{id}", s.handleDeletePuzzle)
	s.mux.HandleFunc("POST /api/puzzles/{id}/join", s.handleJoin)
	s.mux.HandleFunc("GET /api/puzzles/{id}/events", s.handleEvents)

	// Editing
	s.mux.HandleFunc("POST /api/puzzles/{id}/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/puzzles/{id}/move", s.handleMove)
	s.mux.HandleFunc("POST /api/puzzles/{id}/type", s.handleApplyType)
	s.mux.HandleFunc("POST /api/puzzles/{id}/resize", s.handleResize)
	s.mux.HandleFunc("POST /api/puzzles/{id}/clue", s.handleSaveClue)
	s.mux.HandleFunc("POST /api/puzzles/{id}/subclues", s.handleSubclues)
	s.mux.HandleFunc("POST /api/puzzles/{id}/solution", s.handleSetLetter)
	s.mux.HandleFunc("POST /api/puzzles/{id}/arrow", s.handleSaveArrow)
	s.mux.HandleFunc("POST /api/puzzles/{id}/image", s.handleSaveImage)
	s.mux.HandleFunc("POST /api/puzzles/{id}/upload", s.handleUpload)

	// Export and remote copies
	s.mux.HandleFunc("GET /api/puzzles/{id}/export.pdf", s.handleExport(FormatPDF))
	s.mux.HandleFunc("GET /api/puzzles/{id}/export.jpg", s.handleExport(FormatJPEG))
	s.mux.HandleFunc("GET /api/puzzles/{id}/export.png", s.handleExport(FormatPNG))
	s.mux.HandleFunc("POST /api/puzzles/{id}/publish", s.handlePublish)
	s.mux.HandleFunc("POST /api/puzzles/{id}/pull", s.handlePull)
	s.mux.HandleFunc("POST /api/imports", s.handleImport)

	// Frontend static files
	frontendDir, _ := fs.Sub(frontendFS, "frontend")
	fileServer := http.FileServer(http.FS(frontendDir))
	s.mux.HandleFunc("GET /edit/{id}", s.handleEditorPage)
	s.mux.Handle("GET /", fileServer)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
	s.mux.ServeHTTP(w, r)
}

// event is a message pushed to the SSE clients of a puzzle.
type event struct {
	Type      string        `json:"type"`
	State     *SessionState `json:"state,omitempty"`
	Selection *Selection    `json:"selection,omitempty"`
	Pseudo    string        `json:"pseudo,omitempty"`
	Color     string        `json:"color,omitempty"`
	SHA       string        `json:"sha,omitempty"`
}

func (s *Server) broadcast(puzzleID string, evt event) {
	if err := s.hub.Publish(puzzleID, evt); err != nil {
		s.log.Error("broadcast failed", "puzzle", puzzleID, "type", evt.Type, "err", err)
	}
}

// --- Puzzle handlers ---

// POST /api/puzzles: create an empty puzzle.
func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Rows  int    `json:"rows"`
		Cols  int    `json:"cols"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Rows == 0 && req.Cols == 0 {
		req.Rows, req.Cols = s.rows, s.cols
	}
	if err := checkDimensions(req.Rows, req.Cols); err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := s.store.CreatePuzzle(r.Context(), sanitizeTitle(req.Title), NewGrid(req.Rows, req.Cols))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("puzzle created", "puzzle", p.ID, "rows", req.Rows, "cols", req.Cols)
	writeJSON(w, http.StatusCreated, p)
}

// GET /api/puzzles: list all puzzles.
func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPuzzles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/puzzles/{id}: current editor state.
func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

// DELETE /api/puzzles/{id}
func (s *Server) handleDeletePuzzle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeletePuzzle(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.sessions.Close(id)
	s.broadcast(id, event{Type: "deleted"})
	s.hub.Close(id)
	s.log.Info("puzzle deleted", "puzzle", id)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/puzzles/{id}/join: announce a collaborator.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Pseudo string `json:"pseudo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pseudo == "" {
		jsonError(w, "Field 'pseudo' is required", http.StatusBadRequest)
		return
	}
	pseudo := sanitizePseudo(req.Pseudo)
	if pseudo == "" {
		jsonError(w, "Invalid pseudo", http.StatusBadRequest)
		return
	}

	c := sess.AddCollaborator(pseudo)
	s.broadcast(sess.PuzzleID, event{Type: "collaborator_joined", Pseudo: c.Pseudo, Color: c.Color})
	writeJSON(w, http.StatusOK, c)
}

// GET /api/puzzles/{id}/events: SSE stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	pseudo := sanitizePseudo(r.URL.Query().Get("pseudo"))

	state := sess.State()
	err := s.hub.Serve(w, r, sess.PuzzleID, event{Type: "state", State: &state}, func() {
		if pseudo != "" {
			sess.RemoveCollaborator(pseudo)
			s.broadcast(sess.PuzzleID, event{Type: "collaborator_left", Pseudo: pseudo})
		}
		// Edits are saved as they happen, so an unwatched puzzle can be
		// reloaded from the store.
		id := sess.PuzzleID
		if s.sessions.Evict(id, func() bool { return s.hub.Subscribers(id) == 0 }) {
			s.log.Debug("session evicted", "puzzle", id)
		}
	})
	if err != nil {
		s.log.Error("event stream failed", "puzzle", sess.PuzzleID, "err", err)
	}
}

// --- Frontend page handlers ---

// GET /edit/{id}: serve the editor page.
func (s *Server) handleEditorPage(w http.ResponseWriter, _ *http.Request) {
	data, _ := frontendFS.ReadFile("frontend/editor.html")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// --- Helpers ---

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := s.sessions.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

// editSession runs op on the session of the request's puzzle. A session
// evicted between lookup and edit is reopened from the store once.
func (s *Server) editSession(w http.ResponseWriter, r *http.Request, op func(*Session) (SessionState, error)) (SessionState, bool) {
	for retried := false; ; retried = true {
		sess, ok := s.openSession(w, r)
		if !ok {
			return SessionState{}, false
		}
		state, err := op(sess)
		if errors.Is(err, errSessionClosed) && !retried {
			continue
		}
		if err != nil {
			s.fail(w, r, err)
			return SessionState{}, false
		}
		return state, true
	}
}

// fail answers with the status matching err. Edit errors carry their own
// message; anything unexpected is logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var editErr *EditError
	switch {
	case errors.As(err, &editErr):
		jsonError(w, editErr.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		jsonError(w, "Puzzle not found", http.StatusNotFound)
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	// Image cells carry their picture inline.
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > n {
		s = string([]rune(s)[:n])
	}
	return s
}

func sanitizePseudo(s string) string {
	return truncateRunes(s, 20)
}

func sanitizeTitle(s string) string {
	if s = truncateRunes(s, 80); s == "" {
		return "Untitled"
	}
	return s
}
