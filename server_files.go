package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"
)

// readImage reads the multipart "image" field of an upload.
func readImage(w http.ResponseWriter, r *http.Request) (data []byte, mimeType string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, "Image too large (max 10 MB)", http.StatusRequestEntityTooLarge)
		return nil, "", false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, "Field 'image' is required", http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	mimeType = header.Header.Get("Content-Type")
	if !allowedMIME[mimeType] {
		jsonError(w, "Accepted formats: JPEG or PNG", http.StatusBadRequest)
		return nil, "", false
	}

	data, err = io.ReadAll(file)
	if err != nil {
		jsonError(w, "Could not read the image", http.StatusInternalServerError)
		return nil, "", false
	}
	return data, mimeType, true
}

// POST /api/puzzles/{id}/upload turns an image file into a data URI for the
// image cell form. The grid is not changed until the image is saved.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.uploadRL.allow(r.RemoteAddr) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	if _, ok := s.openSession(w, r); !ok {
		return
	}
	data, mimeType, ok := readImage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": DataURI(mimeType, data)})
}

// POST /api/imports analyzes a photo of a printed grid and stores it as a
// new puzzle.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !s.uploadRL.allow(r.RemoteAddr) {
		jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	if s.scanner == nil {
		jsonError(w, "Photo import is not configured", http.StatusServiceUnavailable)
		return
	}
	data, mimeType, ok := readImage(w, r)
	if !ok {
		return
	}

	grid, err := s.scanner.AnalyzeImage(r.Context(), data, mimeType)
	if err != nil {
		s.log.Error("photo analysis failed", "err", err)
		jsonError(w, "Could not analyze the grid", http.StatusBadGateway)
		return
	}

	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		title = "Imported grid"
	}
	p, err := s.store.CreatePuzzle(r.Context(), sanitizeTitle(title), grid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("puzzle imported", "puzzle", p.ID, "rows", grid.Rows, "cols", grid.Cols)
	writeJSON(w, http.StatusCreated, p)
}

// GET /api/puzzles/{id}/export.{pdf,jpg,png}
func (s *Server) handleExport(f Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.exportRL.allow(r.RemoteAddr) {
			jsonError(w, "Too many requests, try again later", http.StatusTooManyRequests)
			return
		}
		sess, ok := s.openSession(w, r)
		if !ok {
			return
		}
		state := sess.State()
		opts := ExportOptions{ShowSolutions: r.URL.Query().Get("solutions") == "1"}

		var buf bytes.Buffer
		if err := Export(&buf, state.Grid, f, opts); err != nil {
			s.fail(w, r, fmt.Errorf("export %s: %w", f, err))
			return
		}
		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(state.Title)+f.Extension()))
		w.Write(buf.Bytes())
	}
}

// exportName turns a title into a file name.
func exportName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '-'
		}
		return -1
	}, title)
	if name == "" {
		return "crossword"
	}
	return name
}

// POST /api/puzzles/{id}/publish
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		jsonError(w, "Publishing is not configured", http.StatusServiceUnavailable)
		return
	}
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}

	sha, err := s.remote.Publish(r.Context(), sess.PuzzleID, sess.State().Grid)
	if err != nil {
		s.log.Error("publish failed", "puzzle", sess.PuzzleID, "err", err)
		jsonError(w, "Publishing failed", http.StatusBadGateway)
		return
	}
	if err := s.store.MarkPublished(r.Context(), sess.PuzzleID, sha); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("puzzle published", "puzzle", sess.PuzzleID, "sha", sha)
	s.broadcast(sess.PuzzleID, event{Type: "published", SHA: sha})
	writeJSON(w, http.StatusOK, map[string]string{"sha": sha})
}

// POST /api/puzzles/{id}/pull replaces the grid with the published copy.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		jsonError(w, "Publishing is not configured", http.StatusServiceUnavailable)
		return
	}
	if _, ok := s.openSession(w, r); !ok {
		return
	}

	g, err := s.remote.Fetch(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Puzzle has not been published", http.StatusNotFound)
			return
		}
		s.log.Error("pull failed", "puzzle", r.PathValue("id"), "err", err)
		jsonError(w, "Pulling failed", http.StatusBadGateway)
		return
	}
	s.commit(w, r, func(e *Editor) error {
		e.Load(g)
		return nil
	})
}
