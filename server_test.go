package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(newTestStore(t), ServerOptions{GridRows: 5, GridCols: 5})
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func createPuzzle(t *testing.T, srv *Server, body string) *Puzzle {
	t.Helper()
	w := doJSON(srv, "POST", "/api/puzzles", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create puzzle: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var p Puzzle
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode puzzle: %v", err)
	}
	return &p
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) SessionState {
	t.Helper()
	var state SessionState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func errorMessage(w *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	return body.Error
}

func TestEditorPageRoute(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/edit/abc123", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected text/html, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "Crossword Editor") {
		t.Fatal("editor page does not contain expected title")
	}
}

func TestCreatePuzzleDefaults(t *testing.T) {
	srv := newTestServer(t)

	p := createPuzzle(t, srv, `{"title":"  "}`)
	if p.Title != "Untitled" {
		t.Fatalf("expected default title, got %q", p.Title)
	}
	if p.Grid.Rows != 5 || p.Grid.Cols != 5 {
		t.Fatalf("expected configured 5x5 grid, got %dx%d", p.Grid.Rows, p.Grid.Cols)
	}

	w := doJSON(srv, "POST", "/api/puzzles", `{"rows":0,"cols":3}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero rows, got %d", w.Code)
	}

	w = doJSON(srv, "GET", "/api/puzzles", "")
	var list []PuzzleSummary
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("expected the created puzzle in the list, got %+v", list)
	}
}

func TestFullEditFlow(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{"title":"Flow","rows":3,"cols":6}`)
	base := "/api/puzzles/" + p.ID

	// A1 is selected on open; make it a clue.
	w := doJSON(srv, "POST", base+"/type", `{"type":"clue"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("type: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(srv, "POST", base+"/clue", `{"clues":[{"text":"Feline","direction":"across","solution":"cat"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("clue: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	state := decodeState(t, w)
	for i, want := range "CAT" {
		got, ok := state.Grid.At(0, i+1).(Solution)
		if !ok || got.Letter != string(want) {
			t.Fatalf("expected %c at column %d, got %#v", want, i+1, state.Grid.At(0, i+1))
		}
	}

	// A solution that runs off the grid is rejected with the editor message.
	w = doJSON(srv, "POST", base+"/clue", `{"clues":[{"text":"Long","direction":"across","solution":"ELEPHANT"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("clue off grid: expected 400, got %d", w.Code)
	}
	if msg := errorMessage(w); msg != ErrClueDoesNotFit.Error() {
		t.Fatalf("unexpected error message %q", msg)
	}

	// The edit was saved.
	got, err := srv.store.GetPuzzle(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get puzzle: %v", err)
	}
	if got.Grid.At(0, 3).Kind() != KindSolution {
		t.Fatal("expected autosaved solution cell at D1")
	}

	// Typing a letter on a solution cell.
	doJSON(srv, "POST", base+"/select", `{"row":0,"col":1}`)
	w = doJSON(srv, "POST", base+"/solution", `{"letter":"b"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("solution: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if l := decodeState(t, w).Grid.At(0, 1).(Solution).Letter; l != "B" {
		t.Fatalf("expected B, got %q", l)
	}

	// Sub-clue count and direction.
	doJSON(srv, "POST", base+"/select", `{"row":0,"col":0}`)
	w = doJSON(srv, "POST", base+"/subclues", `{"count":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("subclues: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(srv, "POST", base+"/subclues", `{"index":1,"direction":"down"}`)
	clue := decodeState(t, w).Grid.At(0, 0).(Clue)
	if len(clue.Subclues) != 2 || clue.Subclues[1].Direction != Down {
		t.Fatalf("unexpected subclues %+v", clue.Subclues)
	}
	if w := doJSON(srv, "POST", base+"/subclues", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty subclues request, got %d", w.Code)
	}
}

func TestArrowRangeFlow(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{"rows":2,"cols":5}`)
	base := "/api/puzzles/" + p.ID

	doJSON(srv, "POST", base+"/select", `{"row":0,"col":0}`)
	w := doJSON(srv, "POST", base+"/select", `{"row":0,"col":3,"extend":true}`)
	if got := len(decodeState(t, w).Selection.Members); got != 4 {
		t.Fatalf("expected 4 selected cells, got %d", got)
	}

	w = doJSON(srv, "POST", base+"/type", `{"type":"arrow"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("type arrow: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	state := decodeState(t, w)
	arrow, ok := state.Grid.At(0, 0).(Arrow)
	if !ok || arrow.SpanRows != 1 || arrow.SpanCols != 4 {
		t.Fatalf("expected a 1x4 arrow, got %#v", state.Grid.At(0, 0))
	}

	w = doJSON(srv, "POST", base+"/arrow", `{"look":"right-down","style":"bold","spanRows":1,"spanCols":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("arrow: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	state = decodeState(t, w)
	if state.Grid.At(0, 2).Kind() != KindUnset || state.Grid.At(0, 1).Kind() != KindMerged {
		t.Fatal("expected the shrunk span to release C1 and keep B1")
	}

	w = doJSON(srv, "POST", base+"/arrow", `{"look":"down","style":"normal","spanRows":1,"spanCols":2}`)
	if w.Code != http.StatusBadRequest || errorMessage(w) != ErrInvalidLook.Error() {
		t.Fatalf("expected invalid look, got %d", w.Code)
	}

	w = doJSON(srv, "POST", base+"/move", `{"direction":"sideways"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad direction, got %d", w.Code)
	}
	w = doJSON(srv, "POST", base+"/type", `{"type":"bogus"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad type, got %d", w.Code)
	}
}

func TestResizeEndpoint(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{"rows":3,"cols":3}`)
	base := "/api/puzzles/" + p.ID

	w := doJSON(srv, "POST", base+"/resize", `{"rows":4,"cols":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resize: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if g := decodeState(t, w).Grid; g.Rows != 4 || g.Cols != 2 {
		t.Fatalf("expected 4x2, got %dx%d", g.Rows, g.Cols)
	}

	w = doJSON(srv, "POST", base+"/resize", `{"rows":101,"cols":2}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized grid, got %d", w.Code)
	}
}

func TestUnknownPuzzle(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct{ method, path, body string }{
		{"GET", "/api/puzzles/nope", ""},
		{"POST", "/api/puzzles/nope/type", `{"type":"clue"}`},
		{"DELETE", "/api/puzzles/nope", ""},
		{"GET", "/api/puzzles/nope/export.pdf", ""},
	} {
		if w := doJSON(srv, tc.method, tc.path, tc.body); w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestEditBroadcastsGridUpdate(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{}`)

	sub := srv.hub.Subscribe(p.ID)
	defer srv.hub.Unsubscribe(sub)

	doJSON(srv, "POST", "/api/puzzles/"+p.ID+"/type", `{"type":"blocked"}`)

	select {
	case msg := <-sub.ch:
		var evt struct {
			Type  string       `json:"type"`
			State SessionState `json:"state"`
		}
		if err := json.Unmarshal(msg.data, &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.Type != "grid_update" || evt.State.Grid.At(0, 0).Kind() != KindBlocked {
			t.Fatalf("unexpected event %s", msg.data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event broadcast")
	}
}

func TestSessionEvictedWhenLastStreamEnds(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{}`)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	connect := func() (*http.Response, context.CancelFunc) {
		t.Helper()
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/puzzles/"+p.ID+"/events", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		line, err := bufio.NewReader(resp.Body).ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "data: ") {
			t.Fatalf("expected state event, got %q: %v", line, err)
		}
		return resp, cancel
	}
	waitSessions := func(want int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for srv.sessions.Len() != want {
			if time.Now().After(deadline) {
				t.Fatalf("expected %d open sessions, got %d", want, srv.sessions.Len())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	first, cancelFirst := connect()
	second, cancelSecond := connect()
	defer first.Body.Close()
	defer second.Body.Close()

	if w := doJSON(srv, "POST", "/api/puzzles/"+p.ID+"/type", `{"type":"blocked"}`); w.Code != http.StatusOK {
		t.Fatalf("apply type: expected 200, got %d", w.Code)
	}

	cancelFirst()
	time.Sleep(50 * time.Millisecond)
	waitSessions(1)

	cancelSecond()
	waitSessions(0)

	w := doJSON(srv, "GET", "/api/puzzles/"+p.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	if got := decodeState(t, w).Grid.At(0, 0).Kind(); got != KindBlocked {
		t.Fatalf("expected the saved edit after reload, got %s", got)
	}
}

func TestJoinAndDelete(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{}`)
	base := "/api/puzzles/" + p.ID

	w := doJSON(srv, "POST", base+"/join", `{"pseudo":"  Alice  "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", w.Code)
	}
	var c Collaborator
	json.NewDecoder(w.Body).Decode(&c)
	if c.Pseudo != "Alice" || c.Color == "" {
		t.Fatalf("unexpected collaborator %+v", c)
	}
	if w := doJSON(srv, "POST", base+"/join", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without pseudo, got %d", w.Code)
	}

	sub := srv.hub.Subscribe(p.ID)
	if w := doJSON(srv, "DELETE", base, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	msg, ok := <-sub.ch
	if !ok || !strings.Contains(string(msg.data), `"deleted"`) {
		t.Fatalf("expected deleted event, got %q", msg.data)
	}
	if _, ok := <-sub.ch; ok {
		t.Fatal("expected the stream to be closed after delete")
	}
	if w := doJSON(srv, "GET", base, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestExportEndpoints(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{"title":"Sunday Grid","rows":2,"cols":2}`)
	base := "/api/puzzles/" + p.ID

	w := doJSON(srv, "GET", base+"/export.pdf", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf: got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `"Sunday-Grid.pdf"`) {
		t.Fatalf("unexpected disposition %q", cd)
	}

	w = doJSON(srv, "GET", base+"/export.png?solutions=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("png: expected 200, got %d", w.Code)
	}
	if _, err := png.Decode(w.Body); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func multipartImage(t *testing.T, fields map[string]string, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="grid"`)
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestUploadReturnsDataURI(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{}`)

	body, ct := multipartImage(t, nil, "image/png", []byte("png-bytes"))
	req := httptest.NewRequest("POST", "/api/puzzles/"+p.ID+"/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["url"] != DataURI("image/png", []byte("png-bytes")) {
		t.Fatalf("unexpected url %q", resp["url"])
	}

	body, ct = multipartImage(t, nil, "image/gif", []byte("gif"))
	req = httptest.NewRequest("POST", "/api/puzzles/"+p.ID+"/upload", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for gif, got %d", w.Code)
	}
}

type fakeScanner struct {
	grid *Grid
	err  error
}

func (f fakeScanner) AnalyzeImage(context.Context, []byte, string) (*Grid, error) {
	return f.grid, f.err
}

func TestImportPhoto(t *testing.T) {
	g := NewGrid(2, 2)
	g.set(0, 0, Clue{Subclues: []Subclue{{Text: "Scanned", Direction: Across}}})
	srv := NewServer(newTestStore(t), ServerOptions{Scanner: fakeScanner{grid: g}})

	body, ct := multipartImage(t, map[string]string{"title": "From photo"}, "image/jpeg", []byte("jpeg"))
	req := httptest.NewRequest("POST", "/api/imports", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("import: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var p Puzzle
	json.NewDecoder(w.Body).Decode(&p)
	if p.Title != "From photo" || p.Grid.At(0, 0).Kind() != KindClue {
		t.Fatalf("unexpected imported puzzle %+v", p)
	}
}

func TestImportNotConfigured(t *testing.T) {
	srv := newTestServer(t)

	body, ct := multipartImage(t, nil, "image/jpeg", []byte("jpeg"))
	req := httptest.NewRequest("POST", "/api/imports", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestImportScannerFailure(t *testing.T) {
	store := newTestStore(t)
	srv := NewServer(store, ServerOptions{Scanner: fakeScanner{err: errors.New("quota exceeded")}})

	body, ct := multipartImage(t, nil, "image/jpeg", []byte("jpeg"))
	req := httptest.NewRequest("POST", "/api/imports", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if msg := errorMessage(w); msg != "Could not analyze the grid" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

// memoryRemote keeps published grids in memory.
type memoryRemote struct {
	mu    sync.Mutex
	grids map[string]*Grid
	fail  error
}

func (m *memoryRemote) Publish(_ context.Context, id string, g *Grid) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	m.grids[id] = g.Clone()
	return fmt.Sprintf("sha-%d", len(m.grids)), nil
}

func (m *memoryRemote) Fetch(_ context.Context, id string) (*Grid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grids[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func TestPublishAndPull(t *testing.T) {
	remote := &memoryRemote{grids: make(map[string]*Grid)}
	srv := NewServer(newTestStore(t), ServerOptions{Remote: remote})
	p := createPuzzle(t, srv, `{"rows":2,"cols":2}`)
	base := "/api/puzzles/" + p.ID

	if w := doJSON(srv, "POST", base+"/pull", ""); w.Code != http.StatusNotFound {
		t.Fatalf("pull before publish: expected 404, got %d", w.Code)
	}

	doJSON(srv, "POST", base+"/type", `{"type":"blocked"}`)
	w := doJSON(srv, "POST", base+"/publish", "")
	if w.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	stored, _ := srv.store.GetPuzzle(context.Background(), p.ID)
	if stored.PublishedSHA != "sha-1" || stored.PublishedAt == nil {
		t.Fatalf("expected publish recorded, got %q", stored.PublishedSHA)
	}

	doJSON(srv, "POST", base+"/type", `{"type":"clue"}`)
	w = doJSON(srv, "POST", base+"/pull", "")
	if w.Code != http.StatusOK {
		t.Fatalf("pull: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if k := decodeState(t, w).Grid.At(0, 0).Kind(); k != KindBlocked {
		t.Fatalf("expected pulled blocked cell, got %s", k)
	}

	remote.fail = errors.New("remote down")
	if w := doJSON(srv, "POST", base+"/publish", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on remote failure, got %d", w.Code)
	}
}

func TestPublishNotConfigured(t *testing.T) {
	srv := newTestServer(t)
	p := createPuzzle(t, srv, `{}`)

	for _, path := range []string{"/publish", "/pull"} {
		if w := doJSON(srv, "POST", "/api/puzzles/"+p.ID+path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}

	for key, expected := range headers {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("header %s: expected %q, got %q", key, expected, got)
		}
	}

	csp := w.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Second)

	// First 3 should pass.
	for i := range 3 {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	// 4th should be blocked.
	if rl.allow("1.2.3.4") {
		t.Fatal("4th request should be rate limited")
	}

	// Different IP should still be allowed.
	if !rl.allow("5.6.7.8") {
		t.Fatal("different IP should be allowed")
	}
}

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"Sunday Grid": "Sunday-Grid",
		"Été 2024!":   "t-2024",
		"":            "crossword",
		"***":         "crossword",
	}
	for in, want := range tests {
		if got := exportName(in); got != want {
			t.Errorf("exportName(%q) = %q, want %q", in, got, want)
		}
	}
}
