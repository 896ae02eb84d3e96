package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeContents emulates the GitHub contents API for one repository.
type fakeContents struct {
	mu      sync.Mutex
	files   map[string]fakeFile
	commits int
	fail    map[string]int // path -> status returned on GET
	puts    []fakePut
}

type fakeFile struct {
	content []byte
	sha     string
}

type fakePut struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func newFakeContents(t *testing.T) (*fakeContents, *httptest.Server) {
	f := &fakeContents{files: make(map[string]fakeFile), fail: make(map[string]int)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeContents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/repos/owner/repo/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if code, ok := f.fail[path]; ok {
			w.WriteHeader(code)
			fmt.Fprint(w, `{"message":"boom"}`)
			return
		}
		file, ok := f.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"path":     path,
			"sha":      file.sha,
			"content":  base64.StdEncoding.EncodeToString(file.content),
		})
	case http.MethodPut:
		var put fakePut
		json.NewDecoder(r.Body).Decode(&put)
		f.puts = append(f.puts, put)
		existing, exists := f.files[path]
		if exists && put.SHA != existing.sha || !exists && put.SHA != "" {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"message":"sha mismatch"}`)
			return
		}
		content, _ := base64.StdEncoding.DecodeString(put.Content)
		f.commits++
		sha := fmt.Sprintf("sha%d", f.commits)
		f.files[path] = fakeFile{content: content, sha: sha}
		if exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"path": path, "sha": sha},
			"commit":  map[string]string{"sha": "commit" + sha},
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestRepo(t *testing.T, srv *httptest.Server) *GitHubRepo {
	t.Helper()
	repo, err := NewGitHubRepo(context.Background(), GitHubConfig{
		Token:   "test-token",
		Owner:   "owner",
		Repo:    "repo",
		Branch:  "main",
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return repo
}

func TestPublishCreatesThenUpdates(t *testing.T) {
	fake, srv := newFakeContents(t)
	repo := newTestRepo(t, srv)
	ctx := context.Background()

	sha, err := repo.Publish(ctx, "p1", NewGrid(2, 2))
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if sha != "sha1" {
		t.Fatalf("expected sha1, got %s", sha)
	}

	g := sampleGrid(t)
	sha, err = repo.Publish(ctx, "p1", g)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if sha != "sha2" {
		t.Fatalf("expected sha2, got %s", sha)
	}

	if len(fake.puts) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(fake.puts))
	}
	if fake.puts[0].Message != "Create crossword" || fake.puts[0].SHA != "" {
		t.Fatalf("first write should be a create, got %+v", fake.puts[0])
	}
	if fake.puts[1].Message != "Save crossword" || fake.puts[1].SHA != "sha1" || fake.puts[1].Branch != "main" {
		t.Fatalf("second write should update sha1 on main, got %+v", fake.puts[1])
	}

	got, err := repo.Fetch(ctx, "p1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff(g, got); diff != "" {
		t.Fatalf("fetched grid mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishDoesNotMaskReadFailures(t *testing.T) {
	fake, srv := newFakeContents(t)
	fake.fail["crosswords/p1.json"] = http.StatusForbidden
	repo := newTestRepo(t, srv)

	if _, err := repo.Publish(context.Background(), "p1", NewGrid(1, 1)); err == nil {
		t.Fatal("expected error on forbidden read")
	}
	if len(fake.puts) != 0 {
		t.Fatalf("expected no write after a failed read, got %d", len(fake.puts))
	}
}

func TestFetchMissing(t *testing.T) {
	_, srv := newFakeContents(t)
	repo := newTestRepo(t, srv)

	if _, err := repo.Fetch(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewGitHubRepoRequiresRepository(t *testing.T) {
	if _, err := NewGitHubRepo(context.Background(), GitHubConfig{Owner: "o"}); !errors.Is(err, ErrRemoteNotConfigured) {
		t.Fatalf("expected ErrRemoteNotConfigured, got %v", err)
	}
}
