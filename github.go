package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v39/github"
	"golang.org/x/oauth2"
)

// ErrRemoteNotConfigured is returned when no remote repository is set up.
var ErrRemoteNotConfigured = errors.New("remote repository not configured")

// GitHubConfig locates the puzzle documents in a GitHub repository.
type GitHubConfig struct {
	Token  string
	Owner  string
	Repo   string
	Path   string // "{id}" is replaced by the puzzle ID
	Branch string
	// BaseURL points at a GitHub Enterprise API; empty means github.com.
	BaseURL string
}

// GitHubRepo stores grid documents as files of a GitHub repository.
type GitHubRepo struct {
	client *github.Client
	cfg    GitHubConfig
}

// NewGitHubRepo creates a repository client. An empty token makes
// unauthenticated requests.
func NewGitHubRepo(ctx context.Context, cfg GitHubConfig) (*GitHubRepo, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, ErrRemoteNotConfigured
	}
	if cfg.Path == "" {
		cfg.Path = "crosswords/{id}.json"
	}

	var hc *http.Client
	if cfg.Token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	client := github.NewClient(hc)
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHubRepo{client: client, cfg: cfg}, nil
}

func (r *GitHubRepo) path(id string) string {
	return strings.ReplaceAll(r.cfg.Path, "{id}", id)
}

func (r *GitHubRepo) get(ctx context.Context, path string) (*github.RepositoryContent, *github.Response, error) {
	file, dir, resp, err := r.client.Repositories.GetContents(ctx, r.cfg.Owner, r.cfg.Repo, path,
		&github.RepositoryContentGetOptions{Ref: r.cfg.Branch})
	if err != nil {
		return nil, resp, err
	}
	if file == nil {
		return nil, resp, fmt.Errorf("%s is a directory with %d entries", path, len(dir))
	}
	return file, resp, nil
}

// Publish writes the grid document of a puzzle. An existing file is updated
// with its current SHA as the concurrency token; a missing file is created.
// It returns the SHA of the written content.
func (r *GitHubRepo) Publish(ctx context.Context, id string, g *Grid) (string, error) {
	doc, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode grid: %w", err)
	}
	path := r.path(id)
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Save crossword"),
		Content: doc,
	}
	if r.cfg.Branch != "" {
		opts.Branch = github.String(r.cfg.Branch)
	}

	var res *github.RepositoryContentResponse
	current, resp, err := r.get(ctx, path)
	switch {
	case err == nil:
		opts.SHA = current.SHA
		res, _, err = r.client.Repositories.UpdateFile(ctx, r.cfg.Owner, r.cfg.Repo, path, opts)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		opts.Message = github.String("Create crossword")
		res, _, err = r.client.Repositories.CreateFile(ctx, r.cfg.Owner, r.cfg.Repo, path, opts)
	default:
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return res.GetContent().GetSHA(), nil
}

// Fetch reads the grid document of a puzzle.
func (r *GitHubRepo) Fetch(ctx context.Context, id string) (*Grid, error) {
	path := r.path(id)
	file, resp, err := r.get(ctx, path)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return DecodeGrid([]byte(content))
}
