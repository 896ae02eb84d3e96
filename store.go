package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a puzzle does not exist.
var ErrNotFound = errors.New("puzzle not found")

// Puzzle is a stored grid document.
type Puzzle struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Grid         *Grid      `json:"grid"`
	PublishedSHA string     `json:"published_sha,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PuzzleSummary is a puzzle without its grid, for listings.
type PuzzleSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps puzzles in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens the SQLite database at path and applies pending migrations.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	// Closing m would close db, so it is left to the garbage collector.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// CreatePuzzle stores a new puzzle and returns it with a generated ID.
func (s *Store) CreatePuzzle(ctx context.Context, title string, g *Grid) (*Puzzle, error) {
	doc, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode grid: %w", err)
	}
	p := &Puzzle{
		ID:        uuid.NewString(),
		Title:     title,
		Grid:      g,
		CreatedAt: now(),
	}
	p.UpdatedAt = p.CreatedAt

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO puzzles(id, title, rows, cols, document, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, g.Rows, g.Cols, string(doc), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert puzzle: %w", err)
	}
	return p, nil
}

// GetPuzzle returns a puzzle by ID, or ErrNotFound.
func (s *Store) GetPuzzle(ctx context.Context, id string) (*Puzzle, error) {
	var (
		p           Puzzle
		doc         string
		publishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT id, title, document, published_sha, published_at, created_at, updated_at
	FROM puzzles WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &doc, &p.PublishedSHA, &publishedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get puzzle %s: %w", id, err)
	}
	if publishedAt.Valid {
		p.PublishedAt = &publishedAt.Time
	}
	if p.Grid, err = DecodeGrid([]byte(doc)); err != nil {
		return nil, fmt.Errorf("puzzle %s: %w", id, err)
	}
	return &p, nil
}

// ListPuzzles returns every puzzle, most recently updated first.
func (s *Store) ListPuzzles(ctx context.Context) ([]PuzzleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, title, rows, cols, updated_at FROM puzzles
	ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list puzzles: %w", err)
	}
	defer rows.Close()

	list := []PuzzleSummary{}
	for rows.Next() {
		var p PuzzleSummary
		if err := rows.Scan(&p.ID, &p.Title, &p.Rows, &p.Cols, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// SaveGrid replaces the grid document of a puzzle.
func (s *Store) SaveGrid(ctx context.Context, id string, g *Grid) error {
	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode grid: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
	UPDATE puzzles SET rows = ?, cols = ?, document = ?, updated_at = ? WHERE id = ?`,
		g.Rows, g.Cols, string(doc), now(), id)
	if err != nil {
		return fmt.Errorf("save grid %s: %w", id, err)
	}
	return expectOne(res)
}

// MarkPublished records the content hash of the last publish.
func (s *Store) MarkPublished(ctx context.Context, id, sha string) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE puzzles SET published_sha = ?, published_at = ? WHERE id = ?`, sha, now(), id)
	if err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	return expectOne(res)
}

// DeletePuzzle removes a puzzle.
func (s *Store) DeletePuzzle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM puzzles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete puzzle %s: %w", id, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
