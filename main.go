package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const usageText = `Crossword - a grid editor for crosswords and arrowwords.

Usage:
  crossword [serve]                               run the web editor
  crossword edit <file.json> [-rows N -cols N]    edit a grid in the terminal
  crossword export <file.json> <out> [-solutions] export to .pdf, .jpg or .png

Configuration is read from $CROSSWORD_CONFIG or ~/.config/crossword/config.toml
and CROSSWORD_* environment variables.
`

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

func main() {
	// Use a minimal logger until the configured one is set.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			stop()
			os.Exit(exitErr.Code)
		}
		slog.Error("crossword failed", "err", err)
		stop()
		os.Exit(1)
	}
}

// run dispatches to a subcommand. Without one it serves the web editor.
func run(ctx context.Context, out io.Writer, args []string) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return runServe(ctx, args)
	case "edit":
		return runEdit(out, args)
	case "export":
		return runExport(out, args)
	case "help":
		fmt.Fprint(out, usageText)
		return nil
	}
	return usageError("unknown command %q, see 'crossword help'", cmd)
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments, and returns the positional ones.
func parseArgs(flags *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := flags.Parse(args); err != nil {
			return nil, usageError("%v", err)
		}
		args = flags.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func runServe(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return usageError("serve takes no arguments")
	}
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	store, err := OpenStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	opts := ServerOptions{Logger: logger, GridRows: cfg.Grid.Rows, GridCols: cfg.Grid.Cols}

	if cfg.GCP.Enabled() {
		scanner, err := NewGeminiScanner(ctx, cfg.GCP)
		if err != nil {
			return fmt.Errorf("init gemini: %w", err)
		}
		opts.Scanner = scanner
		logger.Info("photo import enabled", "project", cfg.GCP.ProjectID, "model", cfg.GCP.Model)
	} else {
		logger.Info("gcp.project_id and gcp.api_key not set, photo import disabled")
	}

	remote, err := NewGitHubRepo(ctx, cfg.GitHubConfig())
	switch {
	case err == nil:
		opts.Remote = remote
		logger.Info("publishing enabled", "owner", cfg.GitHub.Owner, "repo", cfg.GitHub.Repo)
	case errors.Is(err, ErrRemoteNotConfigured):
		logger.Info("github.owner or github.repo not set, publishing disabled")
	default:
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           NewServer(store, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", "http://localhost:"+cfg.Server.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// SSE streams never finish on their own.
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// loadGridFile reads a grid document. A missing file yields a new
// rows x cols grid.
func loadGridFile(path string, rows, cols int) (*Grid, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := checkDimensions(rows, cols); err != nil {
			return nil, usageError("%v", err)
		}
		return NewGrid(rows, cols), nil
	}
	if err != nil {
		return nil, err
	}
	g, err := DecodeGrid(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func runEdit(out io.Writer, args []string) error {
	flags := flag.NewFlagSet("edit", flag.ContinueOnError)
	flags.SetOutput(out)
	rows := flags.Int("rows", 15, "Rows of a new grid.")
	cols := flags.Int("cols", 15, "Columns of a new grid.")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("usage: crossword edit <file.json> [-rows N -cols N]")
	}

	g, err := loadGridFile(pos[0], *rows, *cols)
	if err != nil {
		return err
	}
	return runTUI(pos[0], g)
}

func runExport(out io.Writer, args []string) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.SetOutput(out)
	solutions := flags.Bool("solutions", false, "Draw solution letters on pictures.")
	cellSize := flags.Int("cell-size", defaultCellSize, "Cell side in pixels on pictures.")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return usageError("usage: crossword export <file.json> <out.pdf|out.jpg|out.png> [-solutions]")
	}
	in, dst := pos[0], pos[1]

	format, err := ParseFormat(filepath.Ext(dst))
	if err != nil {
		return usageError("%v", err)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	g, err := DecodeGrid(data)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := Export(f, g, format, ExportOptions{ShowSolutions: *solutions, CellSize: *cellSize}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %s to %s\n", in, dst)
	return nil
}
