package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Grid     GridConfig
	GitHub   GitHubSettings `mapstructure:"github"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     string
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// GridConfig holds the size of new puzzles.
type GridConfig struct {
	Rows int
	Cols int
}

// GitHubSettings locates the repository puzzles are published to.
type GitHubSettings struct {
	Token  string
	Owner  string
	Repo   string
	Path   string
	Branch string
}

// GCPConfig selects the Gemini backend used for photo import: Vertex AI when
// a project is set, the Gemini API when only an API key is.
type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Region    string
	Model     string
	APIKey    string `mapstructure:"api_key"`
	Timeout   time.Duration
}

// Enabled reports whether photo import can reach a backend.
func (c GCPConfig) Enabled() bool { return c.ProjectID != "" || c.APIKey != "" }

// LoadConfig reads configuration from file and env. Env var overrides use
// prefix CROSSWORD_; PORT, GCP_PROJECT_ID, GCP_REGION and GEMINI_API_KEY are
// honored too.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "crossword", "crossword.db"))
	v.SetDefault("grid.rows", 15)
	v.SetDefault("grid.cols", 15)
	v.SetDefault("github.token", "")
	v.SetDefault("github.owner", "")
	v.SetDefault("github.repo", "")
	v.SetDefault("github.path", "crosswords/{id}.json")
	v.SetDefault("github.branch", "")
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.region", defaultRegion)
	v.SetDefault("gcp.model", defaultModel)
	v.SetDefault("gcp.api_key", "")
	v.SetDefault("gcp.timeout", "60s")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("CROSSWORD_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "crossword"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CROSSWORD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, legacy := range map[string]string{
		"server.port":    "PORT",
		"gcp.project_id": "GCP_PROJECT_ID",
		"gcp.region":     "GCP_REGION",
		"gcp.api_key":    "GEMINI_API_KEY",
	} {
		if err := v.BindEnv(key, "CROSSWORD_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit CROSSWORD_CONFIG must exist.
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := checkDimensions(c.Grid.Rows, c.Grid.Cols); err != nil {
		return Config{}, fmt.Errorf("grid size: %w", err)
	}
	return c, nil
}

// LogLevel parses server.log_level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Server.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// GitHubConfig converts the settings for NewGitHubRepo.
func (c Config) GitHubConfig() GitHubConfig {
	return GitHubConfig{
		Token:  c.GitHub.Token,
		Owner:  c.GitHub.Owner,
		Repo:   c.GitHub.Repo,
		Path:   c.GitHub.Path,
		Branch: c.GitHub.Branch,
	}
}
