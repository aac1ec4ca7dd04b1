// Package config loads ListNote client settings from an optional TOML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends
const (
	BackendAPI      = "api"
	BackendPostgres = "postgres"
)

// Defaults
const (
	DefaultBackend        = BackendAPI
	DefaultSaveInterval   = 5 * time.Second
	DefaultPromptDuration = 10 * time.Second
	DefaultUserName       = "Anonymous"
)

// Config is the full client configuration
type Config struct {
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Redis   RedisConfig   `toml:"redis"`
	User    UserConfig    `toml:"user"`
	Project ProjectConfig `toml:"project"`
	Editor  EditorConfig  `toml:"editor"`
}

// StorageConfig selects where files and tasks live
type StorageConfig struct {
	// Backend is "api" or "postgres"
	Backend     string `toml:"backend"`
	DatabaseURL string `toml:"database_url"`
	// InitSchema creates missing tables on connect (postgres only)
	InitSchema bool `toml:"init_schema"`
	// LocalPath is the device-local marker database
	LocalPath string `toml:"local_path"`
}

// APIConfig points at the storage API
type APIConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// RedisConfig enables cross-process topics and collaboration.
// An empty URL keeps everything in process.
type RedisConfig struct {
	URL string `toml:"url"`
}

// UserConfig is the presence identity shown to collaborators
type UserConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// ProjectConfig is the project opened on start
type ProjectConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// EditorConfig tunes autosave and the deletion prompt
type EditorConfig struct {
	SaveInterval   time.Duration `toml:"save_interval"`
	PromptDuration time.Duration `toml:"prompt_duration"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    DefaultBackend,
			InitSchema: true,
			LocalPath:  defaultLocalPath(),
		},
		User: UserConfig{Name: DefaultUserName},
		Editor: EditorConfig{
			SaveInterval:   DefaultSaveInterval,
			PromptDuration: DefaultPromptDuration,
		},
	}
}

func defaultLocalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "listnote", "local.sqlite")
}

// Load builds the configuration in priority order:
// defaults, then the TOML file at path (or $LISTNOTE_CONFIG when path
// is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("LISTNOTE_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	cfg.Storage.Backend = getEnv("LISTNOTE_STORAGE", cfg.Storage.Backend)
	cfg.Storage.DatabaseURL = getEnv("DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Storage.InitSchema = getEnvBool("LISTNOTE_DB_INIT_SCHEMA", cfg.Storage.InitSchema)
	cfg.Storage.LocalPath = getEnv("LISTNOTE_LOCAL_PATH", cfg.Storage.LocalPath)

	cfg.API.URL = getEnv("LISTNOTE_API_URL", cfg.API.URL)
	cfg.API.Token = getEnv("LISTNOTE_API_TOKEN", cfg.API.Token)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)

	cfg.User.ID = getEnv("LISTNOTE_USER_ID", cfg.User.ID)
	cfg.User.Name = getEnv("LISTNOTE_USER_NAME", cfg.User.Name)

	cfg.Project.ID = getEnv("LISTNOTE_PROJECT_ID", cfg.Project.ID)
	cfg.Project.Name = getEnv("LISTNOTE_PROJECT_NAME", cfg.Project.Name)

	if ms := getEnvInt("LISTNOTE_SAVE_INTERVAL_MS", 0); ms > 0 {
		cfg.Editor.SaveInterval = time.Duration(ms) * time.Millisecond
	}
	if sec := getEnvInt("LISTNOTE_PROMPT_SECONDS", 0); sec > 0 {
		cfg.Editor.PromptDuration = time.Duration(sec) * time.Second
	}
}

// Validate checks that the selected backend has what it needs
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendAPI:
		if c.API.URL == "" {
			errs = append(errs, errors.New("api backend needs api.url (LISTNOTE_API_URL)"))
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres backend needs storage.database_url (DATABASE_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Editor.SaveInterval <= 0 {
		errs = append(errs, errors.New("editor.save_interval must be positive"))
	}
	if c.Editor.PromptDuration <= 0 {
		errs = append(errs, errors.New("editor.prompt_duration must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
