// internal/config/config.go
//
// This package handles configuration and the .loups directory structure.
// Every project that hosts games gets a .loups/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// LoupsDir is the name of the directory we create in each project
	LoupsDir = ".loups"

	storageFile   = "file"
	storageSQLite = "sqlite"
)

const defaultProjectConfigYAML = `# loups-garous project configuration
version: 1

# Role catalog. Leave path empty to use the built-in line-up. Every *.yaml file
# in roles_dir is merged on top, in path order.
catalog:
  path: ""
  roles_dir: roles

# Where game snapshots go. backend: file (one JSON file per game) or sqlite.
storage:
  backend: file
  path: state

# Websocket feed for table displays.
bridge:
  enabled: false
  host: 127.0.0.1
  port: 8766
  queue_size: 100
  backlog: 50

# Dawn narration. provider: openai, ollama, anthropic, or empty to disable.
storyteller:
  provider: ""
  model: ""
  url: ""
  temperature: 0.8

logging:
  debug: false
`

// CatalogConfig points at role catalog sources.
type CatalogConfig struct {
	Path     string `yaml:"path,omitempty"`
	RolesDir string `yaml:"roles_dir,omitempty"`
}

// StorageConfig selects the snapshot persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// BridgeConfig captures the websocket feed settings.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	// QueueSize is how many events a slow table display may fall behind.
	QueueSize int `yaml:"queue_size,omitempty"`
	// Backlog is how many events a game keeps for displays that connect late.
	Backlog int `yaml:"backlog,omitempty"`
}

// StorytellerConfig configures the LLM narrator.
type StorytellerConfig struct {
	Provider    string  `yaml:"provider,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	URL         string  `yaml:"url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// LoggingConfig toggles verbose logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug,omitempty"`
}

// ProjectConfig models .loups/config.yaml.
type ProjectConfig struct {
	Version     int               `yaml:"version"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Storage     StorageConfig     `yaml:"storage"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Storyteller StorytellerConfig `yaml:"storyteller"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Config holds the runtime configuration for a project.
type Config struct {
	// ProjectDir is the directory where the user ran `loups` from
	ProjectDir string

	// LoupsProjectDir is ProjectDir/.loups
	LoupsProjectDir string

	Project ProjectConfig
}

// InitDir creates the .loups directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .loups/
// ├── logs/    <- zap log and moderator journal
// ├── state/   <- game snapshots
// └── roles/   <- extra role catalog files
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, LoupsDir)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
		filepath.Join(root, "roles"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads the project configuration. Values come from the defaults,
// then .loups/config.yaml, then LOUPS_* environment variables. A .env file in
// the project directory is read first; variables already set win over it.
func NewConfig(projectDir string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(projectDir, ".env")); err != nil {
		return nil, err
	}
	cfg := &Config{
		ProjectDir:      projectDir,
		LoupsProjectDir: filepath.Join(projectDir, LoupsDir),
		Project:         defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides()
	cfg.Project.normalize(cfg.LoupsProjectDir)
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.LoupsProjectDir, "logs")
}

// JournalPath returns the moderator journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.log")
}

// StateDir returns the directory holding file-backed snapshots.
func (c *Config) StateDir() string {
	if c.Project.Storage.Backend == storageFile && c.Project.Storage.Path != "" {
		return c.Project.Storage.Path
	}
	return filepath.Join(c.LoupsProjectDir, "state")
}

// SQLitePath returns the database file used by the sqlite backend.
func (c *Config) SQLitePath() string {
	if c.Project.Storage.Backend == storageSQLite && c.Project.Storage.Path != "" {
		return c.Project.Storage.Path
	}
	return filepath.Join(c.LoupsProjectDir, "state", "loups.db")
}

// StorageBackend returns "file" or "sqlite".
func (c *Config) StorageBackend() string {
	return c.Project.Storage.Backend
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.LoupsProjectDir, "config.yaml")
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Catalog: CatalogConfig{RolesDir: "roles"},
		Storage: StorageConfig{Backend: storageFile},
		Storyteller: StorytellerConfig{
			Temperature: 0.8,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Storage.Backend) == "" {
		pc.Storage.Backend = storageFile
	}
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if value := env("LOUPS_CATALOG"); value != "" {
		pc.Catalog.Path = value
	}
	if value := env("LOUPS_STORAGE_BACKEND"); value != "" {
		pc.Storage.Backend = value
	}
	if value := env("LOUPS_STORAGE_PATH"); value != "" {
		pc.Storage.Path = value
	}
	if value := env("LOUPS_STORYTELLER_PROVIDER"); value != "" {
		pc.Storyteller.Provider = value
	}
	if value := env("LOUPS_STORYTELLER_MODEL"); value != "" {
		pc.Storyteller.Model = value
	}
	if value := env("LOUPS_STORYTELLER_URL"); value != "" {
		pc.Storyteller.URL = value
	}
	if value := env("LOUPS_STORYTELLER_API_KEY"); value != "" {
		pc.Storyteller.APIKey = value
	}
	if value := env("LOUPS_DEBUG"); value != "" {
		if debug, err := strconv.ParseBool(value); err == nil {
			pc.Logging.Debug = debug
		}
	}
}

// normalize resolves relative paths against the .loups directory.
func (pc *ProjectConfig) normalize(base string) {
	pc.Catalog.Path = resolvePath(base, pc.Catalog.Path)
	pc.Catalog.RolesDir = resolvePath(base, pc.Catalog.RolesDir)
	pc.Storage.Backend = strings.ToLower(strings.TrimSpace(pc.Storage.Backend))
	pc.Storage.Path = resolvePath(base, pc.Storage.Path)
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Storyteller.Provider = strings.ToLower(strings.TrimSpace(pc.Storyteller.Provider))
	pc.Storyteller.Model = strings.TrimSpace(pc.Storyteller.Model)
	pc.Storyteller.URL = strings.TrimSpace(pc.Storyteller.URL)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Storage.Backend {
	case storageFile, storageSQLite:
	default:
		return fmt.Errorf("storage.backend must be 'file' or 'sqlite'")
	}
	switch pc.Storyteller.Provider {
	case "", "openai", "ollama", "anthropic":
	default:
		return fmt.Errorf("storyteller.provider %q is not supported", pc.Storyteller.Provider)
	}
	if pc.Storyteller.Temperature < 0 || pc.Storyteller.Temperature > 2 {
		return fmt.Errorf("storyteller.temperature must be within [0, 2]")
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be a valid TCP port")
	}
	if pc.Bridge.QueueSize < 0 || pc.Bridge.Backlog < 0 {
		return fmt.Errorf("bridge.queue_size and bridge.backlog must not be negative")
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
