package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = "ledger.yaml"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the top-level ledger.yaml configuration. Every field
// can be overridden by the environment variable named in its env tag.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Import   ImportConfig   `yaml:"import"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Activity ActivityConfig `yaml:"activity"`
}

// StorageConfig selects and locates the backing store.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"LEDGER_STORAGE_DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" env:"LEDGER_SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" env:"LEDGER_POSTGRES_DSN"`
}

// ImportConfig controls chart-of-accounts imports.
type ImportConfig struct {
	StrictCategories bool              `yaml:"strict_categories" env:"LEDGER_IMPORT_STRICT"`
	CategoryAliases  map[string]string `yaml:"category_aliases,omitempty" env:"LEDGER_CATEGORY_ALIASES"` // category -> account type
	Inbox            string            `yaml:"inbox" env:"LEDGER_IMPORT_INBOX"`
}

// LedgerConfig holds posting defaults.
type LedgerConfig struct {
	Actor string `yaml:"actor" env:"LEDGER_ACTOR"` // default created_by
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEDGER_LOG_LEVEL"`
	Format string `yaml:"format" env:"LEDGER_LOG_FORMAT"` // json or console
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"LEDGER_SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"LEDGER_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"LEDGER_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LEDGER_SERVER_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins,omitempty" env:"LEDGER_SERVER_CORS_ORIGINS"`
}

// ActivityConfig locates the activity log.
type ActivityConfig struct {
	Path string `yaml:"path" env:"LEDGER_ACTIVITY_LOG"` // "" disables it
}

// Load reads a ledger.yaml file from disk and applies the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault is Load, falling back to Default plus the environment when
// path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// ApplyEnv overrides cfg with any LEDGER_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ResolvePaths makes relative file locations relative to base, usually the
// directory holding the config file.
func (c *Config) ResolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.Storage.SQLitePath)
	resolve(&c.Import.Inbox)
	resolve(&c.Activity.Path)
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new ledger.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "ledger.db",
		},
		Import: ImportConfig{
			Inbox: "import",
		},
		Ledger: LedgerConfig{
			Actor: "ledger",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Activity: ActivityConfig{
			Path: "logs/activity.csv",
		},
	}
}
