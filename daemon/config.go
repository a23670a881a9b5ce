// Package daemon wires the long-running bramble service: configuration
// loading with environment overrides and the definitions directory watcher
// that mirrors tree files into the catalog.
package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bramble-labs/bramble/history"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"

	projectConfigName = "bramble.yaml"
	homeConfigName    = "config.yaml"
)

// RetentionConfig bounds how much snapshot history the daemon keeps.
type RetentionConfig struct {
	// MaxPerExecution keeps at most this many snapshots per execution.
	MaxPerExecution int `yaml:"max_per_execution" validate:"min=0"`

	// MaxAge deletes snapshots older than this duration (0 = keep forever).
	// Serialized as a Go duration string, e.g. "720h".
	MaxAge time.Duration `yaml:"max_age" validate:"min=0"`
}

// UnmarshalYAML decodes max_age from a duration string so config files can
// write "24h" instead of nanoseconds.
func (r *RetentionConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxPerExecution *int   `yaml:"max_per_execution"`
		MaxAge          string `yaml:"max_age"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxPerExecution != nil {
		r.MaxPerExecution = *raw.MaxPerExecution
	}
	if clean := strings.TrimSpace(raw.MaxAge); clean != "" {
		d, err := time.ParseDuration(clean)
		if err != nil {
			return fmt.Errorf("retention.max_age: %w", err)
		}
		r.MaxAge = d
	}
	return nil
}

// Config holds everything the daemon needs to start: listen address,
// storage locations, history retention, the watched definitions directory,
// and observability wiring.
type Config struct {
	Addr         string          `yaml:"addr" validate:"required"`
	DataDir      string          `yaml:"data_dir"`
	HistoryDB    string          `yaml:"history_db"`
	CatalogDB    string          `yaml:"catalog_db"`
	RedisAddr    string          `yaml:"redis_addr"`
	Retention    RetentionConfig `yaml:"retention"`
	WatchDir     string          `yaml:"watch_dir"`
	OTLPEndpoint string          `yaml:"otlp_endpoint"`
	LogLevel     string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

var configValidator = validator.New()

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() Config {
	return Config{
		Addr:     DefaultAddr,
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Retention: RetentionConfig{
			MaxPerExecution: history.DefaultMaxPerExecution,
		},
	}
}

// DefaultDataDir resolves ~/.bramble, falling back to a relative .bramble
// when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bramble"
	}
	return filepath.Join(home, ".bramble")
}

// LoadConfig reads a YAML config file, layers BRAMBLE_* environment
// overrides on top, and validates the result. An empty path skips the file
// and loads defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if clean := strings.TrimSpace(path); clean != "" {
		// #nosec G304 -- path comes from an explicit flag or config discovery.
		data, err := os.ReadFile(clean)
		if err != nil {
			return nil, fmt.Errorf("daemon: reading config %q: %w", clean, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("daemon: parsing config %q: %w", clean, err)
		}
	}

	expandConfigEnv(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DiscoverConfigPath resolves the config file location with first-match
// semantics: an explicit path, then ./bramble.yaml, then
// ~/.bramble/config.yaml.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverConfigPathFrom is a testable variant of DiscoverConfigPath.
func DiscoverConfigPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".bramble", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Validate checks the struct tags and reports every violation in one error.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("daemon: validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("daemon: invalid config: %s", strings.Join(msgs, "; "))
}

// HistoryDSN returns the SQLite DSN for the snapshot history database,
// defaulting to history.db under DataDir.
func (c *Config) HistoryDSN() string {
	if strings.TrimSpace(c.HistoryDB) != "" {
		return c.HistoryDB
	}
	return filepath.Join(c.DataDir, "history.db")
}

// CatalogDSN returns the SQLite DSN for the tree catalog database,
// defaulting to catalog.db under DataDir.
func (c *Config) CatalogDSN() string {
	if strings.TrimSpace(c.CatalogDB) != "" {
		return c.CatalogDB
	}
	return filepath.Join(c.DataDir, "catalog.db")
}

// HistoryRetention converts the configured bounds to history retention.
func (c *Config) HistoryRetention() history.Retention {
	return history.Retention{
		MaxPerExecution: c.Retention.MaxPerExecution,
		MaxAge:          c.Retention.MaxAge,
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandConfigEnv(cfg *Config) {
	cfg.Addr = os.ExpandEnv(cfg.Addr)
	cfg.DataDir = os.ExpandEnv(cfg.DataDir)
	cfg.HistoryDB = os.ExpandEnv(cfg.HistoryDB)
	cfg.CatalogDB = os.ExpandEnv(cfg.CatalogDB)
	cfg.RedisAddr = os.ExpandEnv(cfg.RedisAddr)
	cfg.WatchDir = os.ExpandEnv(cfg.WatchDir)
	cfg.OTLPEndpoint = os.ExpandEnv(cfg.OTLPEndpoint)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BRAMBLE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BRAMBLE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("BRAMBLE_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("BRAMBLE_CATALOG_DB"); v != "" {
		cfg.CatalogDB = v
	}
	if v := os.Getenv("BRAMBLE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("BRAMBLE_WATCH_DIR"); v != "" {
		cfg.WatchDir = v
	}
	if v := os.Getenv("BRAMBLE_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("BRAMBLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BRAMBLE_RETENTION_MAX_PER_EXECUTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("daemon: BRAMBLE_RETENTION_MAX_PER_EXECUTION: %w", err)
		}
		cfg.Retention.MaxPerExecution = n
	}
	if v := os.Getenv("BRAMBLE_RETENTION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("daemon: BRAMBLE_RETENTION_MAX_AGE: %w", err)
		}
		cfg.Retention.MaxAge = d
	}
	return nil
}
