package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bramble-labs/bramble/history"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bramble.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(config) error = %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Retention.MaxPerExecution != history.DefaultMaxPerExecution {
		t.Errorf("Retention.MaxPerExecution = %d, want %d",
			cfg.Retention.MaxPerExecution, history.DefaultMaxPerExecution)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir is empty, want a default")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
addr: "127.0.0.1:9000"
watch_dir: /srv/trees
log_level: debug
retention:
  max_per_execution: 16
  max_age: 24h
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q, want 127.0.0.1:9000", cfg.Addr)
	}
	if cfg.WatchDir != "/srv/trees" {
		t.Errorf("WatchDir = %q, want /srv/trees", cfg.WatchDir)
	}
	if cfg.Retention.MaxPerExecution != 16 {
		t.Errorf("Retention.MaxPerExecution = %d, want 16", cfg.Retention.MaxPerExecution)
	}
	if cfg.Retention.MaxAge != 24*time.Hour {
		t.Errorf("Retention.MaxAge = %v, want 24h", cfg.Retention.MaxAge)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoadConfig_PartialRetentionKeepsDefault(t *testing.T) {
	path := writeConfigFile(t, "retention:\n  max_age: 1h\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Retention.MaxPerExecution != history.DefaultMaxPerExecution {
		t.Errorf("Retention.MaxPerExecution = %d, want default %d",
			cfg.Retention.MaxPerExecution, history.DefaultMaxPerExecution)
	}
	if cfg.Retention.MaxAge != time.Hour {
		t.Errorf("Retention.MaxAge = %v, want 1h", cfg.Retention.MaxAge)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "addr: \"127.0.0.1:9000\"\nlog_level: warn\n")

	t.Setenv("BRAMBLE_ADDR", ":7070")
	t.Setenv("BRAMBLE_RETENTION_MAX_PER_EXECUTION", "8")
	t.Setenv("BRAMBLE_RETENTION_MAX_AGE", "30m")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070", cfg.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (file value untouched)", cfg.LogLevel)
	}
	if cfg.Retention.MaxPerExecution != 8 {
		t.Errorf("Retention.MaxPerExecution = %d, want 8", cfg.Retention.MaxPerExecution)
	}
	if cfg.Retention.MaxAge != 30*time.Minute {
		t.Errorf("Retention.MaxAge = %v, want 30m", cfg.Retention.MaxAge)
	}
}

func TestLoadConfig_ExpandsEnvInValues(t *testing.T) {
	t.Setenv("TEST_BRAMBLE_HOME", "/srv/bramble")
	path := writeConfigFile(t, "data_dir: ${TEST_BRAMBLE_HOME}/data\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DataDir != "/srv/bramble/data" {
		t.Errorf("DataDir = %q, want /srv/bramble/data", cfg.DataDir)
	}
}

func TestLoadConfig_RejectsBadLogLevel(t *testing.T) {
	path := writeConfigFile(t, "log_level: loud\n")

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Errorf("error = %q, want mention of LogLevel", err)
	}
}

func TestLoadConfig_RejectsBadEnvValues(t *testing.T) {
	t.Setenv("BRAMBLE_RETENTION_MAX_PER_EXECUTION", "lots")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for non-numeric retention override")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "ghost.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfig_DSNDefaults(t *testing.T) {
	cfg := Config{DataDir: "/var/lib/bramble"}
	if got := cfg.HistoryDSN(); got != filepath.Join("/var/lib/bramble", "history.db") {
		t.Errorf("HistoryDSN() = %q", got)
	}
	if got := cfg.CatalogDSN(); got != filepath.Join("/var/lib/bramble", "catalog.db") {
		t.Errorf("CatalogDSN() = %q", got)
	}

	cfg.HistoryDB = "file:hist?mode=memory"
	cfg.CatalogDB = "/tmp/cat.db"
	if got := cfg.HistoryDSN(); got != "file:hist?mode=memory" {
		t.Errorf("HistoryDSN() = %q, want explicit value", got)
	}
	if got := cfg.CatalogDSN(); got != "/tmp/cat.db" {
		t.Errorf("CatalogDSN() = %q, want explicit value", got)
	}
}

func TestConfig_HistoryRetention(t *testing.T) {
	cfg := Config{Retention: RetentionConfig{MaxPerExecution: 4, MaxAge: time.Minute}}
	ret := cfg.HistoryRetention()
	if ret.MaxPerExecution != 4 {
		t.Errorf("MaxPerExecution = %d, want 4", ret.MaxPerExecution)
	}
	if ret.MaxAge != time.Minute {
		t.Errorf("MaxAge = %v, want 1m", ret.MaxAge)
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"LOUD", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDiscoverConfigPathFrom_FirstMatchWins(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	projectConfig := filepath.Join(cwd, "bramble.yaml")
	if err := os.WriteFile(projectConfig, []byte("addr: :1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile(project config) error = %v", err)
	}

	homeConfigDir := filepath.Join(home, ".bramble")
	if err := os.MkdirAll(homeConfigDir, 0o755); err != nil {
		t.Fatalf("MkdirAll(home config dir) error = %v", err)
	}
	homeConfig := filepath.Join(homeConfigDir, "config.yaml")
	if err := os.WriteFile(homeConfig, []byte("addr: :2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile(home config) error = %v", err)
	}

	got, found, err := DiscoverConfigPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if got != projectConfig {
		t.Fatalf("path = %q, want %q", got, projectConfig)
	}
}

func TestDiscoverConfigPathFrom_HomeFallback(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	homeConfigDir := filepath.Join(home, ".bramble")
	if err := os.MkdirAll(homeConfigDir, 0o755); err != nil {
		t.Fatalf("MkdirAll(home config dir) error = %v", err)
	}
	homeConfig := filepath.Join(homeConfigDir, "config.yaml")
	if err := os.WriteFile(homeConfig, []byte("addr: :2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile(home config) error = %v", err)
	}

	got, found, err := DiscoverConfigPathFrom("", cwd, home)
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if got != homeConfig {
		t.Fatalf("path = %q, want %q", got, homeConfig)
	}
}

func TestDiscoverConfigPathFrom_ExplicitNotFound(t *testing.T) {
	_, found, err := DiscoverConfigPathFrom("/tmp/does-not-exist.yaml", t.TempDir(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
	if found {
		t.Fatal("found = true, want false")
	}
}

func TestDiscoverConfigPathFrom_NothingFound(t *testing.T) {
	_, found, err := DiscoverConfigPathFrom("", t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("DiscoverConfigPathFrom() error = %v", err)
	}
	if found {
		t.Fatal("found = true, want false")
	}
}
