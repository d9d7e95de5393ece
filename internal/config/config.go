// Package config holds runtime configuration for claude-remote.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all claude-remote configuration. Values are read once at
// startup; there is no runtime reload.
type Config struct {
	General General `toml:"general"`
	Server  Server  `toml:"server"`
	Indexer Indexer `toml:"indexer"`
	Idle    Idle    `toml:"idle"`
	Notify  Notify  `toml:"notify"`
	Tmux    Tmux    `toml:"tmux"`
}

// General holds filesystem paths.
type General struct {
	// LogRoot is the directory tree containing session JSONL files,
	// typically ~/.claude/projects.
	LogRoot string `toml:"log_root"`
	// DBPath is the SQLite index database file.
	DBPath string `toml:"db_path"`
}

// Server holds HTTP listen settings.
type Server struct {
	Addr string `toml:"addr"`
}

// Indexer holds ingestion timing.
type Indexer struct {
	PollInterval      time.Duration `toml:"poll_interval"`
	ReconcileInterval time.Duration `toml:"reconcile_interval"`
}

// Idle holds idle-detection thresholds.
type Idle struct {
	Threshold time.Duration `toml:"threshold"`
	Cooldown  time.Duration `toml:"cooldown"`
	Interval  time.Duration `toml:"interval"`
}

// Notify holds notification rate limits.
type Notify struct {
	GlobalHourlyCap int           `toml:"global_hourly_cap"`
	Cooldown        time.Duration `toml:"cooldown"`
	DeliveryTimeout time.Duration `toml:"delivery_timeout"`
}

// Tmux holds external binary paths and naming.
type Tmux struct {
	TmuxBin       string `toml:"tmux_bin"`
	ClaudeBin     string `toml:"claude_bin"`
	SessionPrefix string `toml:"session_prefix"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		General: General{
			LogRoot: filepath.Join(home, ".claude", "projects"),
			DBPath:  filepath.Join(home, ".claude-remote", "index.db"),
		},
		Server: Server{
			Addr: "127.0.0.1:7860",
		},
		Indexer: Indexer{
			PollInterval:      2 * time.Second,
			ReconcileInterval: 60 * time.Second,
		},
		Idle: Idle{
			Threshold: 30 * time.Second,
			Cooldown:  5 * time.Minute,
			Interval:  15 * time.Second,
		},
		Notify: Notify{
			GlobalHourlyCap: 10,
			Cooldown:        5 * time.Minute,
			DeliveryTimeout: 10 * time.Second,
		},
		Tmux: Tmux{
			TmuxBin:       "tmux",
			ClaudeBin:     "claude",
			SessionPrefix: "claude-remote-",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claude-remote")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-remote")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks that the configuration is usable at startup. A missing
// log root or an uncreatable database directory is an unrecoverable
// startup failure.
func (c Config) Validate() error {
	info, err := os.Stat(c.General.LogRoot)
	if err != nil {
		return fmt.Errorf("log root %s: %w", c.General.LogRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("log root %s is not a directory", c.General.LogRoot)
	}
	if err := os.MkdirAll(filepath.Dir(c.General.DBPath), 0o750); err != nil {
		return fmt.Errorf("creating database dir: %w", err)
	}
	if c.Indexer.PollInterval <= 0 || c.Idle.Interval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
