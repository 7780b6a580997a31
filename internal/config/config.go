package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// GitHub contains settings for the GitHub storage backend.
type GitHub struct {
	Token       string `toml:"token"`
	DefaultRepo string `toml:"default_repo"`
	APIURL      string `toml:"api_url"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Audit contains audit log configuration.
type Audit struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for daemon log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Daemon contains configuration for daemon mode timing.
type Daemon struct {
	IntervalMinutes   int `toml:"interval_minutes"`
	ErrorRetryMinutes int `toml:"error_retry_minutes"`
}

// Config encapsulates all configuration values for termbackup.
//
// Configuration sections by subsystem:
//   - GitHub: token, default storage repository, API base URL
//   - Paths: data directory (profiles, tmp, audit log, keys) and log directory
//   - Audit: append-only audit log toggle
//   - Logging: daemon log format and level
//   - Daemon: backup loop intervals
type Config struct {
	GitHub  GitHub  `toml:"github"`
	Paths   Paths   `toml:"paths"`
	Audit   Audit   `toml:"audit"`
	Logging Logging `toml:"logging"`
	Daemon  Daemon  `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/termbackup/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories termbackup needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.ProfilesDir(), c.TempDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProfilesDir returns the directory holding profile JSON files.
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.Paths.DataDir, "profiles")
}

// TempDir returns the scratch directory for archive assembly and downloads.
func (c *Config) TempDir() string {
	return filepath.Join(c.Paths.DataDir, "tmp")
}

// AuditLogPath returns the path of the append-only audit log.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.Paths.DataDir, "audit.log")
}

// HistoryDBPath returns the path of the local run history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// SigningKeyPath returns the path of the sealed Ed25519 private key.
func (c *Config) SigningKeyPath() string {
	return filepath.Join(c.Paths.DataDir, "signing_key.sealed")
}

// SigningPubPath returns the path of the Ed25519 public key PEM.
func (c *Config) SigningPubPath() string {
	return filepath.Join(c.Paths.DataDir, "signing_key.pub")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "termbackupd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Save writes the configuration back to path as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
