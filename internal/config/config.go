// Package config loads habitus settings from the config file, a .env file
// and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/julianstephens/habitus/internal/constants"
)

// Config is the merged configuration.
type Config struct {
	// Database is a SQLite path, a postgres:// URL without a password, or
	// "keyring" for the connection string stored in the OS keyring.
	Database        string `toml:"database"`
	SessionBackend  string `toml:"session_backend"`
	Debug           bool   `toml:"debug"`
	BackupRetention int    `toml:"backup_retention"`
	// Journal is a file that receives one JSON line per committed change.
	// Empty disables it.
	Journal string `toml:"journal,omitempty"`
}

// Overrides carries flag and environment values. Zero values are unset.
type Overrides struct {
	Database        string
	SessionBackend  string
	Debug           bool
	BackupRetention int
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) Config {
	return Config{
		Database:        filepath.Join(dir, constants.DefaultDBName),
		SessionBackend:  constants.SessionBackendFile,
		BackupRetention: constants.MaxBackups,
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// LoadEnv reads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the TOML file at path over the defaults for dir. A missing file
// yields the defaults.
func Load(dir, path string) (Config, error) {
	cfg := Default(dir)
	meta, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	if cfg.Database, err = ExpandHome(cfg.Database); err != nil {
		return Config{}, err
	}
	if cfg.Journal, err = ExpandHome(cfg.Journal); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as TOML, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Apply returns cfg with the set overrides replacing file values.
func (c Config) Apply(o Overrides) (Config, error) {
	if o.Database != "" {
		db, err := ExpandHome(o.Database)
		if err != nil {
			return Config{}, err
		}
		c.Database = db
	}
	if o.SessionBackend != "" {
		c.SessionBackend = o.SessionBackend
	}
	if o.Debug {
		c.Debug = true
	}
	if o.BackupRetention > 0 {
		c.BackupRetention = o.BackupRetention
	}
	return c, c.Validate()
}

// IsPostgres reports whether Database names a server rather than a file.
func (c Config) IsPostgres() bool {
	return c.Database == constants.DatabaseFromKeyring ||
		strings.HasPrefix(c.Database, "postgres://") || strings.HasPrefix(c.Database, "postgresql://")
}

// ConnString is the Postgres connection string, empty when it comes from
// the keyring.
func (c Config) ConnString() string {
	if c.Database == constants.DatabaseFromKeyring {
		return ""
	}
	return c.Database
}

// Validate checks value ranges. Postgres credentials are checked by the opener.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return errors.New("database must not be empty")
	}
	switch c.SessionBackend {
	case "", constants.SessionBackendFile, constants.SessionBackendKeyring, "none":
	default:
		return fmt.Errorf("unknown session backend %q (use file, keyring or none)", c.SessionBackend)
	}
	if c.BackupRetention < 0 {
		return fmt.Errorf("backup_retention must not be negative, got %d", c.BackupRetention)
	}
	return nil
}
