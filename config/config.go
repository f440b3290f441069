// Package config loads and validates the vault configuration: store layout,
// stream chunk size, key session TTL, and key derivation cost parameters.
//
// Configuration is resolved in the usual precedence order: explicit file,
// then STRONGBOX_* environment variables, then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/strongboxorg/libstrongbox-go/keys"
	"github.com/strongboxorg/libstrongbox-go/stream"
)

const (
	// DefaultSessionTTL is how long an unlocked key session lasts without
	// an explicit extension.
	DefaultSessionTTL = 15 * time.Minute

	// envPrefix scopes environment variable overrides (STRONGBOX_ROOT_DIR,
	// STRONGBOX_LOG_LEVEL, ...).
	envPrefix = "STRONGBOX"

	configFileName = "config.yaml"
	ledgerFileName = "usage.db"
)

// Config holds all vault settings.
type Config struct {
	// RootDir is the store root; user and box directories live beneath it.
	RootDir string `mapstructure:"root_dir"`

	// LedgerPath locates the quota ledger database. Empty means
	// "{root_dir}/usage.db".
	LedgerPath string `mapstructure:"ledger_path"`

	// ChunkSize is the plaintext chunk size for encrypted streams.
	ChunkSize int `mapstructure:"chunk_size"`

	// SessionTTL bounds how long the master key stays unlocked.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// KDFTime, KDFMemory, and KDFParallelism are the Argon2id cost
	// parameters used when initializing a new master key.
	KDFTime        uint32 `mapstructure:"kdf_time"`
	KDFMemory      uint32 `mapstructure:"kdf_memory"`
	KDFParallelism uint8  `mapstructure:"kdf_parallelism"`

	LogLevel string `mapstructure:"log_level"`
}

// DefaultRootDir returns the per-user default store root (~/.strongbox).
func DefaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".strongbox")
}

// ConfigPath returns the configuration file location under rootDir.
func ConfigPath(rootDir string) string {
	return filepath.Join(rootDir, configFileName)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RootDir:        DefaultRootDir(),
		ChunkSize:      stream.DefaultChunkSize,
		SessionTTL:     DefaultSessionTTL,
		KDFTime:        keys.Argon2Time,
		KDFMemory:      keys.Argon2Memory,
		KDFParallelism: keys.Argon2Parallelism,
		LogLevel:       "info",
	}
}

// Load reads configuration from path, applying environment overrides and
// defaults for unset keys. An empty path skips the file and resolves from
// environment and defaults alone; a non-empty path must exist.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("root_dir", defaults.RootDir)
	v.SetDefault("ledger_path", "")
	v.SetDefault("chunk_size", defaults.ChunkSize)
	v.SetDefault("session_ttl", defaults.SessionTTL)
	v.SetDefault("kdf_time", defaults.KDFTime)
	v.SetDefault("kdf_memory", defaults.KDFMemory)
	v.SetDefault("kdf_parallelism", defaults.KDFParallelism)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolvedLedgerPath returns the quota ledger location, defaulting into the
// store root.
func (c Config) ResolvedLedgerPath() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}
	return filepath.Join(c.RootDir, ledgerFileName)
}

// KDFParams returns the configured Argon2id parameters.
func (c Config) KDFParams() keys.Params {
	return keys.Params{
		Time:        c.KDFTime,
		Memory:      c.KDFMemory,
		Parallelism: c.KDFParallelism,
	}
}

// Save writes the configuration to path as YAML, creating parent directories
// as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	v := viper.New()
	v.Set("root_dir", cfg.RootDir)
	v.Set("ledger_path", cfg.LedgerPath)
	v.Set("chunk_size", cfg.ChunkSize)
	v.Set("session_ttl", cfg.SessionTTL.String())
	v.Set("kdf_time", cfg.KDFTime)
	v.Set("kdf_memory", cfg.KDFMemory)
	v.Set("kdf_parallelism", cfg.KDFParallelism)
	v.Set("log_level", strings.ToLower(cfg.LogLevel))

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
