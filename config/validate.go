package config

import (
	"fmt"
	"strings"
)

const (
	minChunkSize = 4 * 1024
	maxChunkSize = 16 * 1024 * 1024
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.RootDir == "" {
		return ErrEmptyRootDir
	}

	if cfg.ChunkSize < minChunkSize || cfg.ChunkSize > maxChunkSize {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}

	if cfg.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}

	if err := cfg.KDFParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKDFParams, err)
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	return nil
}
