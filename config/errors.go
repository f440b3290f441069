package config

import "errors"

var (
	// ErrEmptyRootDir indicates the store root directory path is empty.
	ErrEmptyRootDir = errors.New("config: root directory must not be empty")

	// ErrInvalidChunkSize indicates the stream chunk size is out of range.
	ErrInvalidChunkSize = errors.New("config: chunk size must be between 4 KiB and 16 MiB")

	// ErrInvalidSessionTTL indicates the session TTL is not positive.
	ErrInvalidSessionTTL = errors.New("config: session TTL must be positive")

	// ErrInvalidKDFParams indicates the key derivation parameters are out of range.
	ErrInvalidKDFParams = errors.New("config: invalid key derivation parameters")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)
