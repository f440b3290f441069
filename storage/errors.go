package storage

import "errors"

var (
	// ErrNotFound indicates no blob exists for the given content hash.
	ErrNotFound = errors.New("storage: blob not found")

	// ErrAlreadyExists indicates a blob already exists where one is being created.
	ErrAlreadyExists = errors.New("storage: blob already exists")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrInvalidBaseDir indicates the root directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid root directory")

	// ErrInvalidID indicates a user or box identifier that is empty or not
	// safe to use as a path component.
	ErrInvalidID = errors.New("storage: invalid user or box identifier")

	// ErrInvalidHash indicates a content hash that is not 64 hex characters.
	ErrInvalidHash = errors.New("storage: content hash must be 64 hex characters")

	// ErrEncryptionNotConfigured indicates an encrypted operation was
	// requested without an unlocked key session.
	ErrEncryptionNotConfigured = errors.New("storage: encryption not configured (no unlocked session)")

	// ErrQuotaExceeded indicates the box byte quota would be exceeded.
	ErrQuotaExceeded = errors.New("storage: box quota exceeded")

	// ErrLedgerClosed indicates a quota ledger operation after Close.
	ErrLedgerClosed = errors.New("storage: quota ledger is closed")
)
