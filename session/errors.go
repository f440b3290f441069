package session

import "errors"

var (
	// ErrSessionLocked indicates a key read while no key is unlocked.
	ErrSessionLocked = errors.New("session: locked")

	// ErrSessionExpired indicates the unlock TTL has passed; the session has
	// auto-locked.
	ErrSessionExpired = errors.New("session: expired")

	// ErrInvalidTTL indicates a non-positive unlock TTL.
	ErrInvalidTTL = errors.New("session: TTL must be positive")

	// ErrInvalidKey indicates a key of the wrong length.
	ErrInvalidKey = errors.New("session: invalid key length")

	// ErrInsecureKeystore indicates the available OS secret-store backend is
	// known-insecure and persistence was not forced.
	ErrInsecureKeystore = errors.New("session: insecure keystore backend refused")

	// ErrKeystoreUnavailable indicates no OS secret-store backend is usable.
	ErrKeystoreUnavailable = errors.New("session: no keystore backend available")

	// ErrKeystoreKeyNotFound indicates no persisted key exists in the keystore.
	ErrKeystoreKeyNotFound = errors.New("session: no key persisted in keystore")
)
