package keys

import "errors"

var (
	// ErrInvalidCredentials indicates the password does not match the stored sentinel.
	ErrInvalidCredentials = errors.New("keys: invalid credentials")

	// ErrKeyUnwrap indicates the wrapped key is corrupted or the KEK is wrong.
	ErrKeyUnwrap = errors.New("keys: key unwrap failed")

	// ErrInvalidKeyLength indicates a key has an unsupported length.
	ErrInvalidKeyLength = errors.New("keys: invalid key length")

	// ErrMasterKeyExists indicates master-key metadata is already initialized.
	ErrMasterKeyExists = errors.New("keys: master key metadata already exists")

	// ErrMasterKeyNotFound indicates no master-key metadata file exists yet.
	ErrMasterKeyNotFound = errors.New("keys: master key metadata not found")

	// ErrInvalidParams indicates Argon2id parameters are out of range.
	ErrInvalidParams = errors.New("keys: invalid key derivation parameters")
)
