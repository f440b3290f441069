// Package keys implements the Strongbox key hierarchy: Argon2id password
// derivation with a persisted verification sentinel, HKDF-SHA256 subkey
// derivation with domain-separated info strings, RFC 3394 AES key wrap for
// per-box content-encryption keys, and the on-disk master-key metadata file.
//
// Hierarchy:
//
//	password --Argon2id--> master key --HKDF("strongbox-key-wrap")--> KEK
//	                                 \-HKDF("strongbox-header-mac")-> MAC key
//	KEK --AES-KW--> wrapped per-box CEK
package keys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters for first-time setup.
	Argon2Time        = 3
	Argon2Memory      = 64 * 1024 // KiB
	Argon2Parallelism = 1

	// MasterKeyLen is the derived master key length in bytes (AES-256).
	MasterKeyLen = 32

	// SaltLen is the length of a freshly generated KDF salt.
	SaltLen = 16

	// sentinelLabel is the fixed HMAC label for wrong-password detection.
	// The sentinel only detects a bad password; nothing is derived from it.
	sentinelLabel = "master-key-sentinel"
)

// Params holds the Argon2id cost parameters persisted alongside the salt so
// later derivations reproduce the same key from the same password.
type Params struct {
	Time        uint32
	Memory      uint32 // KiB
	Parallelism uint8
}

// DefaultParams returns the setup-time Argon2id cost parameters.
func DefaultParams() Params {
	return Params{
		Time:        Argon2Time,
		Memory:      Argon2Memory,
		Parallelism: Argon2Parallelism,
	}
}

// Validate checks that the parameters are usable by Argon2id.
func (p Params) Validate() error {
	if p.Time == 0 || p.Memory == 0 || p.Parallelism == 0 {
		return ErrInvalidParams
	}
	return nil
}

// Derive derives a 32-byte master key from a password using Argon2id.
// Deterministic for identical inputs.
func Derive(password, salt []byte, p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt is empty", ErrInvalidParams)
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Parallelism, MasterKeyLen), nil
}

// GenerateSalt returns SaltLen cryptographically secure random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keys: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Sentinel computes HMAC-SHA256(key, "master-key-sentinel"). Stored next to
// the KDF parameters so a wrong password is detected instead of silently
// producing a wrong key.
func Sentinel(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sentinelLabel))
	return mac.Sum(nil)
}

// VerifySentinel reports whether key reproduces the stored sentinel.
// Comparison is constant time.
func VerifySentinel(key, sentinel []byte) bool {
	return hmac.Equal(Sentinel(key), sentinel)
}

// Wipe zeroes a transient key buffer. Best-effort: the runtime may have
// copied the slice contents before the wipe.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
