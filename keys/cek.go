package keys

import (
	"crypto/rand"
	"fmt"
	"os"
)

// CEKLen is the length of a per-box content-encryption key (AES-256).
const CEKLen = 32

// GenerateCEK returns a fresh random 32-byte content-encryption key.
func GenerateCEK() ([]byte, error) {
	cek := make([]byte, CEKLen)
	if _, err := rand.Read(cek); err != nil {
		return nil, fmt.Errorf("keys: failed to generate CEK: %w", err)
	}
	return cek, nil
}

// LoadOrCreateCEK returns the box CEK persisted at path, creating it on first
// use. The file holds the raw wrapped bytes; the CEK is generated exactly
// once per box and is stable for the box's lifetime. Unwrapping an existing
// file with the wrong master key fails with ErrKeyUnwrap.
func LoadOrCreateCEK(path string, masterKey []byte) ([]byte, error) {
	kek, err := DeriveKEK(masterKey)
	if err != nil {
		return nil, err
	}
	defer Wipe(kek)

	wrapped, err := os.ReadFile(path)
	if err == nil {
		return Unwrap(kek, wrapped)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keys: read wrapped CEK: %w", err)
	}

	cek, err := GenerateCEK()
	if err != nil {
		return nil, err
	}

	wrapped, err = Wrap(kek, cek)
	if err != nil {
		Wipe(cek)
		return nil, err
	}

	// O_EXCL so a concurrent first use cannot leave two boxes of the same
	// path with different CEKs: the loser re-reads the winner's file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		Wipe(cek)
		if os.IsExist(err) {
			return LoadOrCreateCEK(path, masterKey)
		}
		return nil, fmt.Errorf("keys: write wrapped CEK: %w", err)
	}
	if _, err := f.Write(wrapped); err != nil {
		_ = f.Close()
		Wipe(cek)
		return nil, fmt.Errorf("keys: write wrapped CEK: %w", err)
	}
	if err := f.Close(); err != nil {
		Wipe(cek)
		return nil, fmt.Errorf("keys: write wrapped CEK: %w", err)
	}

	return cek, nil
}
