package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/strongboxorg/libstrongbox-go/keys"
	"github.com/strongboxorg/libstrongbox-go/stream"
)

// Get copies the plaintext blob identified by hash to destPath.
// Fails with ErrNotFound if the blob is absent.
func (s *Store) Get(userID, boxID, hash, destPath string) error {
	if err := validateIDs(userID, boxID); err != nil {
		return err
	}
	if err := validateHash(hash); err != nil {
		return err
	}

	src, err := os.Open(s.blobPath(userID, boxID, hash, false))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer src.Close()

	return writeAtomically(destPath, func(w io.Writer) error {
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		return nil
	})
}

// GetEncrypted decrypts the encrypted blob identified by hash to destPath.
// Requires an unlocked session. The destination is only swapped in after the
// whole stream decrypts; a tamper or truncation failure leaves destPath
// untouched.
func (s *Store) GetEncrypted(userID, boxID, hash, destPath string) error {
	if err := validateIDs(userID, boxID); err != nil {
		return err
	}
	if err := validateHash(hash); err != nil {
		return err
	}

	masterKey, err := s.masterKey()
	if err != nil {
		return err
	}
	defer keys.Wipe(masterKey)

	src, err := os.Open(s.blobPath(userID, boxID, hash, true))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer src.Close()

	return writeAtomically(destPath, func(w io.Writer) error {
		return stream.Decrypt(w, src, masterKey)
	})
}

// writeAtomically writes via fn into a temp file next to destPath and renames
// it into place only if fn succeeds.
func writeAtomically(destPath string, fn func(io.Writer) error) error {
	tmp := filepath.Join(filepath.Dir(destPath), "tmp-"+uuid.NewString())
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	if err := fn(out); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}
