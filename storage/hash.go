package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
)

// hashChunkSize is the read unit for streaming hashes (64 KiB); the whole
// input is never held in memory.
const hashChunkSize = 64 * 1024

var hexHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// HashReader computes the hex-encoded SHA-256 content hash of r, reading in
// fixed-size chunks. Read errors from r surface wrapped in ErrIOFailure.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes the content hash of the file at path and returns the
// hash together with the file size.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// validateHash checks that hash is a lowercase 64-character hex digest.
func validateHash(hash string) error {
	if !hexHashPattern.MatchString(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return nil
}
