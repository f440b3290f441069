package storage

import "os"

// Verify recomputes the content hash of the on-disk plaintext blob and
// compares it to hash. Unlike the rest of the API, verification normalizes
// every failure mode — missing blob, unreadable file, hash mismatch — to
// false: it is a health check, not an authoritative error report.
func (s *Store) Verify(userID, boxID, hash string) bool {
	return s.verifyBlob(userID, boxID, hash, false)
}

// VerifyEncrypted recomputes the hash of the on-disk ciphertext (the blob is
// named by ciphertext hash, so no key or session is needed).
func (s *Store) VerifyEncrypted(userID, boxID, hash string) bool {
	return s.verifyBlob(userID, boxID, hash, true)
}

func (s *Store) verifyBlob(userID, boxID, hash string, encrypted bool) bool {
	if validateIDs(userID, boxID) != nil || validateHash(hash) != nil {
		return false
	}

	path := s.blobPath(userID, boxID, hash, encrypted)
	if _, err := os.Stat(path); err != nil {
		return false
	}

	actual, _, err := HashFile(path)
	if err != nil {
		return false
	}
	return actual == hash
}
