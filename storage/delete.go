package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Delete removes the plaintext blob identified by hash and its metadata
// entry. Returns false if the hash is unknown to the box. File removal and
// the metadata update succeed together or the operation reports failure.
func (s *Store) Delete(userID, boxID, hash string) (bool, error) {
	return s.deleteBlob(userID, boxID, hash, false)
}

// DeleteEncrypted removes the encrypted blob identified by hash.
func (s *Store) DeleteEncrypted(userID, boxID, hash string) (bool, error) {
	return s.deleteBlob(userID, boxID, hash, true)
}

func (s *Store) deleteBlob(userID, boxID, hash string, encrypted bool) (bool, error) {
	if err := validateIDs(userID, boxID); err != nil {
		return false, err
	}
	if err := validateHash(hash); err != nil {
		return false, err
	}

	blobPath := s.blobPath(userID, boxID, hash, encrypted)
	removed := false
	err := s.withBoxLock(userID, boxID, func() error {
		md := s.loadMetadata(userID, boxID)
		// An entry of the other variant is a different blob; deleting it here
		// would orphan its file.
		entry, ok := md.Files[hash]
		tracked := ok && entry.Encrypted == encrypted

		info, statErr := os.Stat(blobPath)
		onDisk := statErr == nil
		if !tracked && !onDisk {
			return nil
		}

		var size int64
		if onDisk {
			size = info.Size()
			if err := os.Remove(blobPath); err != nil {
				return fmt.Errorf("%w: %w", ErrIOFailure, err)
			}
		}
		if tracked {
			delete(md.Files, hash)
			if err := s.saveMetadata(userID, boxID, md); err != nil {
				return err
			}
		}

		s.chargeUsage(userID, boxID, -size)
		removed = true
		return nil
	})
	return removed, err
}

// FileInfo describes one metadata entry of a box.
type FileInfo struct {
	Hash      string
	Size      int64
	CreatedAt time.Time
	Encrypted bool
}

// ListEncryptedFiles returns the box's metadata entries marked encrypted,
// ordered by hash.
func (s *Store) ListEncryptedFiles(userID, boxID string) ([]FileInfo, error) {
	if err := validateIDs(userID, boxID); err != nil {
		return nil, err
	}

	md := s.loadMetadata(userID, boxID)
	var files []FileInfo
	for hash, entry := range md.Files {
		if !entry.Encrypted {
			continue
		}
		files = append(files, FileInfo{
			Hash:      hash,
			Size:      entry.Size,
			CreatedAt: entry.CreatedAt,
			Encrypted: true,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Hash < files[j].Hash })
	return files, nil
}

// ConsistencyReport lists violations of the blob ⇄ metadata bijection.
type ConsistencyReport struct {
	// MissingBlobs are hashes with a metadata entry but no file on disk.
	MissingBlobs []string

	// UntrackedBlobs are blob files with no metadata entry.
	UntrackedBlobs []string
}

// Ok reports whether the bijection is intact.
func (r *ConsistencyReport) Ok() bool {
	return len(r.MissingBlobs) == 0 && len(r.UntrackedBlobs) == 0
}

// CheckConsistency verifies that every blob on disk has exactly one metadata
// entry and vice versa. It reports discrepancies and never repairs them.
func (s *Store) CheckConsistency(userID, boxID string) (*ConsistencyReport, error) {
	if err := validateIDs(userID, boxID); err != nil {
		return nil, err
	}

	report := &ConsistencyReport{}
	err := s.withBoxLock(userID, boxID, func() error {
		md := s.loadMetadata(userID, boxID)

		onDisk := make(map[string]bool)
		entries, err := os.ReadDir(s.blobsDir(userID, boxID))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			hash := strings.TrimSuffix(name, encSuffix)
			if validateHash(hash) != nil {
				continue // temp files and strays are not blobs
			}
			onDisk[hash] = true
			if _, ok := md.Files[hash]; !ok {
				report.UntrackedBlobs = append(report.UntrackedBlobs, hash)
			}
		}

		for hash := range md.Files {
			if !onDisk[hash] {
				report.MissingBlobs = append(report.MissingBlobs, hash)
			}
		}
		sort.Strings(report.MissingBlobs)
		sort.Strings(report.UntrackedBlobs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
