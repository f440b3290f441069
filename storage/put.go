package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strongboxorg/libstrongbox-go/keys"
	"github.com/strongboxorg/libstrongbox-go/stream"
)

// PutResult describes a stored blob.
type PutResult struct {
	Hash      string // content hash (ciphertext hash for encrypted blobs)
	Size      int64  // plaintext bytes
	Path      string // blob location on disk
	Encrypted bool
}

// Put stores the file at sourcePath as a plaintext blob for (userID, boxID).
// Content-addressed and idempotent: a repeated put of identical bytes is a
// no-op beyond the hash check and returns the same hash.
func (s *Store) Put(userID, boxID, sourcePath string) (*PutResult, error) {
	if err := validateIDs(userID, boxID); err != nil {
		return nil, err
	}
	if err := s.EnsureBox(userID, boxID); err != nil {
		return nil, err
	}

	hash, size, err := HashFile(sourcePath)
	if err != nil {
		return nil, err
	}

	blobPath := s.blobPath(userID, boxID, hash, false)
	err = s.withBoxLock(userID, boxID, func() error {
		md := s.loadMetadata(userID, boxID)

		if _, statErr := os.Stat(blobPath); statErr == nil {
			// Dedup hit. Heal the metadata entry if it went missing.
			if _, ok := md.Files[hash]; !ok {
				md.Files[hash] = FileEntry{Size: size, CreatedAt: time.Now().UTC()}
				return s.saveMetadata(userID, boxID, md)
			}
			return nil
		}

		if err := s.checkQuota(md, userID, boxID, size); err != nil {
			return err
		}
		if err := s.placeBlob(userID, boxID, sourcePath, blobPath); err != nil {
			return err
		}

		md.Files[hash] = FileEntry{Size: size, CreatedAt: time.Now().UTC()}
		if err := s.saveMetadata(userID, boxID, md); err != nil {
			return err
		}
		s.chargeUsage(userID, boxID, size)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PutResult{Hash: hash, Size: size, Path: blobPath}, nil
}

// PutEncrypted encrypts the file at sourcePath under the box CEK and stores
// the ciphertext as a blob named by the ciphertext hash. Requires an unlocked
// key session; fails with ErrEncryptionNotConfigured otherwise.
func (s *Store) PutEncrypted(userID, boxID, sourcePath string) (*PutResult, error) {
	if err := validateIDs(userID, boxID); err != nil {
		return nil, err
	}

	masterKey, err := s.masterKey()
	if err != nil {
		return nil, err
	}
	defer keys.Wipe(masterKey)

	if err := s.EnsureBox(userID, boxID); err != nil {
		return nil, err
	}

	cek, err := keys.LoadOrCreateCEK(s.cekPath(userID, boxID), masterKey)
	if err != nil {
		return nil, err
	}
	defer keys.Wipe(cek)

	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	plainSize := info.Size()

	// Encrypt to a temporary location first; the blob name is the hash of
	// the ciphertext, which is unknown until the stream is complete.
	tmp := filepath.Join(s.boxDir(userID, boxID), "tmp-"+uuid.NewString())
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := stream.EncryptWithCEK(out, src, masterKey, cek); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	hash, cipherSize, err := HashFile(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}

	blobPath := s.blobPath(userID, boxID, hash, true)
	err = s.withBoxLock(userID, boxID, func() error {
		md := s.loadMetadata(userID, boxID)

		if _, statErr := os.Stat(blobPath); statErr == nil {
			_ = os.Remove(tmp)
			if _, ok := md.Files[hash]; !ok {
				md.Files[hash] = FileEntry{Encrypted: true, Size: plainSize, CreatedAt: time.Now().UTC()}
				return s.saveMetadata(userID, boxID, md)
			}
			return nil
		}

		if err := s.checkQuota(md, userID, boxID, cipherSize); err != nil {
			_ = os.Remove(tmp)
			return err
		}
		if err := os.Rename(tmp, blobPath); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}

		md.Files[hash] = FileEntry{Encrypted: true, Size: plainSize, CreatedAt: time.Now().UTC()}
		if err := s.saveMetadata(userID, boxID, md); err != nil {
			return err
		}
		s.chargeUsage(userID, boxID, cipherSize)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PutResult{Hash: hash, Size: plainSize, Path: blobPath, Encrypted: true}, nil
}

// placeBlob copies a source file into the blobs directory via temp-and-rename.
// A lost race against a concurrent put of identical bytes is harmless: the
// rename lands the same content either way.
func (s *Store) placeBlob(userID, boxID, sourcePath, blobPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer src.Close()

	tmp := filepath.Join(s.boxDir(userID, boxID), "tmp-"+uuid.NewString())
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmp, blobPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// checkQuota enforces the box byte limit, if one is set.
func (s *Store) checkQuota(md *BoxMetadata, userID, boxID string, incoming int64) error {
	limit := md.Settings.QuotaBytes
	if limit <= 0 {
		return nil
	}

	usage := s.currentUsage(userID, boxID)
	if usage+incoming > limit {
		return fmt.Errorf("%w: %d + %d bytes over limit %d", ErrQuotaExceeded, usage, incoming, limit)
	}
	return nil
}

// currentUsage reads the ledger; without one, usage is unknown and treated
// as zero (quota enforcement then only bounds single puts).
func (s *Store) currentUsage(userID, boxID string) int64 {
	if s.quota == nil {
		return 0
	}
	usage, err := s.quota.Usage(userID, boxID)
	if err != nil {
		s.log.Warn("quota ledger read failed", zap.Error(err))
		return 0
	}
	return usage
}

// chargeUsage records stored bytes in the ledger. Accounting drift is logged,
// never fatal: the blob write already succeeded.
func (s *Store) chargeUsage(userID, boxID string, n int64) {
	if s.quota == nil {
		return
	}
	if err := s.quota.adjust(userID, boxID, n); err != nil {
		s.log.Warn("quota ledger update failed",
			zap.String("user", userID), zap.String("box", boxID), zap.Error(err))
	}
}
