package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileEntry is the metadata record for one stored blob.
type FileEntry struct {
	Encrypted bool      `json:"encrypted"`
	Size      int64     `json:"size"` // plaintext bytes
	CreatedAt time.Time `json:"created_at"`
}

// BoxSettings holds per-box configuration.
type BoxSettings struct {
	// QuotaBytes caps the on-disk bytes for the box. Zero means unlimited.
	QuotaBytes int64 `json:"quota_bytes,omitempty"`

	// Description is a free-form box label for the metadata layer.
	Description string `json:"description,omitempty"`
}

// BoxMetadata is the per-box side-file: one entry per blob on disk, plus the
// box settings. Invariant: the Files map and the blobs directory are a
// bijection (checkable via CheckConsistency).
type BoxMetadata struct {
	BoxID    string               `json:"box_id"`
	Files    map[string]FileEntry `json:"files"` // key: content hash
	Settings BoxSettings          `json:"settings"`
}

// newBoxMetadata returns an empty metadata record for a box.
func newBoxMetadata(boxID string) *BoxMetadata {
	return &BoxMetadata{
		BoxID: boxID,
		Files: make(map[string]FileEntry),
	}
}

// loadMetadata reads the box side-file. A missing, unreadable, or corrupted
// file yields an empty default and a log entry — losing a side-index is a
// usability problem, not a security one, so it never propagates.
func (s *Store) loadMetadata(userID, boxID string) *BoxMetadata {
	path := s.metadataPath(userID, boxID)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read box metadata, using empty default",
				zap.String("path", path), zap.Error(err))
		}
		return newBoxMetadata(boxID)
	}

	var md BoxMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		s.log.Warn("corrupted box metadata, using empty default",
			zap.String("path", path), zap.Error(err))
		return newBoxMetadata(boxID)
	}
	if md.Files == nil {
		md.Files = make(map[string]FileEntry)
	}
	if md.BoxID == "" {
		md.BoxID = boxID
	}
	return &md
}

// saveMetadata persists the side-file via temp-and-rename so readers never
// observe a half-written record.
func (s *Store) saveMetadata(userID, boxID string, md *BoxMetadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal box metadata: %w", err)
	}

	path := s.metadataPath(userID, boxID)
	tmp := filepath.Join(filepath.Dir(path), "tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// LoadBoxSettings returns the box settings, or the zero value if the box or
// its metadata does not exist (or is corrupted).
func (s *Store) LoadBoxSettings(userID, boxID string) BoxSettings {
	if err := validateIDs(userID, boxID); err != nil {
		return BoxSettings{}
	}
	return s.loadMetadata(userID, boxID).Settings
}

// SaveBoxSettings replaces the box settings, preserving the file index.
func (s *Store) SaveBoxSettings(userID, boxID string, settings BoxSettings) error {
	if err := validateIDs(userID, boxID); err != nil {
		return err
	}
	if err := s.EnsureBox(userID, boxID); err != nil {
		return err
	}

	return s.withBoxLock(userID, boxID, func() error {
		md := s.loadMetadata(userID, boxID)
		md.Settings = settings
		return s.saveMetadata(userID, boxID, md)
	})
}
