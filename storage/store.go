// Package storage implements the content-addressed blob store: per-user and
// per-box directory isolation, plaintext and encrypted put/get/verify/delete
// with deduplication by content hash, per-box JSON side-metadata, and quota
// accounting.
//
// Layout under the store root:
//
//	{root}/{user}/{box}/blobs/{hash}       plaintext blob
//	{root}/{user}/{box}/blobs/{hash}.enc   encrypted blob (hash of ciphertext)
//	{root}/{user}/{box}/box.json           box metadata side-file
//	{root}/{user}/{box}/box.key            wrapped per-box CEK
//	{root}/{user}/{box}/box.lock           cross-process metadata lock
//
// Blobs are immutable: created once or deleted, never rewritten in place.
// Deduplication is scoped per (user, box); cross-box dedup is deliberately
// not done.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/strongboxorg/libstrongbox-go/session"
)

const (
	metadataFileName = "box.json"
	cekFileName      = "box.key"
	lockFileName     = "box.lock"
	blobsDirName     = "blobs"
	encSuffix        = ".enc"
)

// Store is the content-addressed blob store. Safe for concurrent use; per-box
// metadata updates are serialized by an in-process mutex plus a file lock on
// the box directory for cross-process safety.
type Store struct {
	root    string
	session *session.Session
	log     *zap.Logger
	quota   *QuotaLedger

	mu       sync.Mutex
	boxLocks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovered conditions (corrupted
// metadata, ledger drift). Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithQuotaLedger attaches a usage ledger; without one, quota limits are not
// enforced and usage is not tracked.
func WithQuotaLedger(q *QuotaLedger) Option {
	return func(s *Store) { s.quota = q }
}

// NewStore creates a store rooted at root. sess supplies the master key for
// encrypted operations and may be nil for a plaintext-only store.
func NewStore(root string, sess *session.Session, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	s := &Store{
		root:     root,
		session:  sess,
		log:      zap.NewNop(),
		boxLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// validateID checks that an identifier is usable as a single path component.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func validateIDs(userID, boxID string) error {
	if err := validateID(userID); err != nil {
		return err
	}
	return validateID(boxID)
}

// --- Path helpers ---

func (s *Store) boxDir(userID, boxID string) string {
	return filepath.Join(s.root, userID, boxID)
}

func (s *Store) blobsDir(userID, boxID string) string {
	return filepath.Join(s.boxDir(userID, boxID), blobsDirName)
}

func (s *Store) blobPath(userID, boxID, hash string, encrypted bool) string {
	name := hash
	if encrypted {
		name += encSuffix
	}
	return filepath.Join(s.blobsDir(userID, boxID), name)
}

func (s *Store) metadataPath(userID, boxID string) string {
	return filepath.Join(s.boxDir(userID, boxID), metadataFileName)
}

func (s *Store) cekPath(userID, boxID string) string {
	return filepath.Join(s.boxDir(userID, boxID), cekFileName)
}

// EnsureBox initializes the directory structure and metadata side-file for a
// box. Idempotent.
func (s *Store) EnsureBox(userID, boxID string) error {
	if err := validateIDs(userID, boxID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.blobsDir(userID, boxID), 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return s.withBoxLock(userID, boxID, func() error {
		if _, err := os.Stat(s.metadataPath(userID, boxID)); err == nil {
			return nil
		}
		return s.saveMetadata(userID, boxID, newBoxMetadata(boxID))
	})
}

// masterKey fetches the session key for an encrypted operation. Any session
// failure (nil session, locked, expired) maps to ErrEncryptionNotConfigured
// so callers see one precondition error.
func (s *Store) masterKey() ([]byte, error) {
	if s.session == nil {
		return nil, ErrEncryptionNotConfigured
	}
	key, err := s.session.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptionNotConfigured, err)
	}
	return key, nil
}

// boxLock returns the in-process mutex for a box, creating it on first use.
func (s *Store) boxLock(userID, boxID string) *sync.Mutex {
	key := userID + "/" + boxID
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.boxLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.boxLocks[key] = m
	}
	return m
}

// withBoxLock runs fn holding both the in-process box mutex and a
// cross-process file lock on the box directory. All metadata
// read-modify-write cycles go through here.
func (s *Store) withBoxLock(userID, boxID string, fn func() error) error {
	m := s.boxLock(userID, boxID)
	m.Lock()
	defer m.Unlock()

	fl, err := acquireLock(filepath.Join(s.boxDir(userID, boxID), lockFileName))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer releaseLock(fl)

	return fn()
}
