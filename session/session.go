// Package session holds the unlocked master key for the process.
//
// A Session is created locked. Unlocking stores the key in a memguard enclave
// with an expiry; any read past the expiry auto-locks the session. Locking
// destroys the enclave, which wipes the backing memory best-effort (the Go
// runtime may have relocated copies; this is defense-in-depth, not a
// guarantee).
//
// The session is an explicit, injectable object rather than package-global
// state; application wiring may hold a single shared instance.
package session

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/strongboxorg/libstrongbox-go/keys"
)

// Session is a process-wide, time-limited holder of the unlocked master key.
// Safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	enclave   *memguard.Enclave
	expiresAt time.Time
}

// New returns a locked session.
func New() *Session {
	return &Session{}
}

// UnlockWithKey unlocks the session with a raw 32-byte master key for the
// given TTL. The caller's key buffer is not modified; the session keeps its
// own protected copy.
func (s *Session) UnlockWithKey(key []byte, ttl time.Duration) error {
	if len(key) != keys.MasterKeyLen {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	// NewEnclave wipes its input; seal a copy so the caller's buffer survives.
	buf := make([]byte, len(key))
	copy(buf, key)
	enclave := memguard.NewEnclave(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
	s.enclave = enclave
	s.expiresAt = time.Now().Add(ttl)
	return nil
}

// UnlockWithPassword derives the master key from password against the
// master-key metadata at metadataPath and unlocks the session for ttl.
// A wrong password fails with keys.ErrInvalidCredentials.
func (s *Session) UnlockWithPassword(password []byte, metadataPath string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	key, err := keys.Unlock(metadataPath, password)
	if err != nil {
		return err
	}
	defer keys.Wipe(key)

	return s.UnlockWithKey(key, ttl)
}

// Key returns a copy of the unlocked master key. The caller should wipe the
// copy when done (keys.Wipe). Fails with ErrSessionLocked when locked, and
// with ErrSessionExpired when the TTL has passed — in which case the session
// auto-locks, so subsequent reads keep failing until the next unlock.
func (s *Session) Key() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enclave == nil {
		return nil, ErrSessionLocked
	}
	if time.Now().After(s.expiresAt) {
		s.dropLocked()
		return nil, ErrSessionExpired
	}

	buf, err := s.enclave.Open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	key := make([]byte, buf.Size())
	copy(key, buf.Bytes())
	return key, nil
}

// Unlocked reports whether the session currently holds a non-expired key.
// Advisory only: the state may change immediately after it returns.
func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enclave != nil && !time.Now().After(s.expiresAt)
}

// Extend pushes the expiry d further into the future. Only valid while
// unlocked and not yet expired.
func (s *Session) Extend(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enclave == nil {
		return ErrSessionLocked
	}
	if time.Now().After(s.expiresAt) {
		s.dropLocked()
		return ErrSessionExpired
	}

	s.expiresAt = s.expiresAt.Add(d)
	return nil
}

// Lock clears the session. Idempotent.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

// dropLocked destroys the enclave contents. Caller holds s.mu.
func (s *Session) dropLocked() {
	if s.enclave == nil {
		return
	}
	if buf, err := s.enclave.Open(); err == nil {
		buf.Destroy()
	}
	s.enclave = nil
	s.expiresAt = time.Time{}
}
