package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/99designs/keyring"

	"github.com/strongboxorg/libstrongbox-go/keys"
)

const (
	// keystoreService is the service name registered with the OS secret store.
	keystoreService = "strongbox"

	// keystoreItemKey is the item key under which the master key is persisted.
	keystoreItemKey = "master-key"
)

// insecureBackends lists secret-store backends that hold secrets in files an
// attacker with filesystem access can read or brute-force offline. Refusing
// them is a defense-in-depth heuristic, not a cryptographic guarantee.
var insecureBackends = map[keyring.BackendType]bool{
	keyring.FileBackend: true,
	keyring.PassBackend: true,
}

// openKeystore opens the highest-priority available OS secret-store backend.
// A known-insecure backend is refused unless force is set.
func openKeystore(force bool) (keyring.Keyring, error) {
	backends := keyring.AvailableBackends()
	if len(backends) == 0 {
		return nil, ErrKeystoreUnavailable
	}

	backend := backends[0]
	if insecureBackends[backend] && !force {
		return nil, fmt.Errorf("%w: %s", ErrInsecureKeystore, backend)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:     keystoreService,
		AllowedBackends: []keyring.BackendType{backend},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeystoreUnavailable, err)
	}
	return ring, nil
}

// PersistToKeystore stores the currently unlocked master key in the OS secret
// store so a later process can re-unlock without the password. Convenience
// persistence only; correctness never depends on it.
func (s *Session) PersistToKeystore(force bool) error {
	key, err := s.Key()
	if err != nil {
		return err
	}
	defer keys.Wipe(key)

	ring, err := openKeystore(force)
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:         keystoreItemKey,
		Data:        key,
		Label:       "Strongbox master key",
		Description: "strongbox vault master key",
	})
	if err != nil {
		return fmt.Errorf("session: persist key to keystore: %w", err)
	}
	return nil
}

// LoadFromKeystore retrieves a previously persisted master key from the OS
// secret store and unlocks the session with it for ttl.
func (s *Session) LoadFromKeystore(ttl time.Duration, force bool) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	ring, err := openKeystore(force)
	if err != nil {
		return err
	}

	item, err := ring.Get(keystoreItemKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return ErrKeystoreKeyNotFound
		}
		return fmt.Errorf("session: load key from keystore: %w", err)
	}
	defer keys.Wipe(item.Data)

	return s.UnlockWithKey(item.Data, ttl)
}

// RemoveFromKeystore deletes the persisted master key, if any.
func (s *Session) RemoveFromKeystore(force bool) error {
	ring, err := openKeystore(force)
	if err != nil {
		return err
	}

	if err := ring.Remove(keystoreItemKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("session: remove key from keystore: %w", err)
	}
	return nil
}
