package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MasterKeyFile is the persisted master-key metadata: the KDF salt and cost
// parameters plus the verification sentinel. The raw key is never stored.
type MasterKeyFile struct {
	Salt        string `json:"salt"` // hex
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"` // KiB
	Parallelism uint8  `json:"parallelism"`
	Sentinel    string `json:"sentinel"` // hex
}

// params returns the Argon2id parameters recorded in the file.
func (m *MasterKeyFile) params() Params {
	return Params{Time: m.Time, Memory: m.Memory, Parallelism: m.Parallelism}
}

// LoadMasterKeyFile reads and parses master-key metadata from path.
func LoadMasterKeyFile(path string) (*MasterKeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMasterKeyNotFound
		}
		return nil, fmt.Errorf("keys: read master key metadata: %w", err)
	}

	var m MasterKeyFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("keys: parse master key metadata: %w", err)
	}
	return &m, nil
}

// Setup derives a master key from password with fresh salt and default cost
// parameters, persists the metadata at path, and returns the key. Fails with
// ErrMasterKeyExists if metadata is already present; Setup runs exactly once
// per installation.
func Setup(path string, password []byte) ([]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrMasterKeyExists
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keys: stat master key metadata: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	params := DefaultParams()
	key, err := Derive(password, salt, params)
	if err != nil {
		return nil, err
	}

	m := &MasterKeyFile{
		Salt:        hex.EncodeToString(salt),
		Time:        params.Time,
		Memory:      params.Memory,
		Parallelism: params.Parallelism,
		Sentinel:    hex.EncodeToString(Sentinel(key)),
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		Wipe(key)
		return nil, fmt.Errorf("keys: marshal master key metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		Wipe(key)
		return nil, fmt.Errorf("keys: create metadata directory: %w", err)
	}

	// Temp-and-rename so an interrupted write cannot leave half-written
	// metadata at the authoritative path.
	tmp := filepath.Join(filepath.Dir(path), "tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		Wipe(key)
		return nil, fmt.Errorf("keys: write master key metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		Wipe(key)
		return nil, fmt.Errorf("keys: write master key metadata: %w", err)
	}

	return key, nil
}

// Unlock re-derives the master key from password against the stored salt and
// parameters and verifies it against the sentinel. A mismatch fails with
// ErrInvalidCredentials; it never returns a silently wrong key.
func Unlock(path string, password []byte) ([]byte, error) {
	m, err := LoadMasterKeyFile(path)
	if err != nil {
		return nil, err
	}

	salt, err := hex.DecodeString(m.Salt)
	if err != nil {
		return nil, fmt.Errorf("keys: malformed salt in metadata: %w", err)
	}
	sentinel, err := hex.DecodeString(m.Sentinel)
	if err != nil {
		return nil, fmt.Errorf("keys: malformed sentinel in metadata: %w", err)
	}

	key, err := Derive(password, salt, m.params())
	if err != nil {
		return nil, err
	}

	if !VerifySentinel(key, sentinel) {
		Wipe(key)
		return nil, ErrInvalidCredentials
	}

	return key, nil
}
