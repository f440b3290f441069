package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- CEK tests ---

func TestGenerateCEK(t *testing.T) {
	c1, err := GenerateCEK()
	require.NoError(t, err)
	assert.Len(t, c1, CEKLen)

	c2, err := GenerateCEK()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestLoadOrCreateCEK_StableAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.key")
	master := testMasterKey(0x11)

	c1, err := LoadOrCreateCEK(path, master)
	require.NoError(t, err)
	assert.Len(t, c1, CEKLen)

	c2, err := LoadOrCreateCEK(path, master)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestLoadOrCreateCEK_FileHoldsWrappedBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.key")
	master := testMasterKey(0x11)

	cek, err := LoadOrCreateCEK(path, master)
	require.NoError(t, err)

	// On disk: wrapped, not the raw key.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, raw, CEKLen+8)
	assert.NotContains(t, string(raw), string(cek))

	kek, err := DeriveKEK(master)
	require.NoError(t, err)
	unwrapped, err := Unwrap(kek, raw)
	require.NoError(t, err)
	assert.Equal(t, cek, unwrapped)
}

func TestLoadOrCreateCEK_WrongMasterKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.key")

	_, err := LoadOrCreateCEK(path, testMasterKey(0x11))
	require.NoError(t, err)

	_, err = LoadOrCreateCEK(path, testMasterKey(0x22))
	assert.ErrorIs(t, err, ErrKeyUnwrap)
}

func TestLoadOrCreateCEK_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.key")
	master := testMasterKey(0x11)

	_, err := LoadOrCreateCEK(path, master)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, err = LoadOrCreateCEK(path, master)
	assert.ErrorIs(t, err, ErrKeyUnwrap)
}
