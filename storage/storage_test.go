package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongboxorg/libstrongbox-go/keys"
)

// --- Helper functions ---

// newTestStore creates a plaintext-only Store in a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

// writeSource writes content to a fresh file and returns its path.
func writeSource(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source")
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path
}

func testMasterKey(seed byte) []byte {
	key := make([]byte, keys.MasterKeyLen)
	for i := range key {
		key[i] = seed
	}
	return key
}

// --- NewStore tests ---

func TestNewStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "root")
	store, err := NewStore(dir, nil)
	require.NoError(t, err)
	assert.NotNil(t, store)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStore_EmptyRoot(t *testing.T) {
	_, err := NewStore("", nil)
	assert.ErrorIs(t, err, ErrInvalidBaseDir)
}

// --- ID validation tests ---

func TestValidateID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{"plain", "u1", true},
		{"with dash", "box-2", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"slash", "a/b", false},
		{"backslash", `a\b`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateID(tt.id)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidID)
			}
		})
	}
}

// --- EnsureBox tests ---

func TestEnsureBox_Idempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.EnsureBox("u1", "b1"))
	require.NoError(t, store.EnsureBox("u1", "b1"))

	info, err := os.Stat(store.blobsDir("u1", "b1"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(store.metadataPath("u1", "b1"))
	assert.NoError(t, err)
}

// --- Put tests ---

func TestPut(t *testing.T) {
	store := newTestStore(t)
	source := writeSource(t, []byte("hello"))

	result, err := store.Put("u1", "b1", source)
	require.NoError(t, err)
	assert.Len(t, result.Hash, 64)
	assert.Equal(t, int64(5), result.Size)
	assert.False(t, result.Encrypted)

	stored, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), stored)
}

func TestPut_DedupIdempotent(t *testing.T) {
	store := newTestStore(t)
	source := writeSource(t, []byte("same bytes"))

	r1, err := store.Put("u1", "b1", source)
	require.NoError(t, err)
	r2, err := store.Put("u1", "b1", source)
	require.NoError(t, err)

	assert.Equal(t, r1.Hash, r2.Hash)

	// Exactly one blob on disk.
	entries, err := os.ReadDir(store.blobsDir("u1", "b1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPut_IsolatedPerBox(t *testing.T) {
	store := newTestStore(t)
	source := writeSource(t, []byte("shared content"))

	r1, err := store.Put("u1", "b1", source)
	require.NoError(t, err)
	r2, err := store.Put("u2", "b1", source)
	require.NoError(t, err)

	// Same hash, separate physical blobs: dedup never crosses a box.
	assert.Equal(t, r1.Hash, r2.Hash)
	assert.NotEqual(t, r1.Path, r2.Path)
	_, err = os.Stat(r1.Path)
	assert.NoError(t, err)
	_, err = os.Stat(r2.Path)
	assert.NoError(t, err)
}

func TestPut_MissingSource(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put("u1", "b1", filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestPut_InvalidIDs(t *testing.T) {
	store := newTestStore(t)
	source := writeSource(t, []byte("x"))

	_, err := store.Put("", "b1", source)
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = store.Put("u1", "../b1", source)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestPut_ConcurrentIdenticalContent(t *testing.T) {
	store := newTestStore(t)
	content := make([]byte, 8192)
	_, err := rand.Read(content)
	require.NoError(t, err)
	source := writeSource(t, content)

	var wg sync.WaitGroup
	results := make([]*PutResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := store.Put("u1", "b1", source)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0].Hash, r.Hash)
	}
	entries, err := os.ReadDir(store.blobsDir("u1", "b1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// --- Get tests ---

func TestGet_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	content := []byte("get me back")
	result, err := store.Put("u1", "b1", writeSource(t, content))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, store.Get("u1", "b1", result.Hash, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBox("u1", "b1"))

	hash := make([]byte, 32)
	err := store.Get("u1", "b1", hexHash(hash), filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_InvalidHash(t *testing.T) {
	store := newTestStore(t)
	err := store.Get("u1", "b1", "nothex", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrInvalidHash)
}

// --- Verify tests ---

func TestVerify_HelloScenario(t *testing.T) {
	store := newTestStore(t)
	result, err := store.Put("u1", "b1", writeSource(t, []byte("hello")))
	require.NoError(t, err)

	assert.True(t, store.Verify("u1", "b1", result.Hash))

	// Overwrite the stored blob's bytes; verification must flip to false.
	require.NoError(t, os.WriteFile(result.Path, []byte("HELLO"), 0600))
	assert.False(t, store.Verify("u1", "b1", result.Hash))
}

func TestVerify_MissingBlob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBox("u1", "b1"))
	assert.False(t, store.Verify("u1", "b1", hexHash(make([]byte, 32))))
}

func TestVerify_InvalidInput(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, store.Verify("", "b1", hexHash(make([]byte, 32))))
	assert.False(t, store.Verify("u1", "b1", "bogus"))
}

// --- Delete tests ---

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	result, err := store.Put("u1", "b1", writeSource(t, []byte("doomed")))
	require.NoError(t, err)

	removed, err := store.Delete("u1", "b1", result.Hash)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = os.Stat(result.Path)
	assert.True(t, os.IsNotExist(err))

	md := store.loadMetadata("u1", "b1")
	assert.NotContains(t, md.Files, result.Hash)
}

func TestDelete_UnknownHash(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBox("u1", "b1"))

	removed, err := store.Delete("u1", "b1", hexHash(make([]byte, 32)))
	require.NoError(t, err)
	assert.False(t, removed)
}

// --- Consistency tests ---

func TestCheckConsistency_Clean(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Put("u1", "b1", writeSource(t, []byte("tracked")))
	require.NoError(t, err)

	report, err := store.CheckConsistency("u1", "b1")
	require.NoError(t, err)
	assert.True(t, report.Ok())
}

func TestCheckConsistency_MissingBlob(t *testing.T) {
	store := newTestStore(t)
	result, err := store.Put("u1", "b1", writeSource(t, []byte("vanishing")))
	require.NoError(t, err)
	require.NoError(t, os.Remove(result.Path))

	report, err := store.CheckConsistency("u1", "b1")
	require.NoError(t, err)
	assert.False(t, report.Ok())
	assert.Equal(t, []string{result.Hash}, report.MissingBlobs)
}

func TestCheckConsistency_UntrackedBlob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureBox("u1", "b1"))

	stray := hexHash([]byte("stray blob content producing a hash"))
	path := filepath.Join(store.blobsDir("u1", "b1"), stray)
	require.NoError(t, os.WriteFile(path, []byte("stray"), 0600))

	report, err := store.CheckConsistency("u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{stray}, report.UntrackedBlobs)
}

// hexHash returns the hex SHA-256 of b (helper for synthetic hashes).
func hexHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
