package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongboxorg/libstrongbox-go/keys"
)

func testKey(seed byte) []byte {
	key := make([]byte, keys.MasterKeyLen)
	for i := range key {
		key[i] = seed
	}
	return key
}

// --- Lifecycle tests ---

func TestNew_StartsLocked(t *testing.T) {
	s := New()
	assert.False(t, s.Unlocked())

	_, err := s.Key()
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func TestUnlockWithKey(t *testing.T) {
	s := New()
	key := testKey(0x01)

	require.NoError(t, s.UnlockWithKey(key, time.Minute))
	assert.True(t, s.Unlocked())

	got, err := s.Key()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestUnlockWithKey_CallerBufferSurvives(t *testing.T) {
	s := New()
	key := testKey(0x01)

	require.NoError(t, s.UnlockWithKey(key, time.Minute))

	// The session keeps its own protected copy; the caller's buffer is intact.
	assert.Equal(t, testKey(0x01), key)
}

func TestUnlockWithKey_InvalidInput(t *testing.T) {
	s := New()

	assert.ErrorIs(t, s.UnlockWithKey(make([]byte, 16), time.Minute), ErrInvalidKey)
	assert.ErrorIs(t, s.UnlockWithKey(testKey(0x01), 0), ErrInvalidTTL)
	assert.ErrorIs(t, s.UnlockWithKey(testKey(0x01), -time.Second), ErrInvalidTTL)
}

func TestLock(t *testing.T) {
	s := New()
	require.NoError(t, s.UnlockWithKey(testKey(0x01), time.Minute))

	s.Lock()
	assert.False(t, s.Unlocked())

	_, err := s.Key()
	assert.ErrorIs(t, err, ErrSessionLocked)

	// Idempotent.
	s.Lock()
	s.Lock()
}

func TestUnlock_ReplacesPreviousKey(t *testing.T) {
	s := New()
	require.NoError(t, s.UnlockWithKey(testKey(0x01), time.Minute))
	require.NoError(t, s.UnlockWithKey(testKey(0x02), time.Minute))

	got, err := s.Key()
	require.NoError(t, err)
	assert.Equal(t, testKey(0x02), got)
}

// --- TTL tests ---

func TestKey_ExpiryAutoLocks(t *testing.T) {
	s := New()
	require.NoError(t, s.UnlockWithKey(testKey(0x01), 50*time.Millisecond))

	time.Sleep(80 * time.Millisecond)

	_, err := s.Key()
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Auto-lock persists: the next read is locked, not expired.
	_, err = s.Key()
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func TestExtend(t *testing.T) {
	s := New()
	require.NoError(t, s.UnlockWithKey(testKey(0x01), 80*time.Millisecond))
	require.NoError(t, s.Extend(time.Minute))

	time.Sleep(120 * time.Millisecond)

	_, err := s.Key()
	assert.NoError(t, err)
}

func TestExtend_WhenLocked(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Extend(time.Minute), ErrSessionLocked)
}

func TestExtend_AfterExpiry(t *testing.T) {
	s := New()
	require.NoError(t, s.UnlockWithKey(testKey(0x01), 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	assert.ErrorIs(t, s.Extend(time.Minute), ErrSessionExpired)
}

// --- Password unlock tests ---

func TestUnlockWithPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	setupKey, err := keys.Setup(path, []byte("open sesame"))
	require.NoError(t, err)

	s := New()
	require.NoError(t, s.UnlockWithPassword([]byte("open sesame"), path, time.Minute))

	got, err := s.Key()
	require.NoError(t, err)
	assert.Equal(t, setupKey, got)
}

func TestUnlockWithPassword_WrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	_, err := keys.Setup(path, []byte("open sesame"))
	require.NoError(t, err)

	s := New()
	err = s.UnlockWithPassword([]byte("open sesamee"), path, time.Minute)
	assert.ErrorIs(t, err, keys.ErrInvalidCredentials)
	assert.False(t, s.Unlocked())
}

func TestUnlockWithPassword_NoMetadata(t *testing.T) {
	s := New()
	err := s.UnlockWithPassword([]byte("pw"), filepath.Join(t.TempDir(), "missing.json"), time.Minute)
	assert.ErrorIs(t, err, keys.ErrMasterKeyNotFound)
}

// --- Concurrency tests ---

func TestConcurrentKeyAndLock(t *testing.T) {
	s := New()
	require.NoError(t, s.UnlockWithKey(testKey(0x01), time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key, err := s.Key()
				if err == nil {
					// A successful read must never observe a wiped buffer.
					assert.Equal(t, testKey(0x01), key)
				} else {
					assert.ErrorIs(t, err, ErrSessionLocked)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			s.Lock()
			_ = s.UnlockWithKey(testKey(0x01), time.Minute)
		}
	}()
	wg.Wait()
}

// --- Keystore tests ---

// Keystore round-trips need a real OS secret store; CI only checks the
// refusal heuristic wiring.
func TestPersistToKeystore_RequiresUnlock(t *testing.T) {
	s := New()
	err := s.PersistToKeystore(false)
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func TestOpenKeystore_Heuristic(t *testing.T) {
	if os.Getenv("STRONGBOX_KEYSTORE_TESTS") == "" {
		t.Skip("set STRONGBOX_KEYSTORE_TESTS to exercise the OS secret store")
	}

	_, err := openKeystore(false)
	if err != nil {
		assert.ErrorIs(t, err, ErrInsecureKeystore)
	}
}
