package keys

import (
	"crypto/aes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KEKInfo is the HKDF info string for the key-encryption key.
	KEKInfo = "strongbox-key-wrap"

	// MACKeyInfo is the HKDF info string for the stream header MAC key.
	// Distinct from KEKInfo so the two subkeys are never interchangeable.
	MACKeyInfo = "strongbox-header-mac"

	// SubkeyLen is the length of HKDF-derived subkeys in bytes.
	SubkeyLen = 32
)

// kwIV is the RFC 3394 initial value used as the wrap integrity check.
var kwIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// DeriveKEK derives the key-encryption key from the master key.
func DeriveKEK(masterKey []byte) ([]byte, error) {
	return deriveSubkey(masterKey, KEKInfo)
}

// DeriveMACKey derives the stream header MAC key from the master key.
func DeriveMACKey(masterKey []byte) ([]byte, error) {
	return deriveSubkey(masterKey, MACKeyInfo)
}

// deriveSubkey expands the master key via HKDF-SHA256 with the given info
// string. No salt: the master key is already the output of a memory-hard KDF.
func deriveSubkey(masterKey []byte, info string) ([]byte, error) {
	if len(masterKey) != MasterKeyLen {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d",
			ErrInvalidKeyLength, MasterKeyLen, len(masterKey))
	}

	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, SubkeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("keys: HKDF expand failed: %w", err)
	}
	return key, nil
}

// Wrap wraps cek under kek using the AES key wrap algorithm (RFC 3394).
// Output is len(cek)+8 bytes. cek must be a multiple of 8 bytes, minimum 16.
func Wrap(kek, cek []byte) ([]byte, error) {
	if len(cek) < 16 || len(cek)%8 != 0 {
		return nil, fmt.Errorf("%w: wrap input must be a multiple of 8 bytes, minimum 16",
			ErrInvalidKeyLength)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keys: create wrap cipher: %w", err)
	}

	n := len(cek) / 8
	a := make([]byte, 8)
	copy(a, kwIV[:])
	r := make([]byte, len(cek))
	copy(r, cek)

	var block16 [16]byte
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(block16[:8], a)
			copy(block16[8:], r[(i-1)*8:i*8])
			block.Encrypt(block16[:], block16[:])

			t := uint64(n*j + i)
			copy(a, block16[:8])
			for k := 0; k < 8; k++ {
				a[7-k] ^= byte(t >> (8 * k))
			}
			copy(r[(i-1)*8:i*8], block16[8:])
		}
	}

	out := make([]byte, 0, 8+len(r))
	out = append(out, a...)
	out = append(out, r...)
	return out, nil
}

// Unwrap inverts Wrap. It fails with ErrKeyUnwrap if the wrapped blob was
// corrupted or kek is wrong; this is the first tamper-detection layer,
// independent of the stream header MAC.
func Unwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, ErrKeyUnwrap
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keys: create unwrap cipher: %w", err)
	}

	n := len(wrapped)/8 - 1
	a := make([]byte, 8)
	copy(a, wrapped[:8])
	r := make([]byte, n*8)
	copy(r, wrapped[8:])

	var block16 [16]byte
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			copy(block16[:8], a)
			for k := 0; k < 8; k++ {
				block16[7-k] ^= byte(t >> (8 * k))
			}
			copy(block16[8:], r[(i-1)*8:i*8])
			block.Decrypt(block16[:], block16[:])

			copy(a, block16[:8])
			copy(r[(i-1)*8:i*8], block16[8:])
		}
	}

	if subtle.ConstantTimeCompare(a, kwIV[:]) != 1 {
		Wipe(r)
		return nil, ErrKeyUnwrap
	}
	return r, nil
}
