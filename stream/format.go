// Package stream implements the SBX1 chunked authenticated-encryption format
// used for Strongbox blobs at rest.
//
// Layout (big-endian):
//
//	magic(4)="SBX1" | version(1) | alg_id(1) | wrapped_len(2,u16) |
//	wrapped_cek(wrapped_len) | nonce_seed_len(1) | nonce_seed(nonce_seed_len) |
//	header_mac(32)
//
// followed by zero or more body records:
//
//	ciphertext_len(4,u32) | ciphertext(ciphertext_len)
//
// The header MAC is HMAC-SHA256 over all preceding header bytes, keyed by a
// master-key-derived MAC key (domain-separated from the KEK). Each chunk is
// sealed with AES-256-GCM under a deterministic per-chunk nonce derived from
// a fresh random seed, with the chunk index bound into the additional data so
// records cannot be reordered or spliced across positions.
package stream

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

const (
	// Magic identifies an SBX1 encrypted object.
	Magic = "SBX1"

	// Version is the current format version. Earlier versions skipped header
	// MAC verification and are rejected outright rather than guessed at.
	Version = 2

	// AlgAESGCM is the only defined algorithm identifier (AES-256-GCM).
	AlgAESGCM = 1

	// DefaultChunkSize is the plaintext chunk unit (64 KiB).
	DefaultChunkSize = 64 * 1024

	// NonceSeedLen is the length of the random per-object nonce seed.
	NonceSeedLen = 16

	// HeaderMACLen is the length of the header HMAC-SHA256 tag.
	HeaderMACLen = 32

	// nonceLen is the AES-GCM nonce length.
	nonceLen = 12

	// maxRecordLen bounds a single ciphertext record. A compliant writer
	// never exceeds chunk size plus tag overhead; anything larger is a
	// malformed object, not a big chunk.
	maxRecordLen = 64 << 20
)

// header holds the parsed SBX1 header fields.
type header struct {
	version    byte
	algID      byte
	wrappedCEK []byte
	nonceSeed  []byte
}

// marshal serializes the header fields without the trailing MAC.
func (h *header) marshal() []byte {
	buf := make([]byte, 0, len(Magic)+2+2+len(h.wrappedCEK)+1+len(h.nonceSeed))
	buf = append(buf, Magic...)
	buf = append(buf, h.version, h.algID)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.wrappedCEK)))
	buf = append(buf, h.wrappedCEK...)
	buf = append(buf, byte(len(h.nonceSeed)))
	buf = append(buf, h.nonceSeed...)
	return buf
}

// writeHeader writes the header and its MAC, keyed by macKey.
func writeHeader(w io.Writer, h *header, macKey []byte) error {
	fields := h.marshal()

	mac := hmac.New(sha256.New, macKey)
	mac.Write(fields)

	if _, err := w.Write(fields); err != nil {
		return fmt.Errorf("stream: write header: %w", err)
	}
	if _, err := w.Write(mac.Sum(nil)); err != nil {
		return fmt.Errorf("stream: write header MAC: %w", err)
	}
	return nil
}

// readHeader parses and authenticates the header. Magic, version, and
// algorithm are validated first; the MAC is then verified in constant time
// before anything else in the stream is trusted.
func readHeader(r io.Reader, macKey []byte) (*header, error) {
	fixed := make([]byte, len(Magic)+2+2)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("%w: short header: %w", ErrTruncatedStream, err)
	}

	if string(fixed[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrUnsupportedFormat)
	}
	h := &header{version: fixed[4], algID: fixed[5]}
	if h.version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, h.version)
	}
	if h.algID != AlgAESGCM {
		return nil, fmt.Errorf("%w: algorithm %d", ErrUnsupportedFormat, h.algID)
	}

	wrappedLen := binary.BigEndian.Uint16(fixed[6:8])
	if wrappedLen == 0 {
		return nil, fmt.Errorf("%w: empty wrapped CEK", ErrUnsupportedFormat)
	}
	h.wrappedCEK = make([]byte, wrappedLen)
	if _, err := io.ReadFull(r, h.wrappedCEK); err != nil {
		return nil, fmt.Errorf("%w: short wrapped CEK: %w", ErrTruncatedStream, err)
	}

	var seedLen [1]byte
	if _, err := io.ReadFull(r, seedLen[:]); err != nil {
		return nil, fmt.Errorf("%w: short nonce seed length: %w", ErrTruncatedStream, err)
	}
	if seedLen[0] == 0 {
		return nil, fmt.Errorf("%w: empty nonce seed", ErrUnsupportedFormat)
	}
	h.nonceSeed = make([]byte, seedLen[0])
	if _, err := io.ReadFull(r, h.nonceSeed); err != nil {
		return nil, fmt.Errorf("%w: short nonce seed: %w", ErrTruncatedStream, err)
	}

	storedMAC := make([]byte, HeaderMACLen)
	if _, err := io.ReadFull(r, storedMAC); err != nil {
		return nil, fmt.Errorf("%w: short header MAC: %w", ErrTruncatedStream, err)
	}

	mac := hmac.New(sha256.New, macKey)
	mac.Write(h.marshal())
	if !hmac.Equal(mac.Sum(nil), storedMAC) {
		return nil, ErrHeaderAuthentication
	}

	return h, nil
}

// chunkNonce derives the deterministic nonce for a chunk:
// first 12 bytes of SHA-256(nonce_seed || chunk_index_be64). The seed is
// fresh per object, so nonces never repeat across objects under the same CEK.
func chunkNonce(seed []byte, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)

	h := sha256.New()
	h.Write(seed)
	h.Write(idx[:])
	sum := h.Sum(nil)
	return sum[:nonceLen]
}

// chunkAAD binds a chunk's ciphertext to its position in the stream.
func chunkAAD(index uint64) []byte {
	return []byte("chunk:" + strconv.FormatUint(index, 10))
}
