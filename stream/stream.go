package stream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/strongboxorg/libstrongbox-go/keys"
)

// EncryptOptions tunes Encrypt. The zero value selects a fresh random CEK and
// the default chunk size.
type EncryptOptions struct {
	// CEK is the content-encryption key to seal chunks with. Nil generates a
	// fresh random key. Callers managing a per-box CEK pass it here; the
	// header embeds the wrapped CEK either way, so objects stay
	// self-contained.
	CEK []byte

	// ChunkSize is the plaintext chunk unit. Zero means DefaultChunkSize.
	ChunkSize int
}

// Encrypt encrypts src to dst in the SBX1 format using a fresh random CEK
// wrapped under a KEK derived from masterKey.
func Encrypt(dst io.Writer, src io.Reader, masterKey []byte) error {
	return EncryptWithOptions(dst, src, masterKey, EncryptOptions{})
}

// EncryptWithCEK encrypts src to dst sealing chunks with the given CEK.
func EncryptWithCEK(dst io.Writer, src io.Reader, masterKey, cek []byte) error {
	return EncryptWithOptions(dst, src, masterKey, EncryptOptions{CEK: cek})
}

// EncryptWithOptions encrypts src to dst in the SBX1 format.
//
// An empty source still produces a valid header with zero body records.
// Source read errors propagate unchanged wrapped in the returned error.
func EncryptWithOptions(dst io.Writer, src io.Reader, masterKey []byte, opts EncryptOptions) error {
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 0 {
		return fmt.Errorf("%w: negative chunk size", ErrUnsupportedFormat)
	}

	cek := opts.CEK
	if cek == nil {
		fresh, err := keys.GenerateCEK()
		if err != nil {
			return err
		}
		defer keys.Wipe(fresh)
		cek = fresh
	}

	kek, err := keys.DeriveKEK(masterKey)
	if err != nil {
		return err
	}
	defer keys.Wipe(kek)

	wrapped, err := keys.Wrap(kek, cek)
	if err != nil {
		return err
	}

	macKey, err := keys.DeriveMACKey(masterKey)
	if err != nil {
		return err
	}
	defer keys.Wipe(macKey)

	seed := make([]byte, NonceSeedLen)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("stream: failed to generate nonce seed: %w", err)
	}

	h := &header{
		version:    Version,
		algID:      AlgAESGCM,
		wrappedCEK: wrapped,
		nonceSeed:  seed,
	}
	if err := writeHeader(dst, h, macKey); err != nil {
		return err
	}

	aead, err := newAEAD(cek)
	if err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	var lenBuf [4]byte
	var index uint64
	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			ct := aead.Seal(nil, chunkNonce(seed, index), buf[:n], chunkAAD(index))

			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ct)))
			if _, werr := dst.Write(lenBuf[:]); werr != nil {
				return fmt.Errorf("stream: write record length: %w", werr)
			}
			if _, werr := dst.Write(ct); werr != nil {
				return fmt.Errorf("stream: write record: %w", werr)
			}
			index++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream: read source: %w", err)
		}
	}
}

// Decrypt decrypts an SBX1 object from src to dst.
//
// Validation order: magic/version/algorithm, then the header MAC (constant
// time, before any ciphertext is touched), then the CEK unwrap, then each
// record in sequence. On any error the bytes already written to dst must be
// discarded by the caller; dst is not valid until Decrypt returns nil.
func Decrypt(dst io.Writer, src io.Reader, masterKey []byte) error {
	macKey, err := keys.DeriveMACKey(masterKey)
	if err != nil {
		return err
	}
	defer keys.Wipe(macKey)

	h, err := readHeader(src, macKey)
	if err != nil {
		return err
	}

	kek, err := keys.DeriveKEK(masterKey)
	if err != nil {
		return err
	}
	defer keys.Wipe(kek)

	cek, err := keys.Unwrap(kek, h.wrappedCEK)
	if err != nil {
		return err
	}
	defer keys.Wipe(cek)

	aead, err := newAEAD(cek)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	var index uint64
	for {
		_, err := io.ReadFull(src, lenBuf[:])
		if errors.Is(err, io.EOF) {
			// Clean end of stream. A zero-record body is a trivial success.
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: partial record length", ErrTruncatedStream)
		}
		if err != nil {
			return fmt.Errorf("stream: read record length: %w", err)
		}

		recordLen := binary.BigEndian.Uint32(lenBuf[:])
		if recordLen > maxRecordLen {
			return fmt.Errorf("%w: record length %d exceeds limit", ErrUnsupportedFormat, recordLen)
		}

		ct := make([]byte, recordLen)
		if _, err := io.ReadFull(src, ct); err != nil {
			return fmt.Errorf("%w: record declares %d bytes: %w", ErrTruncatedStream, recordLen, err)
		}

		pt, err := aead.Open(nil, chunkNonce(h.nonceSeed, index), ct, chunkAAD(index))
		if err != nil {
			return fmt.Errorf("%w: chunk %d", ErrAuthenticationFailed, index)
		}
		if _, err := dst.Write(pt); err != nil {
			return fmt.Errorf("stream: write plaintext: %w", err)
		}
		index++
	}
}

// newAEAD builds the AES-256-GCM AEAD for a content-encryption key.
func newAEAD(cek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("stream: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("stream: create GCM: %w", err)
	}
	return aead, nil
}
