package stream

import "errors"

var (
	// ErrUnsupportedFormat indicates a bad magic, version, algorithm, or an
	// out-of-range field in the object header.
	ErrUnsupportedFormat = errors.New("stream: unsupported object format")

	// ErrHeaderAuthentication indicates the header MAC does not verify.
	// Raised before any ciphertext is processed.
	ErrHeaderAuthentication = errors.New("stream: header authentication failed")

	// ErrTruncatedStream indicates a declared length exceeds the available bytes.
	ErrTruncatedStream = errors.New("stream: truncated stream")

	// ErrAuthenticationFailed indicates an AEAD tag mismatch on a chunk
	// (tampered ciphertext or wrong key).
	ErrAuthenticationFailed = errors.New("stream: chunk authentication failed")
)
