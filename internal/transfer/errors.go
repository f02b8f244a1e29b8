package transfer

import "errors"

var (
	// ErrInvalidRequest covers malformed init/upload parameters.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidIndex is returned for a chunk index outside [0, totalChunks).
	ErrInvalidIndex = errors.New("chunk index out of range")

	// ErrTransferClosed is returned for chunk writes to a READY transfer.
	ErrTransferClosed = errors.New("transfer already completed")

	// ErrNotReady is returned for downloads before every chunk has landed.
	ErrNotReady = errors.New("transfer not ready")

	// ErrDecryptionFailed is returned when a chunk fails authentication,
	// including the wrong-passphrase case. The HTTP layer reports it with
	// the same generic message as ErrInvalidCode.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCode is returned when no code is pending or the supplied
	// code does not match.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrNotifier is returned when code dispatch fails. Transfer state is
	// not rolled back; the caller may request a new code.
	ErrNotifier = errors.New("notification dispatch failed")
)
