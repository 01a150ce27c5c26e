package repository

import "errors"

// Sentinel kinds for history store errors.
var (
	// ErrNotFound means the identity has no usable snapshot.
	ErrNotFound = errors.New("no rating history")
	// ErrCorruptState means persisted state exists but could not be decoded.
	ErrCorruptState = errors.New("corrupt rating history")
	// ErrInvalidIdentity rejects identities that cannot name a storage key.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown history backend")
)
