package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrRemoteFetch means a fresh save could not be obtained.
	ErrRemoteFetch = errors.New("remote fetch failed")
	// ErrPersist means a computed rating could not be recorded.
	ErrPersist = errors.New("history write failed")
	// ErrInvalidRequest rejects out-of-range request parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotStarted is returned by async operations before Start.
	ErrNotStarted = errors.New("service not started")
)
