package selector

import "errors"

// Sentinel kinds for selection errors.
var (
	// ErrInvalidRequest is returned for negative best or perfect counts.
	ErrInvalidRequest = errors.New("invalid selection request")
	// ErrNoCatalog is returned when no catalog was supplied.
	ErrNoCatalog = errors.New("no difficulty catalog")
)
