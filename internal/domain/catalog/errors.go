package catalog

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrNotFound  = errors.New("catalog file not found")
	ErrMalformed = errors.New("malformed catalog")
)
