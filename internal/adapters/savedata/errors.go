package savedata

import "errors"

// Sentinel kinds for save data errors.
var (
	// ErrFetch wraps every failure to produce a fresh save.
	ErrFetch = errors.New("save fetch failed")
	// ErrNoSave means the identity has no save.
	ErrNoSave = errors.New("no save for identity")
	// ErrMalformedSave means the save could not be decoded.
	ErrMalformedSave = errors.New("malformed save")
)
