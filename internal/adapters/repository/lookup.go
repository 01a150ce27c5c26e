package repository

// Status classifies the outcome of reading persisted state.
type Status int

const (
	// Found means the state was read and decoded.
	Found Status = iota
	// Absent means nothing was ever written for the identity.
	Absent
	// Corrupt means state exists but could not be decoded.
	Corrupt
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Absent:
		return "absent"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Lookup is the result of a backend read. Value holds the empty default
// unless Status is Found; Cause explains a Corrupt status.
type Lookup[T any] struct {
	Value  T
	Status Status
	Cause  error
}

func found[T any](v T) Lookup[T] { return Lookup[T]{Value: v, Status: Found} }

func absent[T any]() Lookup[T] { return Lookup[T]{Status: Absent} }

func corrupt[T any](cause error) Lookup[T] { return Lookup[T]{Status: Corrupt, Cause: cause} }
