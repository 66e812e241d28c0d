package detector

import "errors"

var (
	// ErrZeroCapacity indicates a detector was requested with no mass.
	// A zero-size detector can never observe anything, so this is
	// treated as a caller misconfiguration.
	ErrZeroCapacity = errors.New("detector capacity must be at least one byte")
	// ErrAllocation indicates the OS allocator could not satisfy the
	// requested capacity. Retrying the same request cannot succeed.
	ErrAllocation = errors.New("cannot allocate detector memory")
)
