// Package sysmem provides cross-platform queries of live operating-system
// memory figures.
//
// The package is used to size a maximum-mass detector, so no result is
// ever cached: the whole point of a call is the figure at allocation
// time. Platform support is resolved once per build into a Capability
// value instead of branching through the codebase.
package sysmem

import "errors"

// ErrUnsupportedPlatform indicates this platform exposes no usable memory
// introspection mechanism. Automatic detector sizing is impossible here;
// an explicit capacity still works.
var ErrUnsupportedPlatform = errors.New("no memory introspection on this platform, pass an explicit capacity instead")

// Mode selects which OS memory figure sizes a maximum-mass allocation.
type Mode int

const (
	// ModeAvailable is free memory plus memory that is in use but
	// reclaimable without swapping (caches, buffers).
	ModeAvailable Mode = iota
	// ModeFree is strictly unused memory.
	ModeFree
)

func (m Mode) String() string {
	switch m {
	case ModeAvailable:
		return "available"
	case ModeFree:
		return "free"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as accepted on the command line.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "available":
		return ModeAvailable, nil
	case "free":
		return ModeFree, nil
	default:
		return 0, errors.New("allocation mode must be \"available\" or \"free\"")
	}
}

// Capability describes what this platform's memory introspection can do.
// It is a build-time constant: each platform file declares its own.
type Capability int

const (
	// CapNone means no introspection mechanism exists; Read fails.
	CapNone Capability = iota
	// CapMaximizeOnly means the OS reports a single allocatable figure
	// without distinguishing available from free.
	CapMaximizeOnly
	// CapAvailableFree means the OS distinguishes available and free
	// memory, so both allocation modes are meaningful.
	CapAvailableFree
)

func (c Capability) String() string {
	switch c {
	case CapMaximizeOnly:
		return "maximize-only"
	case CapAvailableFree:
		return "available-free"
	default:
		return "none"
	}
}

// Snapshot holds one point-in-time set of OS memory figures.
// On CapMaximizeOnly platforms AvailableBytes and FreeBytes carry the
// same unqualified figure.
type Snapshot struct {
	TotalBytes     uint64
	AvailableBytes uint64
	FreeBytes      uint64
}

// Capable returns this platform's introspection capability.
func Capable() Capability {
	return capability
}

// Read queries the OS for current memory figures. Every call re-queries
// live state. Returns ErrUnsupportedPlatform on CapNone platforms.
func Read() (Snapshot, error) {
	return readSnapshot()
}

// AvailableBytes returns free memory plus reclaimable cached memory.
func AvailableBytes() (uint64, error) {
	snap, err := Read()
	if err != nil {
		return 0, err
	}
	return snap.AvailableBytes, nil
}

// FreeBytes returns strictly unused memory.
func FreeBytes() (uint64, error) {
	snap, err := Read()
	if err != nil {
		return 0, err
	}
	return snap.FreeBytes, nil
}

// BytesForMode resolves mode against the platform capability and returns
// the matching figure. On maximize-only platforms both modes resolve to
// the single figure the OS reports.
func BytesForMode(m Mode) (uint64, error) {
	snap, err := Read()
	if err != nil {
		return 0, err
	}
	if capability == CapMaximizeOnly || m == ModeAvailable {
		return snap.AvailableBytes, nil
	}
	return snap.FreeBytes, nil
}
