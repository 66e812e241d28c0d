//go:build !linux && !freebsd && !dragonfly && !windows

package sysmem

// No introspection mechanism this package knows how to use. Note that
// darwin lands here: free-page figures require mach host statistics,
// which x/sys does not expose.
const capability = CapNone

func readSnapshot() (Snapshot, error) {
	return Snapshot{}, ErrUnsupportedPlatform
}
