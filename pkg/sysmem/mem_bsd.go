//go:build freebsd || dragonfly

package sysmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// The vm.stats page counters do not separate reclaimable cache from free
// pages in a way userland can rely on, so these platforms only offer a
// single unqualified figure.
const capability = CapMaximizeOnly

// readSnapshot derives memory figures from sysctl page counts.
func readSnapshot() (Snapshot, error) {
	total, err := unix.SysctlUint64("hw.physmem")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: sysctl hw.physmem: %v", ErrUnsupportedPlatform, err)
	}

	freePages, err := unix.SysctlUint32("vm.stats.vm.v_free_count")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: sysctl vm.stats.vm.v_free_count: %v", ErrUnsupportedPlatform, err)
	}

	free := uint64(freePages) * uint64(os.Getpagesize())
	return Snapshot{TotalBytes: total, AvailableBytes: free, FreeBytes: free}, nil
}
