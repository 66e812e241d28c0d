//go:build windows

package sysmem

import (
	"fmt"
	"syscall"
	"unsafe"
)

// GlobalMemoryStatusEx reports one AvailPhys figure with no
// available/free distinction.
const capability = CapMaximizeOnly

// memoryStatusEx matches the Windows MEMORYSTATUSEX structure.
// https://learn.microsoft.com/en-us/windows/win32/api/sysinfoapi/ns-sysinfoapi-memorystatusex
type memoryStatusEx struct {
	Length               uint32
	MemoryLoad           uint32
	TotalPhys            uint64
	AvailPhys            uint64
	TotalPageFile        uint64
	AvailPageFile        uint64
	TotalVirtual         uint64
	AvailVirtual         uint64
	AvailExtendedVirtual uint64
}

var (
	kernel32                 = syscall.NewLazyDLL("kernel32.dll")
	procGlobalMemoryStatusEx = kernel32.NewProc("GlobalMemoryStatusEx")
)

func readSnapshot() (Snapshot, error) {
	var memStatus memoryStatusEx
	memStatus.Length = uint32(unsafe.Sizeof(memStatus))

	ret, _, callErr := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&memStatus)))
	if ret == 0 {
		return Snapshot{}, fmt.Errorf("%w: GlobalMemoryStatusEx: %v", ErrUnsupportedPlatform, callErr)
	}
	return Snapshot{
		TotalBytes:     memStatus.TotalPhys,
		AvailableBytes: memStatus.AvailPhys,
		FreeBytes:      memStatus.AvailPhys,
	}, nil
}
