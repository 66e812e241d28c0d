//go:build linux

package sysmem

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Linux distinguishes available (MemAvailable) from free (MemFree).
const capability = CapAvailableFree

// readSnapshot reads /proc/meminfo, falling back to sysinfo(2) when /proc
// is not mounted.
func readSnapshot() (Snapshot, error) {
	if snap, ok := readMeminfo("/proc/meminfo"); ok {
		return snap, nil
	}
	return readSysinfo()
}

// readMeminfo parses the kB-denominated fields of a meminfo file.
func readMeminfo(path string) (Snapshot, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, false
	}
	defer f.Close()

	var total, free, avail, buffers, cached uint64
	haveAvail := false

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		b := kb * 1024
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total = b
		case "MemFree":
			free = b
		case "MemAvailable":
			avail = b
			haveAvail = true
		case "Buffers":
			buffers = b
		case "Cached":
			cached = b
		}
	}
	if sc.Err() != nil || total == 0 {
		return Snapshot{}, false
	}

	if !haveAvail {
		// Kernels before 3.14 have no MemAvailable; approximate it as
		// free plus the reclaimable page cache.
		avail = free + buffers + cached
	}
	return Snapshot{TotalBytes: total, AvailableBytes: avail, FreeBytes: free}, true
}

func readSysinfo() (Snapshot, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Snapshot{}, fmt.Errorf("%w: sysinfo: %v", ErrUnsupportedPlatform, err)
	}
	unit := uint64(info.Unit)
	free := uint64(info.Freeram) * unit
	return Snapshot{
		TotalBytes: uint64(info.Totalram) * unit,
		// sysinfo has no MemAvailable equivalent; buffers are the only
		// reclaimable figure it reports.
		AvailableBytes: free + uint64(info.Bufferram)*unit,
		FreeBytes:      free,
	}, nil
}
