//go:build linux

package sysmem

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMeminfo(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meminfo")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write meminfo fixture: %v", err)
	}
	return path
}

func TestReadMeminfo(t *testing.T) {
	path := writeMeminfo(t, `MemTotal:       16384000 kB
MemFree:         4096000 kB
MemAvailable:   12288000 kB
Buffers:          512000 kB
Cached:          6144000 kB
SwapTotal:       2097148 kB
`)

	snap, ok := readMeminfo(path)
	if !ok {
		t.Fatal("readMeminfo failed on valid fixture")
	}
	if snap.TotalBytes != 16384000*1024 {
		t.Errorf("TotalBytes = %d, want %d", snap.TotalBytes, 16384000*1024)
	}
	if snap.FreeBytes != 4096000*1024 {
		t.Errorf("FreeBytes = %d, want %d", snap.FreeBytes, 4096000*1024)
	}
	if snap.AvailableBytes != 12288000*1024 {
		t.Errorf("AvailableBytes = %d, want %d", snap.AvailableBytes, 12288000*1024)
	}
}

func TestReadMeminfoNoMemAvailable(t *testing.T) {
	// Kernels before 3.14: available approximated from the page cache.
	path := writeMeminfo(t, `MemTotal:        8192000 kB
MemFree:         2048000 kB
Buffers:          256000 kB
Cached:          1024000 kB
`)

	snap, ok := readMeminfo(path)
	if !ok {
		t.Fatal("readMeminfo failed on valid fixture")
	}
	want := uint64(2048000+256000+1024000) * 1024
	if snap.AvailableBytes != want {
		t.Errorf("AvailableBytes = %d, want %d", snap.AvailableBytes, want)
	}
}

func TestReadMeminfoInvalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"empty", ""},
		{"garbage", "not a meminfo file\n"},
		{"missing total", "MemFree: 100 kB\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeMeminfo(t, tt.contents)
			if _, ok := readMeminfo(path); ok {
				t.Error("readMeminfo succeeded on invalid fixture")
			}
		})
	}
}

func TestReadMeminfoMissingFile(t *testing.T) {
	if _, ok := readMeminfo(filepath.Join(t.TempDir(), "absent")); ok {
		t.Error("readMeminfo succeeded on missing file")
	}
}

func TestReadSysinfo(t *testing.T) {
	snap, err := readSysinfo()
	if err != nil {
		t.Fatalf("readSysinfo error: %v", err)
	}
	if snap.TotalBytes == 0 {
		t.Error("readSysinfo returned zero total")
	}
	if snap.AvailableBytes < snap.FreeBytes {
		t.Errorf("available %d below free %d", snap.AvailableBytes, snap.FreeBytes)
	}
}
