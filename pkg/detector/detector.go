// Package detector implements the bit-flip detector: a large block of
// allocated RAM whose only job is to sit still and be checked for
// spontaneous changes.
//
// Go has no volatile qualifier, so every access to the detector mass goes
// through sync/atomic loads and stores. Atomic operations are
// synchronization operations under the Go memory model: the compiler must
// emit them as real memory traffic and may not elide, coalesce or reorder
// them. A plain range loop over the buffer would not carry that guarantee,
// and the entire value of the detector depends on its reads and writes
// actually reaching physical RAM.
package detector

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eunmann/flipwatch/pkg/sysmem"
)

const wordBytes = 8

// primingValue is written before a zero write to defeat the kernel's
// shared zero-page optimization. Writing zero to a freshly mapped page can
// be satisfied without committing physical memory, which would leave the
// detector monitoring nothing.
const primingValue byte = 42

// Config controls how detector operations execute.
type Config struct {
	// Parallel enables partitioned fan-out of writes and scans across a
	// worker pool. Worthwhile for multi-gigabyte detectors, where scan
	// latency bounds how precisely a flip can be attributed to an
	// interval.
	Parallel bool

	// Workers is the worker pool size. <=0 means runtime.NumCPU().
	// Passed in explicitly rather than read from global state so the
	// detector stays testable in isolation.
	Workers int
}

// Detector owns a fixed-size block of memory (the detector mass) and
// checks it for divergence from a configured default value. The mass is
// stored as 64-bit words so that every access can use sync/atomic; byte
// indexes reported to callers are resolved through the platform byte
// order, so they are memory offsets on any architecture.
//
// The caller must serialize calls to a Detector's methods. Parallel mode
// splits iteration across workers operating on disjoint word ranges, never
// ownership, so no locking happens inside a single operation.
type Detector struct {
	defaultValue byte
	length       int
	words        []uint64
	workers      int
}

// New allocates a detector of exactly capacityBytes bytes, every byte
// filled with defaultValue. Returns ErrZeroCapacity for capacities below
// one byte and ErrAllocation when the allocator cannot satisfy the
// request.
func New(defaultValue byte, capacityBytes int, cfg Config) (*Detector, error) {
	if capacityBytes < 1 {
		return nil, ErrZeroCapacity
	}

	words, err := allocWords((capacityBytes-1)/wordBytes + 1)
	if err != nil {
		return nil, err
	}

	d := &Detector{
		defaultValue: defaultValue,
		length:       capacityBytes,
		words:        words,
		workers:      resolveWorkers(cfg),
	}

	// Fill through the non-elidable path. make zeroed the backing pages,
	// but that zeroing is exactly the kind of write the OS may satisfy
	// with a shared zero-page, so it does not count as touching RAM.
	if defaultValue == 0 {
		d.Write(primingValue)
	}
	d.Write(defaultValue)
	return d, nil
}

// NewWithMaximumSize sizes the detector from the OS memory figure selected
// by mode, minus a small headroom so the process is not immediately
// reclaimed by the OOM killer. Propagates sysmem.ErrUnsupportedPlatform
// when the platform offers no memory introspection; an explicit capacity
// via New still works there.
func NewWithMaximumSize(defaultValue byte, mode sysmem.Mode, cfg Config) (*Detector, error) {
	total, err := sysmem.BytesForMode(mode)
	if err != nil {
		return nil, fmt.Errorf("size detector from system memory: %w", err)
	}

	capacity := total - headroomBytes(total)
	if capacity < 1 || capacity > uint64(maxInt) {
		return nil, fmt.Errorf("%w: OS reported %d usable bytes", ErrAllocation, total)
	}
	return New(defaultValue, int(capacity), cfg)
}

const maxInt = int(^uint(0) >> 1)

// headroomBytes is the slice of an OS memory figure left unallocated:
// 5%, capped at 256 MiB.
func headroomBytes(total uint64) uint64 {
	const maxHeadroom = 256 * 1024 * 1024
	h := total / 20
	if h > maxHeadroom {
		h = maxHeadroom
	}
	return h
}

// allocWords converts allocation panics (request too large for the
// allocator or the platform) into ErrAllocation instead of crashing.
func allocWords(n int) (words []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			words = nil
			err = fmt.Errorf("%w: %v", ErrAllocation, r)
		}
	}()
	return make([]uint64, n), nil
}

func resolveWorkers(cfg Config) int {
	if !cfg.Parallel {
		return 0
	}
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU()
}

// Len returns the detector mass in bytes.
func (d *Detector) Len() int {
	return d.length
}

// DefaultValue returns the sentinel value every byte is expected to hold
// between checks.
func (d *Detector) DefaultValue() byte {
	return d.defaultValue
}

// Parallel reports whether operations fan out across a worker pool.
func (d *Detector) Parallel() bool {
	return d.workers > 0
}

// Write overwrites every byte of the detector mass with v. The stores are
// atomic word stores, so they commit physical pages that were previously
// only reserved.
func (d *Detector) Write(v byte) {
	pat := pattern(v)
	if d.workers == 0 {
		writeWords(d.words, pat)
		return
	}

	var wg sync.WaitGroup
	for _, p := range partitionWords(len(d.words), d.workers) {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeWords(d.words[p.lo:p.hi], pat)
		}()
	}
	wg.Wait()
}

// Reset restores every byte to the default value. When the default is
// zero, a non-zero priming write always happens first: pages can be
// swapped out and revert to the zero-page state between cycles, so the
// priming write is part of reset's contract, not an optimization.
func (d *Detector) Reset() {
	if d.defaultValue == 0 {
		d.Write(primingValue)
	}
	d.Write(d.defaultValue)
}

// Get returns the byte at index i, read through an atomic load of its
// containing word. The second return value is false when i is out of
// bounds.
func (d *Detector) Get(i int) (byte, bool) {
	if i < 0 || i >= d.length {
		return 0, false
	}
	w := atomic.LoadUint64(&d.words[i/wordBytes])
	return byteOf(w, i%wordBytes), true
}

func writeWords(words []uint64, pat uint64) {
	for i := range words {
		atomic.StoreUint64(&words[i], pat)
	}
}

// pattern repeats v across all eight bytes of a word. The repetition is
// byte-order invariant, so whole-word comparisons against it are portable.
func pattern(v byte) uint64 {
	return uint64(v) * 0x0101010101010101
}

// byteOf returns byte k of w counted in memory order, resolving the
// word-to-memory mapping through the platform byte order.
func byteOf(w uint64, k int) byte {
	var b [wordBytes]byte
	binary.NativeEndian.PutUint64(b[:], w)
	return b[k]
}

// span is a half-open word range [lo, hi).
type span struct {
	lo, hi int
}

// partitionWords splits n words into at most workers contiguous ranges.
// Splitting at word boundaries keeps parallel workers on disjoint words.
func partitionWords(n, workers int) []span {
	if workers > n {
		workers = n
	}
	spans := make([]span, 0, workers)
	chunk := n / workers
	rem := n % workers
	lo := 0
	for i := 0; i < workers; i++ {
		hi := lo + chunk
		if i < rem {
			hi++
		}
		spans = append(spans, span{lo: lo, hi: hi})
		lo = hi
	}
	return spans
}
