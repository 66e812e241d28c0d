package detector

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// scanChunkWords is the number of words a parallel worker scans between
// cancellation checks (512 KiB of mass).
const scanChunkWords = 1 << 16

// errMismatchFound is the internal early-exit signal for parallel scans.
// It never escapes to callers.
var errMismatchFound = errors.New("mismatch found")

// IsIntact reports whether every byte still equals the default value. The
// scan short-circuits on the first mismatch.
func (d *Detector) IsIntact() bool {
	_, changed := d.PositionOfChangedElement()
	return !changed
}

// PositionOfChangedElement returns the index of a byte that no longer
// equals the default value. Sequential scans return the lowest such index;
// parallel scans return whichever index a worker found first, with no
// ordering guarantee. The second return value is false when the mass is
// intact.
func (d *Detector) PositionOfChangedElement() (int, bool) {
	if d.workers == 0 {
		return d.scanSequential()
	}
	return d.scanParallel()
}

// PositionAndValueOfChangedElement returns the index and current value of
// a changed byte. The value is re-read after the index is located; if the
// flipped byte reverts in between (a bit flipping back), this returns
// not-found even though the scan saw a mismatch. That race is accepted
// behavior, not a defect.
func (d *Detector) PositionAndValueOfChangedElement() (int, byte, bool) {
	i, changed := d.PositionOfChangedElement()
	if !changed {
		return 0, 0, false
	}
	v, ok := d.Get(i)
	if !ok || v == d.defaultValue {
		return 0, 0, false
	}
	return i, v, true
}

func (d *Detector) scanSequential() (int, bool) {
	pat := pattern(d.defaultValue)
	for i := range d.words {
		w := atomic.LoadUint64(&d.words[i])
		if w == pat {
			continue
		}
		if k, ok := d.changedByteInWord(w, i); ok {
			return k, true
		}
		// The mismatch sits in the padding bytes past the detector
		// length; those are not part of the mass.
	}
	return 0, false
}

func (d *Detector) scanParallel() (int, bool) {
	pat := pattern(d.defaultValue)

	var found atomic.Int64
	found.Store(-1)

	g, ctx := errgroup.WithContext(context.Background())
	for _, p := range partitionWords(len(d.words), d.workers) {
		p := p
		g.Go(func() error {
			for lo := p.lo; lo < p.hi; lo += scanChunkWords {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				hi := min(lo+scanChunkWords, p.hi)
				for i := lo; i < hi; i++ {
					w := atomic.LoadUint64(&d.words[i])
					if w == pat {
						continue
					}
					if k, ok := d.changedByteInWord(w, i); ok {
						found.CompareAndSwap(-1, int64(k))
						return errMismatchFound
					}
				}
			}
			return nil
		})
	}

	// The only possible errors are the early-exit sentinel and the
	// cancellations it triggers; the answer is carried by found.
	_ = g.Wait()

	if i := found.Load(); i >= 0 {
		return int(i), true
	}
	return 0, false
}

// changedByteInWord locates the first in-range byte of word wordIdx whose
// value differs from the default. A whole-word mismatch can still come up
// empty when it is confined to the padding past the detector length.
func (d *Detector) changedByteInWord(w uint64, wordIdx int) (int, bool) {
	base := wordIdx * wordBytes
	n := min(d.length-base, wordBytes)
	for k := 0; k < n; k++ {
		if byteOf(w, k) != d.defaultValue {
			return base + k, true
		}
	}
	return 0, false
}
