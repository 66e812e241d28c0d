package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eunmann/flipwatch/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// CheckTracker counts integrity checks over the lifetime of a monitoring
// run and periodically logs progress. It is safe for concurrent use.
type CheckTracker struct {
	startTime   time.Time
	checks      atomic.Uint64
	detections  atomic.Uint64
	reportEvery uint64
	log         zerolog.Logger

	// Moving average of recent scan durations
	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewCheckTracker creates a tracker that logs progress after every
// reportEvery checks (0 disables progress logging).
func NewCheckTracker(log zerolog.Logger, reportEvery uint64) *CheckTracker {
	return &CheckTracker{
		startTime:       time.Now(),
		reportEvery:     reportEvery,
		log:             log,
		recentDurations: make([]time.Duration, 0, 10),
		maxRecent:       10,
	}
}

// RecordCheck records one completed integrity check and its scan
// duration, returning the running check count. Progress is logged at the
// configured cadence.
func (ct *CheckTracker) RecordCheck(scanDuration time.Duration) uint64 {
	n := ct.checks.Add(1)

	ct.mu.Lock()
	if len(ct.recentDurations) >= ct.maxRecent {
		ct.recentDurations = ct.recentDurations[1:]
	}
	ct.recentDurations = append(ct.recentDurations, scanDuration)
	ct.mu.Unlock()

	if ct.reportEvery > 0 && n%ct.reportEvery == 0 {
		ct.log.Info().
			Uint64("checks_count", n).
			Uint64("detections_count", ct.detections.Load()).
			Str("elapsed", humanfmt.Duration(ct.Elapsed())).
			Str("avg_scan", humanfmt.Duration(ct.AvgScanDuration())).
			Msg("integrity checks passed")
	}
	return n
}

// RecordDetection records one detected divergence.
func (ct *CheckTracker) RecordDetection() uint64 {
	return ct.detections.Add(1)
}

// Checks returns the number of completed integrity checks.
func (ct *CheckTracker) Checks() uint64 {
	return ct.checks.Load()
}

// Detections returns the number of recorded detections.
func (ct *CheckTracker) Detections() uint64 {
	return ct.detections.Load()
}

// Elapsed returns time since tracking started.
func (ct *CheckTracker) Elapsed() time.Duration {
	return time.Since(ct.startTime)
}

// AvgScanDuration returns the moving average of recent scan durations,
// or zero before any check completes.
func (ct *CheckTracker) AvgScanDuration() time.Duration {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.recentDurations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ct.recentDurations {
		sum += d
	}
	return sum / time.Duration(len(ct.recentDurations))
}
