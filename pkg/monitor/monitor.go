// Package monitor implements the poll-sleep-report loop around a
// detector: reset the mass, sleep, check integrity, and log any
// divergence. A detection is the successful output of the program, not an
// error, so the loop reports it and keeps running.
package monitor

import (
	"context"
	"time"

	"github.com/eunmann/flipwatch/internal/logctx"
	"github.com/eunmann/flipwatch/pkg/humanfmt"
	"github.com/eunmann/flipwatch/pkg/logging"
	"github.com/rs/zerolog"
)

// Mass is the detector surface the monitor drives.
type Mass interface {
	Len() int
	DefaultValue() byte
	Reset()
	IsIntact() bool
	PositionAndValueOfChangedElement() (int, byte, bool)
}

// Config holds the monitoring loop configuration.
type Config struct {
	// Interval is the sleep between integrity checks. Zero means
	// continuous checking. The interval rate-limits scanning; scans
	// themselves never time out.
	Interval time.Duration

	// Verbose enables periodic progress logging.
	Verbose bool

	// MaxChecks stops the loop after this many checks. Zero means run
	// until the context is cancelled.
	MaxChecks uint64

	// ReportEvery is the verbose progress cadence in checks.
	// Zero means every 100 checks.
	ReportEvery uint64
}

// Monitor runs integrity checks against a Mass on a fixed cadence.
type Monitor struct {
	mass    Mass
	cfg     Config
	tracker *logging.CheckTracker
}

// New creates a monitor for the given mass.
func New(mass Mass, cfg Config) *Monitor {
	reportEvery := uint64(0)
	if cfg.Verbose {
		reportEvery = cfg.ReportEvery
		if reportEvery == 0 {
			reportEvery = 100
		}
	}
	return &Monitor{
		mass:    mass,
		cfg:     cfg,
		tracker: logging.NewCheckTracker(*logging.L(), reportEvery),
	}
}

// Checks returns the number of completed integrity checks.
func (m *Monitor) Checks() uint64 {
	return m.tracker.Checks()
}

// Detections returns the number of divergences reported so far.
func (m *Monitor) Detections() uint64 {
	return m.tracker.Detections()
}

// Run executes the monitoring loop until the context is cancelled or
// MaxChecks is reached. Cancellation is a normal shutdown and returns
// nil.
func (m *Monitor) Run(ctx context.Context) error {
	log := logctx.FromContext(ctx)
	start := time.Now()

	log.Info().
		Int("mass_bytes", m.mass.Len()).
		Str("mass", humanfmt.Bytes(int64(m.mass.Len()))).
		Str("interval", humanfmt.Duration(m.cfg.Interval)).
		Msg("monitoring started")

	for {
		// Every cycle starts from a freshly reset mass; reset primes
		// the pages as a side effect.
		m.mass.Reset()

		intact := true
		for intact {
			if err := sleepCtx(ctx, m.cfg.Interval); err != nil {
				log.Info().
					Uint64("checks_count", m.tracker.Checks()).
					Uint64("detections_count", m.tracker.Detections()).
					Str("elapsed", humanfmt.Duration(time.Since(start))).
					Msg("monitoring stopped")
				return nil
			}

			scanStart := time.Now()
			intact = m.mass.IsIntact()
			scanDur := time.Since(scanStart)
			n := m.tracker.RecordCheck(scanDur)

			log.Debug().
				Uint64("check_number", n).
				Str("scan", humanfmt.Duration(scanDur)).
				Str("throughput", humanfmt.Throughput(int64(m.mass.Len()), scanDur)).
				Msg("integrity check")

			if !intact {
				m.report(log, start, n)
			}

			if m.cfg.MaxChecks > 0 && n >= m.cfg.MaxChecks {
				log.Info().Uint64("checks_count", n).Msg("check limit reached")
				return nil
			}
		}
	}
}

// report logs one detected divergence. The changed byte is located and
// re-read after the failed check; a flip that reverts in between is
// reported without position or value.
func (m *Monitor) report(log zerolog.Logger, start time.Time, check uint64) {
	m.tracker.RecordDetection()

	i, v, found := m.mass.PositionAndValueOfChangedElement()
	if !found {
		log.Info().
			Uint64("check_number", check).
			Str("elapsed", humanfmt.Duration(time.Since(start))).
			Msg("bit flip detected, but it reverted before its position could be read")
		return
	}

	log.Info().
		Str("elapsed", humanfmt.Duration(time.Since(start))).
		Uint64("check_number", check).
		Int("byte_index", i).
		Uint8("value", v).
		Uint8("expected", m.mass.DefaultValue()).
		Msg("bit flip detected")
}

// sleepCtx sleeps for d, honoring cancellation. A non-positive d only
// polls for cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
