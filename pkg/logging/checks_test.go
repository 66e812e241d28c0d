package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCheckTrackerCounts(t *testing.T) {
	ct := NewCheckTracker(zerolog.Nop(), 0)

	for i := 0; i < 5; i++ {
		if got := ct.RecordCheck(time.Millisecond); got != uint64(i+1) {
			t.Errorf("RecordCheck returned %d, want %d", got, i+1)
		}
	}
	if ct.Checks() != 5 {
		t.Errorf("Checks() = %d, want 5", ct.Checks())
	}

	if got := ct.RecordDetection(); got != 1 {
		t.Errorf("RecordDetection returned %d, want 1", got)
	}
	if ct.Detections() != 1 {
		t.Errorf("Detections() = %d, want 1", ct.Detections())
	}
}

func TestCheckTrackerLogsAtCadence(t *testing.T) {
	var buf bytes.Buffer
	ct := NewCheckTracker(zerolog.New(&buf), 3)

	ct.RecordCheck(time.Millisecond)
	ct.RecordCheck(time.Millisecond)
	if buf.Len() != 0 {
		t.Errorf("progress logged before cadence reached: %s", buf.String())
	}

	ct.RecordCheck(time.Millisecond)
	if !bytes.Contains(buf.Bytes(), []byte(`"checks_count":3`)) {
		t.Errorf("expected checks_count field in output, got: %s", buf.String())
	}
}

func TestCheckTrackerAvgScanDuration(t *testing.T) {
	ct := NewCheckTracker(zerolog.Nop(), 0)

	if got := ct.AvgScanDuration(); got != 0 {
		t.Errorf("AvgScanDuration() = %v before any check, want 0", got)
	}

	ct.RecordCheck(10 * time.Millisecond)
	ct.RecordCheck(30 * time.Millisecond)
	if got := ct.AvgScanDuration(); got != 20*time.Millisecond {
		t.Errorf("AvgScanDuration() = %v, want 20ms", got)
	}

	// Moving window keeps only the most recent durations.
	for i := 0; i < 20; i++ {
		ct.RecordCheck(40 * time.Millisecond)
	}
	if got := ct.AvgScanDuration(); got != 40*time.Millisecond {
		t.Errorf("AvgScanDuration() = %v after window rollover, want 40ms", got)
	}
}
