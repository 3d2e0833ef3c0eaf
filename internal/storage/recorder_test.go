package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// TestFixationRowStartFromSampleClock verifies the analytics row carries
// the instant the fixation's own samples describe, not its arrival time:
// a fixation recorded late still lands where it happened.
func TestFixationRowStartFromSampleClock(t *testing.T) {
	epoch := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	r := &Recorder{
		sessionID: "s-1",
		batchCfg:  config.BatchConfig{Size: 100, FlushInterval: time.Hour},
		epoch:     epoch,
		fixations: make([]FixationRow, 0, 8),
		done:      make(chan struct{}),
	}

	fix := gaze.Fixation{
		ID:          uuid.New(),
		StartUS:     90_000_000,
		EndUS:       91_500_000,
		Channel:     3,
		ChannelName: "F4",
	}
	r.RecordFixation(fix, 0.8, true)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fixations) != 1 {
		t.Fatalf("buffered rows: got %d, want 1", len(r.fixations))
	}
	row := r.fixations[0]
	if want := epoch.Add(90 * time.Second); !row.StartTime.Equal(want) {
		t.Errorf("start time: got %v, want %v", row.StartTime, want)
	}
	if row.DurationMs != 1500 {
		t.Errorf("duration: got %d, want 1500", row.DurationMs)
	}
}
