package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestApplyDefaultsFillsZeroConfig verifies an empty config comes back
// fully usable.
func TestApplyDefaultsFillsZeroConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Session.QueueCapacity != 256 {
		t.Errorf("queue capacity: got %d, want 256", cfg.Session.QueueCapacity)
	}
	if cfg.Source.Kind != "mock" {
		t.Errorf("source kind: got %q, want mock", cfg.Source.Kind)
	}
	if cfg.Filter.ConfidenceThreshold != 0.70 {
		t.Errorf("confidence threshold: got %v, want 0.70", cfg.Filter.ConfidenceThreshold)
	}
	if cfg.Fixation.SpatialThresholdPx != 50 || cfg.Fixation.TemporalWindowMs != 1000 {
		t.Errorf("fixation thresholds: got %v px / %v ms", cfg.Fixation.SpatialThresholdPx, cfg.Fixation.TemporalWindowMs)
	}
	if cfg.Scroll.CadenceMs != 2500 || cfg.Scroll.GraceMs != 2000 {
		t.Errorf("scroll timing: got %d / %d", cfg.Scroll.CadenceMs, cfg.Scroll.GraceMs)
	}
	if !cfg.Annotation.Calibration.Valid() {
		t.Error("default calibration must be valid")
	}
	if len(cfg.Viewport.Channels) != 16 {
		t.Errorf("channels: got %d, want 16", len(cfg.Viewport.Channels))
	}
	if cfg.Batch.Size != 500 || cfg.Batch.FlushInterval != 5*time.Second {
		t.Errorf("batch: got %d / %v", cfg.Batch.Size, cfg.Batch.FlushInterval)
	}
}

// TestApplyDefaultsClampsOutOfRange verifies invalid values fall back to
// the defaults instead of failing the session.
func TestApplyDefaultsClampsOutOfRange(t *testing.T) {
	var cfg Config
	cfg.Filter.ConfidenceThreshold = 1.5
	cfg.Filter.SmoothingAlpha = -0.2
	cfg.Scroll.CadenceMs = 100 // below the floor
	cfg.Scroll.OverlapFraction = 1.0
	cfg.Source.Mock.RateHz = 500
	cfg.ApplyDefaults()

	if cfg.Filter.ConfidenceThreshold != 0.70 {
		t.Errorf("confidence threshold not clamped: %v", cfg.Filter.ConfidenceThreshold)
	}
	if cfg.Filter.SmoothingAlpha != 0.6 {
		t.Errorf("smoothing alpha not clamped: %v", cfg.Filter.SmoothingAlpha)
	}
	if cfg.Scroll.CadenceMs != 2500 {
		t.Errorf("cadence not clamped: %d", cfg.Scroll.CadenceMs)
	}
	if cfg.Scroll.OverlapFraction != 0.1 {
		t.Errorf("overlap not clamped: %v", cfg.Scroll.OverlapFraction)
	}
	if cfg.Source.Mock.RateHz != 60 {
		t.Errorf("mock rate not clamped: %d", cfg.Source.Mock.RateHz)
	}
}

// TestMedianWindowForcedOdd verifies an even median window is widened by
// one so the median stays well defined.
func TestMedianWindowForcedOdd(t *testing.T) {
	var cfg Config
	cfg.Filter.MedianWindow = 6
	cfg.ApplyDefaults()
	if cfg.Filter.MedianWindow != 7 {
		t.Errorf("median window: got %d, want 7", cfg.Filter.MedianWindow)
	}
}

// TestLoadExpandsEnv verifies ${VAR} references in the file resolve from
// the environment before parsing.
func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CH_ADDR", "clickhouse:9000")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	data := []byte("session:\n  id: abc\nclickhouse:\n  addr: \"${TEST_CH_ADDR}\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClickHouse.Addr != "clickhouse:9000" {
		t.Errorf("addr: got %q, want clickhouse:9000", cfg.ClickHouse.Addr)
	}
	if cfg.Session.ID != "abc" {
		t.Errorf("session id: got %q", cfg.Session.ID)
	}
	// Defaults applied on top of the partial file.
	if cfg.Session.QueueCapacity != 256 {
		t.Errorf("defaults not applied: queue capacity %d", cfg.Session.QueueCapacity)
	}
}

// TestLoadMissingFile verifies a missing path is an error, not a silent
// default config.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

// TestViewportSnapshot verifies derived band geometry.
func TestViewportSnapshot(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	snap := cfg.Viewport.Snapshot()
	if snap.ChannelBandHeightPx != 50 {
		t.Errorf("band height: got %v, want 50", snap.ChannelBandHeightPx)
	}
	if snap.TimeWindowDuration != 10 {
		t.Errorf("window duration: got %v, want 10", snap.TimeWindowDuration)
	}
	if snap.ChannelName(0) != "Fp1" || snap.ChannelName(16) != "" {
		t.Error("channel order not carried into the snapshot")
	}
}
