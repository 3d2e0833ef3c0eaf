package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eyereview/gazepipe/internal/annotate"
	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
	"github.com/eyereview/gazepipe/internal/scroll"
	"github.com/eyereview/gazepipe/internal/source"
)

// scriptedSource replays a fixed sample sequence and ends cleanly.
type scriptedSource struct {
	samples []gaze.RawSample
}

func (s *scriptedSource) Run(ctx context.Context, emit func(gaze.RawSample)) error {
	for _, smp := range s.samples {
		if ctx.Err() != nil {
			return nil
		}
		emit(smp)
	}
	return nil
}

// failingSource simulates tracker hardware loss after a few samples.
type failingSource struct{}

func (s *failingSource) Run(ctx context.Context, emit func(gaze.RawSample)) error {
	for i := 0; i < 5; i++ {
		emit(gaze.RawSample{X: 0.4, Y: 0.25, Confidence: 0.9, Timestamp: int64(i) * 16667})
	}
	return errors.New("tracker unplugged")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Session.ID = "test-session"
	cfg.Session.TotalDurationSec = 1800
	// Keep the auto-scroll out of the way; these tests drive the
	// pipeline, not the viewport.
	cfg.Scroll.CadenceMs = 60000
	return cfg
}

// steadySamples builds a stream holding one position long enough to
// confirm a fixation.
func steadySamples(n int) []gaze.RawSample {
	samples := make([]gaze.RawSample, n)
	for i := range samples {
		samples[i] = gaze.RawSample{
			X:          0.4,
			Y:          0.25,
			Confidence: 0.9,
			Timestamp:  int64(i) * 16667,
		}
	}
	return samples
}

func newTestSession(cfg *config.Config, src source.Source) (*Session, *annotate.Engine) {
	engine := annotate.NewEngine(cfg.Annotation, cfg.Session.TotalDurationSec, nil, nil, nil)
	ctrl := scroll.NewController(cfg.Scroll, nil, cfg.Viewport.WindowSec, cfg.Session.TotalDurationSec)
	sess := New(cfg, src, engine, ctrl, nil)
	sess.UpdateViewport(cfg.Viewport.Snapshot())
	return sess, engine
}

// TestSteadyGazeProducesDecision runs the full pipeline on a synthetic
// dwell: map, filter, detect, annotate.
func TestSteadyGazeProducesDecision(t *testing.T) {
	cfg := testConfig()
	sess, engine := newTestSession(cfg, &scriptedSource{samples: steadySamples(120)})

	sess.Start(context.Background())
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	if err := sess.Err(); err != nil {
		t.Fatalf("clean stream reported error: %v", err)
	}
	engine.Wait()

	stats := sess.Stats()
	if stats.SamplesTotal != 120 {
		t.Errorf("samples total: got %d, want 120", stats.SamplesTotal)
	}
	if stats.SamplesPassed == 0 {
		t.Error("no samples survived the filter chain")
	}
	if stats.Fixations != 1 {
		t.Errorf("fixations: got %d, want 1", stats.Fixations)
	}

	audit := engine.Audit()
	if len(audit) != 1 {
		t.Fatalf("decisions: got %d, want 1", len(audit))
	}
	d := audit[0]
	if d.Channel != "C4" || d.ChannelIndex != 5 {
		t.Errorf("decision channel: got %q/%d, want C4/5", d.Channel, d.ChannelIndex)
	}
	if !d.Provenance.GazeGenerated {
		t.Error("decision must carry gaze provenance")
	}
}

// TestHardwareLossEndsSession verifies a source error surfaces as the
// terminal session error and stops the scroll.
func TestHardwareLossEndsSession(t *testing.T) {
	cfg := testConfig()
	sess, _ := newTestSession(cfg, &failingSource{})

	sess.Start(context.Background())
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end on hardware loss")
	}

	if sess.Err() == nil {
		t.Error("hardware loss did not surface as an error")
	}
	if !waitFor(time.Second, func() bool {
		return sess.Stats().ScrollProgress.Mode == gaze.ScrollStopped
	}) {
		t.Errorf("scroll mode: got %v, want stopped", sess.Stats().ScrollProgress.Mode)
	}
}

// TestNoViewportDropsSamples verifies samples arriving before the host
// pushes a viewport are counted but never processed.
func TestNoViewportDropsSamples(t *testing.T) {
	cfg := testConfig()
	engine := annotate.NewEngine(cfg.Annotation, cfg.Session.TotalDurationSec, nil, nil, nil)
	ctrl := scroll.NewController(cfg.Scroll, nil, cfg.Viewport.WindowSec, cfg.Session.TotalDurationSec)
	sess := New(cfg, &scriptedSource{samples: steadySamples(20)}, engine, ctrl, nil)
	// No UpdateViewport call.

	sess.Start(context.Background())
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	stats := sess.Stats()
	if stats.SamplesTotal != 20 {
		t.Errorf("samples total: got %d, want 20", stats.SamplesTotal)
	}
	if stats.SamplesMapped != 0 || stats.Fixations != 0 {
		t.Errorf("processed without a viewport: mapped=%d fixations=%d", stats.SamplesMapped, stats.Fixations)
	}
}

// TestStopDiscardsInFlightState verifies Stop ends the session without
// finalizing the in-flight fixation.
func TestStopDiscardsInFlightState(t *testing.T) {
	cfg := testConfig()

	// A source that never ends on its own.
	blocking := &blockingSource{release: make(chan struct{})}
	sess, engine := newTestSession(cfg, blocking)

	sess.Start(context.Background())
	// Let the dwell confirm, then stop mid-fixation.
	if !waitFor(5*time.Second, func() bool { return sess.Stats().SamplesPassed >= 100 }) {
		t.Fatal("pipeline never processed the dwell")
	}
	sess.Stop()
	close(blocking.release)
	engine.Wait()

	if got := sess.Stats().Fixations; got != 0 {
		t.Errorf("stop finalized %d fixations, want 0", got)
	}
	if len(engine.Audit()) != 0 {
		t.Error("stop produced annotation decisions")
	}
}

// TestStopBeforeStartReturns verifies Stop on a never-started session
// returns immediately and leaves it terminally stopped.
func TestStopBeforeStartReturns(t *testing.T) {
	cfg := testConfig()
	sess, _ := newTestSession(cfg, &scriptedSource{samples: steadySamples(20)})

	stopped := make(chan struct{})
	go func() {
		sess.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a session that never started")
	}

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}

	// A later Start is a no-op: nothing runs, nothing is consumed.
	sess.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := sess.Stats().SamplesTotal; got != 0 {
		t.Errorf("stopped session processed %d samples", got)
	}
}

type blockingSource struct {
	release chan struct{}
}

func (s *blockingSource) Run(ctx context.Context, emit func(gaze.RawSample)) error {
	samples := steadySamples(150)
	for _, smp := range samples {
		if ctx.Err() != nil {
			return nil
		}
		emit(smp)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.release:
		return nil
	}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
