package filter

import (
	"math"
	"testing"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

func testConfig() config.FilterConfig {
	return config.FilterConfig{
		ConfidenceThreshold: 0.70,
		SmoothingAlpha:      0.6,
		SmoothingBeta:       0.2,
		MedianWindow:        5,
		OutlierSigma:        2.0,
		OutlierHalfLifeMs:   1000,
		LossRateThreshold:   0.5,
		LossWindowMs:        1000,
	}
}

func point(x, y, conf float64, tUS int64) gaze.MappedPoint {
	return gaze.MappedPoint{ScreenX: x, ScreenY: y, Confidence: conf, Timestamp: tUS}
}

// TestConfidenceGateDrops verifies low-confidence samples never reach the
// later stages and are accounted as dropped.
func TestConfidenceGateDrops(t *testing.T) {
	p := NewPipeline(testConfig())

	if _, ok := p.Process(point(100, 100, 0.3, 0)); ok {
		t.Fatal("sample below the confidence threshold must be dropped")
	}
	if p.Dropped() != 1 || p.Processed() != 1 {
		t.Errorf("counters: dropped=%d processed=%d, want 1 and 1", p.Dropped(), p.Processed())
	}

	if _, ok := p.Process(point(100, 100, 0.9, 16667)); !ok {
		t.Fatal("sample above the confidence threshold must pass")
	}
	if p.Dropped() != 1 || p.Processed() != 2 {
		t.Errorf("counters after pass: dropped=%d processed=%d", p.Dropped(), p.Processed())
	}
}

// TestSmoothingTracksSteadyGaze verifies the chain output stays close to
// a stationary position fed with small jitter.
func TestSmoothingTracksSteadyGaze(t *testing.T) {
	p := NewPipeline(testConfig())

	const cx, cy = 400.0, 300.0
	var tUS int64
	passed := 0
	for i := 0; i < 120; i++ {
		jx := 3 * math.Sin(float64(i))
		jy := 3 * math.Cos(float64(i)*1.3)
		out, ok := p.Process(point(cx+jx, cy+jy, 0.9, tUS))
		tUS += 16667
		if !ok {
			// The sigma gate may clip an occasional jitter extreme.
			continue
		}
		passed++
		if i > 10 {
			if math.Abs(out.ScreenX-cx) > 10 || math.Abs(out.ScreenY-cy) > 10 {
				t.Fatalf("sample %d drifted to (%v, %v)", i, out.ScreenX, out.ScreenY)
			}
		}
	}
	if passed < 100 {
		t.Errorf("only %d of 120 steady samples passed", passed)
	}
	if p.Quality() != gaze.SignalOK {
		t.Error("steady gaze reported degraded quality")
	}
}

// TestRampStaysWithinInputRange verifies the chain never overshoots: every
// emitted position lies within the range of the inputs seen so far, across
// a dwell, a ramp toward the far side, and a hold at the destination.
func TestRampStaysWithinInputRange(t *testing.T) {
	for _, speed := range []float64{4, 8, 16, 24, 40} {
		p := NewPipeline(testConfig())

		var inputs []float64
		for i := 0; i < 40; i++ {
			inputs = append(inputs, 300+2*math.Sin(float64(i)))
		}
		x := inputs[len(inputs)-1]
		for x < 900 {
			x += speed
			inputs = append(inputs, x)
		}
		for i := 0; i < 60; i++ {
			inputs = append(inputs, x)
		}

		minIn, maxIn := inputs[0], inputs[0]
		var tUS int64
		passed := 0
		for i, in := range inputs {
			minIn = math.Min(minIn, in)
			maxIn = math.Max(maxIn, in)
			out, ok := p.Process(point(in, 400, 0.9, tUS))
			tUS += 16667
			if !ok {
				continue
			}
			passed++
			if out.ScreenX < minIn-1e-9 || out.ScreenX > maxIn+1e-9 {
				t.Errorf("speed %v sample %d: output %v outside input range [%v, %v]",
					speed, i, out.ScreenX, minIn, maxIn)
			}
			if math.Abs(out.ScreenY-400) > 1e-9 {
				t.Errorf("speed %v sample %d: steady axis moved to %v", speed, i, out.ScreenY)
			}
		}
		if passed < 40 {
			t.Errorf("speed %v: only %d samples passed", speed, passed)
		}
	}
}

// TestCountersSafeUnderConcurrentReads polls the totals from another
// goroutine while the owner streams samples, the way a session stats
// snapshot does.
func TestCountersSafeUnderConcurrentReads(t *testing.T) {
	p := NewPipeline(testConfig())

	const n = 20000
	done := make(chan struct{})
	go func() {
		defer close(done)
		var tUS int64
		for i := 0; i < n; i++ {
			conf := 0.9
			if i%2 == 1 {
				conf = 0.1
			}
			p.Process(point(400, 300, conf, tUS))
			tUS += 16667
		}
	}()

	for {
		select {
		case <-done:
			if p.Processed() != n {
				t.Errorf("processed: got %d, want %d", p.Processed(), n)
			}
			if p.Dropped() < n/2 {
				t.Errorf("dropped: got %d, want at least %d", p.Dropped(), n/2)
			}
			return
		default:
			// Dropped is loaded first, so it can never outrun processed.
			if p.Dropped() > p.Processed() {
				t.Fatalf("dropped %d exceeds processed %d", p.Dropped(), p.Processed())
			}
		}
	}
}

// TestMedianAbsorbsSpike verifies a single-sample spike does not move the
// output away from the cluster.
func TestMedianAbsorbsSpike(t *testing.T) {
	p := NewPipeline(testConfig())

	var tUS int64
	for i := 0; i < 20; i++ {
		p.Process(point(400, 300, 0.9, tUS))
		tUS += 16667
	}

	out, ok := p.Process(point(1400, 900, 0.9, tUS))
	if ok {
		// Either the median holds the point near the cluster or the
		// outlier gate drops it. Both keep the spike out of the stream.
		if math.Abs(out.ScreenX-400) > 50 || math.Abs(out.ScreenY-300) > 50 {
			t.Errorf("spike leaked through: (%v, %v)", out.ScreenX, out.ScreenY)
		}
	}
}

// TestOutlierGateRejectsJump exercises the gate directly: after warmup on
// a tight cluster, a distant point is rejected.
func TestOutlierGateRejectsJump(t *testing.T) {
	g := newOutlierGate(2.0, 1000)

	var tUS int64
	for i := 0; i < 30; i++ {
		// Small jitter so the variance estimate is nonzero.
		x := 400 + math.Sin(float64(i))
		y := 300 + math.Cos(float64(i))
		if !g.admit(x, y, tUS) {
			t.Fatalf("cluster point %d rejected during warmup", i)
		}
		tUS += 16667
	}

	if g.admit(1200, 900, tUS) {
		t.Error("distant jump admitted after warmup")
	}
	if !g.admit(400.5, 300.5, tUS+16667) {
		t.Error("cluster point rejected after the jump")
	}
}

// TestOutlierGateWarmup verifies nothing is rejected before the estimate
// settles.
func TestOutlierGateWarmup(t *testing.T) {
	g := newOutlierGate(2.0, 1000)

	positions := []struct{ x, y float64 }{
		{100, 100}, {900, 700}, {100, 100}, {900, 700}, {500, 400},
	}
	var tUS int64
	for i, p := range positions {
		if !g.admit(p.x, p.y, tUS) {
			t.Errorf("point %d rejected before warmup completed", i)
		}
		tUS += 16667
	}
}

// TestQualityDegradesOnSustainedLoss verifies the rolling loss window
// flips to degraded only with enough evidence.
func TestQualityDegradesOnSustainedLoss(t *testing.T) {
	p := NewPipeline(testConfig())

	// A few early drops are not enough evidence.
	var tUS int64
	for i := 0; i < 5; i++ {
		p.Process(point(400, 300, 0.1, tUS))
		tUS += 16667
	}
	if p.Quality() != gaze.SignalOK {
		t.Error("quality degraded on insufficient evidence")
	}

	for i := 0; i < 20; i++ {
		p.Process(point(400, 300, 0.1, tUS))
		tUS += 16667
	}
	if p.Quality() != gaze.SignalDegraded {
		t.Error("sustained loss did not degrade quality")
	}

	// Recovery: the window slides past the dropped samples.
	for i := 0; i < 80; i++ {
		p.Process(point(400, 300, 0.9, tUS))
		tUS += 16667
	}
	if p.Quality() != gaze.SignalOK {
		t.Error("quality did not recover after loss stopped")
	}
}

// TestResetClearsState verifies counters and stage state reset together.
func TestResetClearsState(t *testing.T) {
	p := NewPipeline(testConfig())

	var tUS int64
	for i := 0; i < 30; i++ {
		p.Process(point(400, 300, 0.9, tUS))
		tUS += 16667
	}
	p.Reset()

	if p.Processed() != 0 || p.Dropped() != 0 {
		t.Error("counters survived reset")
	}

	// A position far from the old cluster passes: no stale statistics.
	out, ok := p.Process(point(1200, 100, 0.9, tUS))
	if !ok {
		t.Fatal("first sample after reset dropped")
	}
	if out.ScreenX != 1200 || out.ScreenY != 100 {
		t.Errorf("first sample after reset was adjusted: (%v, %v)", out.ScreenX, out.ScreenY)
	}
}
