// Package filter cleans the mapped gaze stream before fixation detection.
//
// Stages run in a fixed order, each one either passing a corrected point
// or dropping the sample: confidence gate, predictive smoothing, median
// despiking, statistical outlier rejection. One Pipeline instance belongs
// to exactly one session and is owned by its processing goroutine; only
// the counters are atomic, since health snapshots read them from other
// goroutines.
package filter

import (
	"sync/atomic"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Pipeline is the ordered filter chain with its per-session state.
type Pipeline struct {
	cfg config.FilterConfig

	smoothX *axisSmoother
	smoothY *axisSmoother
	medianX *medianWindow
	medianY *medianWindow
	gate    *outlierGate
	loss    *lossWindow

	processed atomic.Uint64
	dropped   atomic.Uint64
}

func NewPipeline(cfg config.FilterConfig) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		smoothX: newAxisSmoother(cfg.SmoothingAlpha, cfg.SmoothingBeta),
		smoothY: newAxisSmoother(cfg.SmoothingAlpha, cfg.SmoothingBeta),
		medianX: newMedianWindow(cfg.MedianWindow),
		medianY: newMedianWindow(cfg.MedianWindow),
		gate:    newOutlierGate(cfg.OutlierSigma, cfg.OutlierHalfLifeMs),
		loss:    newLossWindow(cfg.LossWindowMs, cfg.LossRateThreshold),
	}
}

// Process runs one mapped point through the chain. ok is false when any
// stage dropped the sample; the point's journey simply ends there.
func (p *Pipeline) Process(pt gaze.MappedPoint) (gaze.MappedPoint, bool) {
	p.processed.Add(1)

	// Stage 1: confidence gate.
	if pt.Confidence < p.cfg.ConfidenceThreshold {
		return p.drop(pt)
	}

	// Stage 2: predictive smoothing.
	pt.ScreenX = p.smoothX.update(pt.ScreenX, pt.Confidence, pt.Timestamp)
	pt.ScreenY = p.smoothY.update(pt.ScreenY, pt.Confidence, pt.Timestamp)

	// Stage 3: median despiking.
	pt.ScreenX = p.medianX.push(pt.ScreenX)
	pt.ScreenY = p.medianY.push(pt.ScreenY)

	// Stage 4: outlier rejection.
	if !p.gate.admit(pt.ScreenX, pt.ScreenY, pt.Timestamp) {
		return p.drop(pt)
	}

	p.loss.record(pt.Timestamp, false)
	return pt, true
}

func (p *Pipeline) drop(pt gaze.MappedPoint) (gaze.MappedPoint, bool) {
	p.dropped.Add(1)
	p.loss.record(pt.Timestamp, true)
	return gaze.MappedPoint{}, false
}

// Quality reports the current signal-quality condition. Degraded never
// halts processing; it is surfaced for health reporting only.
func (p *Pipeline) Quality() gaze.SignalQuality {
	return p.loss.quality()
}

// Dropped returns the total number of samples lost to any stage.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// Processed returns the total number of samples seen.
func (p *Pipeline) Processed() uint64 {
	return p.processed.Load()
}

// Reset clears all stage state. Called at session stop.
func (p *Pipeline) Reset() {
	p.smoothX.reset()
	p.smoothY.reset()
	p.medianX.reset()
	p.medianY.reset()
	p.gate.reset()
	p.loss.reset()
	p.processed.Store(0)
	p.dropped.Store(0)
}
