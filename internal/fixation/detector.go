// Package fixation implements dispersion-threshold fixation detection
// over the cleaned gaze stream.
//
// The detector is an explicit state machine (idle -> accumulating ->
// confirmed) that emits typed events instead of invoking callbacks. One
// detector belongs to one session and runs on its processing goroutine.
package fixation

import (
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// State identifies the detector phase.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateConfirmed:
		return "confirmed"
	}
	return "idle"
}

// Detector runs the dispersion-window algorithm.
type Detector struct {
	cfg config.FixationConfig

	state State
	buf   []gaze.MappedPoint

	// Set while confirmed.
	id      uuid.UUID
	channel int

	windowStart float64 // viewport time_window_start the accumulator was built against
	haveWindow  bool
}

func NewDetector(cfg config.FixationConfig) *Detector {
	return &Detector{cfg: cfg}
}

// State returns the current phase, for health reporting and tests.
func (d *Detector) CurrentState() State {
	return d.state
}

// Process consumes one cleaned point and returns zero or more events.
func (d *Detector) Process(p gaze.MappedPoint, ctx gaze.ViewportContext) []gaze.FixationEvent {
	var events []gaze.FixationEvent

	// A scroll moves the visual target; buffered domain times go stale.
	// Policy: forcibly end whatever is in flight and restart cleanly.
	if d.haveWindow && ctx.TimeWindowStart != d.windowStart {
		events = append(events, d.Invalidate(ctx)...)
	}
	d.windowStart = ctx.TimeWindowStart
	d.haveWindow = true

	switch d.state {
	case StateIdle:
		// Channel-less points may seed dispersion accumulation, but a
		// fixation only confirms on a valid dominant channel.
		d.buf = append(d.buf[:0], p)
		d.state = StateAccumulating

	case StateAccumulating:
		d.buf = append(d.buf, p)
		// Sliding re-anchor: shed the oldest points until the window fits.
		// Shedding down to the candidate alone is the saccade re-seed case.
		for len(d.buf) > 1 && dispersion(d.buf) > d.cfg.SpatialThresholdPx {
			d.buf = d.buf[1:]
		}
		if d.elapsedUS() >= d.cfg.TemporalWindowMs*1000 {
			if ev, ok := d.confirm(ctx); ok {
				events = append(events, ev)
			} else {
				// Temporal threshold met without a usable channel:
				// micro-glance over dead space, never reported.
				d.toIdle()
			}
		}

	case StateConfirmed:
		candidate := append(d.buf, p)
		switch {
		case p.Channel == gaze.ChannelNone,
			p.Channel != d.channel,
			dispersion(candidate) > d.cfg.SpatialThresholdPx:
			events = append(events, d.finish(ctx))
		default:
			d.buf = candidate
			events = append(events, gaze.FixationEvent{
				Kind:     gaze.FixationProgress,
				Fixation: d.snapshot(ctx),
			})
		}
	}

	return events
}

// Invalidate forcibly ends any in-flight fixation because the viewport
// changed under it. Accumulating state is discarded silently.
func (d *Detector) Invalidate(ctx gaze.ViewportContext) []gaze.FixationEvent {
	switch d.state {
	case StateConfirmed:
		return []gaze.FixationEvent{d.finish(ctx)}
	case StateAccumulating:
		d.toIdle()
	}
	return nil
}

// Finish handles the end-of-stream signal: a confirmed fixation is
// finalized, anything less is discarded.
func (d *Detector) Finish(ctx gaze.ViewportContext) []gaze.FixationEvent {
	return d.Invalidate(ctx)
}

// Reset returns the detector to idle without emitting anything. Used at
// session stop, where in-flight state is abandoned rather than finalized.
func (d *Detector) Reset() {
	d.toIdle()
	d.haveWindow = false
}

func (d *Detector) confirm(ctx gaze.ViewportContext) (gaze.FixationEvent, bool) {
	ch := dominantChannel(d.buf)
	if ch == gaze.ChannelNone {
		return gaze.FixationEvent{}, false
	}

	d.id = uuid.New()
	d.channel = ch
	d.state = StateConfirmed

	fix := d.snapshot(ctx)
	log.Debug().
		Str("fixation_id", d.id.String()).
		Int("channel", ch).
		Float64("dispersion_px", fix.DispersionPx).
		Msg("Fixation confirmed")

	return gaze.FixationEvent{Kind: gaze.FixationBegin, Fixation: fix}, true
}

func (d *Detector) finish(ctx gaze.ViewportContext) gaze.FixationEvent {
	fix := d.snapshot(ctx)
	d.toIdle()

	log.Debug().
		Str("fixation_id", fix.ID.String()).
		Int64("duration_ms", fix.DurationMS()).
		Float64("stability", fix.Stability).
		Msg("Fixation ended")

	return gaze.FixationEvent{Kind: gaze.FixationEnd, Fixation: fix}
}

// snapshot builds the fixation value for the current accumulator.
func (d *Detector) snapshot(ctx gaze.ViewportContext) gaze.Fixation {
	n := float64(len(d.buf))
	var sumX, sumY, sumT, sumC float64
	for _, p := range d.buf {
		sumX += p.ScreenX
		sumY += p.ScreenY
		sumT += p.DomainTime
		sumC += p.Confidence
	}

	disp := dispersion(d.buf)
	stability := 1 - disp/d.cfg.SpatialThresholdPx
	if stability < 0 {
		stability = 0
	} else if stability > 1 {
		stability = 1
	}

	return gaze.Fixation{
		ID:             d.id,
		StartUS:        d.buf[0].Timestamp,
		EndUS:          d.buf[len(d.buf)-1].Timestamp,
		CentroidX:      sumX / n,
		CentroidY:      sumY / n,
		DomainTime:     sumT / n,
		Channel:        d.channel,
		ChannelName:    ctx.ChannelName(d.channel),
		DispersionPx:   disp,
		SampleCount:    len(d.buf),
		MeanConfidence: sumC / n,
		Stability:      stability,
	}
}

func (d *Detector) toIdle() {
	d.state = StateIdle
	d.buf = d.buf[:0]
	d.id = uuid.Nil
	d.channel = gaze.ChannelNone
}

func (d *Detector) elapsedUS() int64 {
	if len(d.buf) < 2 {
		return 0
	}
	return d.buf[len(d.buf)-1].Timestamp - d.buf[0].Timestamp
}

// dispersion is the horizontal plus vertical spread of the bounding box.
// It bounds the max pairwise distance, so a confirmed fixation's points
// are always within the spatial threshold of each other.
func dispersion(points []gaze.MappedPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.ScreenX)
		maxX = math.Max(maxX, p.ScreenX)
		minY = math.Min(minY, p.ScreenY)
		maxY = math.Max(maxY, p.ScreenY)
	}
	return (maxX - minX) + (maxY - minY)
}

// dominantChannel picks the most frequent valid channel in the window.
func dominantChannel(points []gaze.MappedPoint) int {
	counts := make(map[int]int)
	for _, p := range points {
		if p.Channel != gaze.ChannelNone {
			counts[p.Channel]++
		}
	}
	best, bestN := gaze.ChannelNone, 0
	for ch, n := range counts {
		if n > bestN {
			best, bestN = ch, n
		}
	}
	return best
}
