// Package annotate turns ended fixations into annotation decisions.
//
// The engine scores each fixation against the external context analyzer,
// suppresses near-duplicate decisions, and hands qualifying decisions to
// the downstream annotation manager without ever blocking the detector.
package annotate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// ContextAnalyzer is the external capability that inspects the waveform
// around a fixation. It may be slow and it may fail; neither stalls or
// fails the pipeline.
type ContextAnalyzer interface {
	Analyze(ctx context.Context, channel string, start, end float64) (gaze.ContextSummary, error)
}

// Publisher delivers decisions to the annotation manager. Implementations
// must not block the caller for long; the Kafka publisher writes async.
type Publisher interface {
	Publish(ctx context.Context, d gaze.AnnotationDecision)
}

// Recorder receives every scored fixation for analytics, including the
// rejected ones that never become decisions.
type Recorder interface {
	RecordFixation(fix gaze.Fixation, quality float64, accepted bool)
	RecordDecision(d gaze.AnnotationDecision)
}

// Engine scores fixations and emits at most one decision per fixation.
type Engine struct {
	cfg      config.AnnotationConfig
	analyzer ContextAnalyzer
	pub      Publisher
	rec      Recorder

	// Total recording duration; decision time ranges are clipped to it.
	totalDuration float64

	mu     sync.Mutex
	recent []cooldownEntry
	audit  []gaze.AnnotationDecision

	wg sync.WaitGroup
}

type cooldownEntry struct {
	channel   int
	start     float64
	end       float64
	decidedAt time.Time
}

func NewEngine(cfg config.AnnotationConfig, totalDuration float64, analyzer ContextAnalyzer, pub Publisher, rec Recorder) *Engine {
	return &Engine{
		cfg:           cfg,
		analyzer:      analyzer,
		pub:           pub,
		rec:           rec,
		totalDuration: totalDuration,
	}
}

// OnFixationEnd launches the scoring asynchronously so a slow context
// lookup can never stall fixation processing. The detector returns to
// idle immediately; session stop cancels ctx and abandons the lookup.
func (e *Engine) OnFixationEnd(ctx context.Context, fix gaze.Fixation) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.handle(ctx, fix)
	}()
}

// handle is the synchronous core, exercised directly by tests.
func (e *Engine) handle(ctx context.Context, fix gaze.Fixation) *gaze.AnnotationDecision {
	if fix.Channel == gaze.ChannelNone {
		return nil
	}

	summary := e.lookup(ctx, fix)
	quality := e.score(fix, summary)

	if quality < e.cfg.QualityMinimum {
		log.Debug().
			Str("fixation_id", fix.ID.String()).
			Float64("quality", quality).
			Msg("Fixation below annotation quality minimum")
		if e.rec != nil {
			e.rec.RecordFixation(fix, quality, false)
		}
		return nil
	}

	start, end := e.timeRange(fix)
	decision := gaze.AnnotationDecision{
		ID:           uuid.New(),
		FixationID:   fix.ID,
		Channel:      fix.ChannelName,
		ChannelIndex: fix.Channel,
		StartTime:    start,
		EndTime:      end,
		Quality:      quality,
		Category:     categorize(summary),
		Provenance: gaze.Provenance{
			GazeGenerated:  true,
			DurationMS:     fix.DurationMS(),
			Stability:      fix.Stability,
			MeanConfidence: fix.MeanConfidence,
			DispersionPx:   fix.DispersionPx,
			Significance:   summary.Significance,
			SpikeScore:     summary.SpikeScore,
			ArtifactScore:  summary.ArtifactScore,
		},
		CreatedAt: time.Now(),
	}

	if !e.admit(decision) {
		log.Debug().
			Str("fixation_id", fix.ID.String()).
			Str("channel", decision.Channel).
			Msg("Duplicate decision suppressed by cooldown")
		if e.rec != nil {
			e.rec.RecordFixation(fix, quality, false)
		}
		return nil
	}

	if e.rec != nil {
		e.rec.RecordFixation(fix, quality, true)
		e.rec.RecordDecision(decision)
	}
	if e.pub != nil {
		e.pub.Publish(ctx, decision)
	}

	log.Info().
		Str("decision_id", decision.ID.String()).
		Str("channel", decision.Channel).
		Str("category", string(decision.Category)).
		Float64("quality", quality).
		Msg("Annotation decision emitted")

	return &decision
}

// lookup queries the context analyzer; a failure means significance 0,
// never a pipeline error.
func (e *Engine) lookup(ctx context.Context, fix gaze.Fixation) gaze.ContextSummary {
	if e.analyzer == nil {
		return gaze.ContextSummary{}
	}
	start, end := e.timeRange(fix)
	summary, err := e.analyzer.Analyze(ctx, fix.ChannelName, start, end)
	if err != nil {
		log.Warn().Err(err).
			Str("channel", fix.ChannelName).
			Msg("Context lookup failed, treating significance as zero")
		return gaze.ContextSummary{}
	}
	return summary
}

func (e *Engine) score(fix gaze.Fixation, summary gaze.ContextSummary) float64 {
	ws := e.cfg.StabilityWeight
	wc := e.cfg.ConfidenceWeight
	wx := e.cfg.ContextWeight
	total := ws + wc + wx

	return (ws*clamp01(fix.Stability) +
		wc*clamp01(fix.MeanConfidence) +
		wx*clamp01(summary.Significance)) / total
}

// timeRange centers the annotation window on the fixation centroid and
// clips it to the recording bounds. The half window defaults to half the
// fixation duration when not configured.
func (e *Engine) timeRange(fix gaze.Fixation) (float64, float64) {
	half := e.cfg.HalfWindowSec
	if half <= 0 {
		half = float64(fix.DurationMS()) / 2000.0
	}
	start := fix.DomainTime - half
	end := fix.DomainTime + half
	if start < 0 {
		start = 0
	}
	if e.totalDuration > 0 && end > e.totalDuration {
		end = e.totalDuration
	}
	return start, end
}

// admit applies the cooldown: a decision over a near-identical channel
// and overlapping time range within the cooldown window is a duplicate
// from a single lingering glance.
func (e *Engine) admit(d gaze.AnnotationDecision) bool {
	cooldown := time.Duration(e.cfg.CooldownMs) * time.Millisecond
	now := d.CreatedAt

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.recent[:0]
	admitted := true
	for _, r := range e.recent {
		if now.Sub(r.decidedAt) > cooldown {
			continue
		}
		kept = append(kept, r)
		if r.channel == d.ChannelIndex && r.start < d.EndTime && d.StartTime < r.end {
			admitted = false
		}
	}
	e.recent = kept

	if admitted {
		e.recent = append(e.recent, cooldownEntry{
			channel:   d.ChannelIndex,
			start:     d.StartTime,
			end:       d.EndTime,
			decidedAt: now,
		})
		e.audit = append(e.audit, d)
	}
	return admitted
}

func categorize(s gaze.ContextSummary) gaze.Category {
	const signalFloor = 0.5
	switch {
	case s.SpikeScore >= signalFloor && s.SpikeScore >= s.ArtifactScore:
		return gaze.CategorySpikeLike
	case s.ArtifactScore >= signalFloor:
		return gaze.CategoryArtifactLike
	}
	return gaze.CategoryGeneric
}

// Audit returns a copy of every admitted decision, kept for export
// regardless of the annotation manager's outcome.
func (e *Engine) Audit() []gaze.AnnotationDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]gaze.AnnotationDecision, len(e.audit))
	copy(out, e.audit)
	return out
}

// Wait blocks until in-flight lookups finish. Tests use it; session stop
// deliberately does not.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
