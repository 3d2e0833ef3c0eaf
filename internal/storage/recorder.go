package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Recorder buffers analytics rows and flushes them to ClickHouse in
// batches, on size or on a ticker. It backs the annotation engine's
// analytics interface; a nil *Recorder is silently inert so sessions run
// fine without a configured sink.
type Recorder struct {
	ch        *ClickHouse
	sessionID string
	batchCfg  config.BatchConfig

	// epoch is the wall-clock instant of sample timestamp zero. Sources
	// stamp samples as microseconds since session start, so fixation
	// times are offsets against it regardless of queue latency.
	epoch time.Time

	mu        sync.Mutex
	fixations []FixationRow
	decisions []DecisionRow

	ticker *time.Ticker
	done   chan struct{}
}

func NewRecorder(ch *ClickHouse, sessionID string, batchCfg config.BatchConfig) *Recorder {
	r := &Recorder{
		ch:        ch,
		sessionID: sessionID,
		batchCfg:  batchCfg,
		epoch:     time.Now(),
		fixations: make([]FixationRow, 0, batchCfg.Size),
		decisions: make([]DecisionRow, 0, 64),
		done:      make(chan struct{}),
	}

	r.ticker = time.NewTicker(batchCfg.FlushInterval)
	go r.flushLoop()

	return r
}

// RecordFixation buffers one ended fixation with its score outcome.
func (r *Recorder) RecordFixation(fix gaze.Fixation, quality float64, accepted bool) {
	if r == nil {
		return
	}
	row := FixationRow{
		FixationID:     fix.ID,
		SessionID:      r.sessionID,
		Channel:        fix.ChannelName,
		ChannelIndex:   int32(fix.Channel),
		StartTime:      r.epoch.Add(time.Duration(fix.StartUS) * time.Microsecond),
		DurationMs:     uint64(fix.DurationMS()),
		DomainTime:     fix.DomainTime,
		DispersionPx:   fix.DispersionPx,
		SampleCount:    uint32(fix.SampleCount),
		MeanConfidence: fix.MeanConfidence,
		Stability:      fix.Stability,
		Quality:        quality,
		Accepted:       boolToUint8(accepted),
	}

	r.mu.Lock()
	r.fixations = append(r.fixations, row)
	shouldFlush := len(r.fixations) >= r.batchCfg.Size
	r.mu.Unlock()

	if shouldFlush {
		r.Flush()
	}
}

// RecordDecision buffers one emitted decision for audit.
func (r *Recorder) RecordDecision(d gaze.AnnotationDecision) {
	if r == nil {
		return
	}
	row := DecisionRow{
		DecisionID:   d.ID,
		FixationID:   d.FixationID,
		SessionID:    r.sessionID,
		Channel:      d.Channel,
		ChannelIndex: int32(d.ChannelIndex),
		StartSec:     d.StartTime,
		EndSec:       d.EndTime,
		Quality:      d.Quality,
		Category:     string(d.Category),
		Significance: d.Provenance.Significance,
		CreatedAt:    d.CreatedAt,
	}

	r.mu.Lock()
	r.decisions = append(r.decisions, row)
	r.mu.Unlock()
}

func (r *Recorder) flushLoop() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			r.Flush()
		}
	}
}

// Flush writes all buffered rows to ClickHouse.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if len(r.fixations) == 0 && len(r.decisions) == 0 {
		r.mu.Unlock()
		return
	}
	fixations := r.fixations
	decisions := r.decisions
	r.fixations = make([]FixationRow, 0, r.batchCfg.Size)
	r.decisions = make([]DecisionRow, 0, 64)
	r.mu.Unlock()

	ctx := context.Background()

	if len(fixations) > 0 {
		if err := r.ch.InsertFixations(ctx, fixations); err != nil {
			log.Error().Err(err).Int("count", len(fixations)).Msg("Failed to insert fixations")
		} else {
			log.Debug().Int("count", len(fixations)).Msg("Flushed fixations to ClickHouse")
		}
	}

	if len(decisions) > 0 {
		if err := r.ch.InsertDecisions(ctx, decisions); err != nil {
			log.Error().Err(err).Int("count", len(decisions)).Msg("Failed to insert decisions")
		} else {
			log.Debug().Int("count", len(decisions)).Msg("Flushed decisions to ClickHouse")
		}
	}
}

// Stop flushes the remaining rows and stops the ticker.
func (r *Recorder) Stop() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	close(r.done)
	r.Flush()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
