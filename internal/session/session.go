// Package session owns the lifetime of one review session: the bounded
// sample queue, the single processing goroutine running mapper -> filter
// -> detector, and the fan-out of fixation events to the annotation
// engine and the scroll controller.
//
// The queue is single-producer/single-consumer with a drop-oldest
// overflow policy: the newest gaze position wins over completeness, and
// every drop feeds the loss counter. All filter and detector state is
// confined to the processing goroutine, so the pipeline itself needs no
// locks.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/analytics"
	"github.com/eyereview/gazepipe/internal/annotate"
	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/filter"
	"github.com/eyereview/gazepipe/internal/fixation"
	"github.com/eyereview/gazepipe/internal/gaze"
	"github.com/eyereview/gazepipe/internal/mapper"
	"github.com/eyereview/gazepipe/internal/scroll"
	"github.com/eyereview/gazepipe/internal/source"
)

// Stats is a snapshot of pipeline health counters.
type Stats struct {
	SamplesTotal   uint64
	SamplesMapped  uint64
	SamplesPassed  uint64
	FilterDropped  uint64
	QueueDrops     uint64
	Fixations      uint64
	Quality        gaze.SignalQuality
	ScrollProgress gaze.ScrollProgress
}

// Session wires one source into one pipeline instance. Exactly one
// FilterState and one scroll state exist per session.
type Session struct {
	cfg *config.Config

	src    source.Source
	flt    *filter.Pipeline
	det    *fixation.Detector
	engine *annotate.Engine
	scroll *scroll.Controller
	agg    *analytics.Aggregator

	queue    chan gaze.RawSample
	viewport atomic.Pointer[gaze.ViewportContext]

	samplesTotal  atomic.Uint64
	samplesMapped atomic.Uint64
	samplesPassed atomic.Uint64
	queueDrops    atomic.Uint64
	fixations     atomic.Uint64
	degraded      atomic.Bool

	cancel  context.CancelFunc
	done    chan struct{}
	errMu   sync.Mutex
	termErr error

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
}

func New(cfg *config.Config, src source.Source, engine *annotate.Engine, ctrl *scroll.Controller, agg *analytics.Aggregator) *Session {
	return &Session{
		cfg:    cfg,
		src:    src,
		flt:    filter.NewPipeline(cfg.Filter),
		det:    fixation.NewDetector(cfg.Fixation),
		engine: engine,
		scroll: ctrl,
		agg:    agg,
		queue:  make(chan gaze.RawSample, cfg.Session.QueueCapacity),
		done:   make(chan struct{}),
	}
}

// UpdateViewport installs a fresh immutable snapshot from the host
// viewer. The pipeline always operates on the most recent one.
func (s *Session) UpdateViewport(v gaze.ViewportContext) {
	s.viewport.Store(&v)
}

// Start launches the producer and processing goroutines and begins
// auto-scrolling. It returns immediately.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.stopped.Load() {
			return
		}
		sctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		go s.scroll.Run(sctx)
		s.scroll.Start()

		go s.produce(sctx)
		go s.process(sctx)

		log.Info().
			Str("session_id", s.cfg.Session.ID).
			Str("source", s.cfg.Source.Kind).
			Int("queue_capacity", s.cfg.Session.QueueCapacity).
			Msg("Session started")
	})
}

// Stop is the cancellation boundary: the queue is discarded, filter and
// detector state reset, and in-flight context lookups abandoned.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.cancel == nil {
			// Never started: no goroutines to wait for. A later Start is
			// a no-op, so the session is terminally stopped.
			close(s.done)
			return
		}
		s.cancel()
		<-s.done
		log.Info().Str("session_id", s.cfg.Session.ID).Msg("Session stopped")
	})
}

// Done closes when the processing goroutine has exited, whether from
// Stop, end-of-stream, or hardware loss.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports the terminal error after Done, nil for a clean end.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.termErr
}

// Stats returns a health snapshot; safe from any goroutine.
func (s *Session) Stats() Stats {
	quality := gaze.SignalOK
	if s.degraded.Load() {
		quality = gaze.SignalDegraded
	}
	return Stats{
		SamplesTotal:   s.samplesTotal.Load(),
		SamplesMapped:  s.samplesMapped.Load(),
		SamplesPassed:  s.samplesPassed.Load(),
		FilterDropped:  s.flt.Dropped(),
		QueueDrops:     s.queueDrops.Load(),
		Fixations:      s.fixations.Load(),
		Quality:        quality,
		ScrollProgress: s.scroll.Snapshot(),
	}
}

// produce runs the sample source and feeds the queue. A source error is
// the hardware-loss terminal signal: the session must end, not stall.
func (s *Session) produce(ctx context.Context) {
	err := s.src.Run(ctx, s.push)
	if err != nil && ctx.Err() == nil {
		s.errMu.Lock()
		s.termErr = xerrors.New("sample source terminated", err)
		s.errMu.Unlock()

		log.Error().Err(err).Msg("Hardware loss, ending session")
		s.scroll.ManualStop()
		s.cancel()
		return
	}
	close(s.queue)
}

// push enqueues one sample, evicting the oldest on overflow so the
// consumer always sees the freshest gaze position.
func (s *Session) push(sample gaze.RawSample) {
	select {
	case s.queue <- sample:
		return
	default:
	}

	select {
	case <-s.queue:
		s.queueDrops.Add(1)
		s.agg.CountQueueDrop()
	default:
	}

	select {
	case s.queue <- sample:
	default:
		s.queueDrops.Add(1)
		s.agg.CountQueueDrop()
	}
}

// process is the single owner of all pipeline state.
func (s *Session) process(ctx context.Context) {
	defer close(s.done)
	defer s.reset()

	degradedSince := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return

		case sample, ok := <-s.queue:
			if !ok {
				// Clean end-of-stream: finalize any confirmed fixation.
				if vp := s.viewport.Load(); vp != nil {
					s.dispatch(ctx, s.det.Finish(*vp))
				}
				return
			}

			s.samplesTotal.Add(1)

			vp := s.viewport.Load()
			if vp == nil {
				// No viewport from the host yet; nothing to map against.
				s.agg.CountSample(true)
				continue
			}
			snapshot := *vp

			mp, ok := mapper.Map(sample, s.cfg.Annotation.Calibration, snapshot)
			if !ok {
				s.agg.CountSample(true)
				continue
			}
			s.samplesMapped.Add(1)

			fp, ok := s.flt.Process(mp)
			s.trackQuality(&degradedSince)
			if !ok {
				s.agg.CountSample(true)
				continue
			}

			// Smoothing moved the point; rebind its domain coordinates.
			fp, ok = mapper.Rebind(fp, snapshot)
			if !ok {
				s.agg.CountSample(true)
				continue
			}

			s.samplesPassed.Add(1)
			s.agg.CountSample(false)
			s.dispatch(ctx, s.det.Process(fp, snapshot))
		}
	}
}

func (s *Session) dispatch(ctx context.Context, events []gaze.FixationEvent) {
	for _, ev := range events {
		s.scroll.OnFixationEvent(ev)
		if ev.Kind == gaze.FixationEnd {
			s.fixations.Add(1)
			s.agg.CountFixation()
			s.engine.OnFixationEnd(ctx, ev.Fixation)
		}
	}
}

// trackQuality logs degraded-quality transitions and accounts the time
// spent degraded. Degraded never halts processing.
func (s *Session) trackQuality(since *time.Time) {
	degraded := s.flt.Quality() == gaze.SignalDegraded
	was := s.degraded.Swap(degraded)

	switch {
	case degraded && !was:
		*since = time.Now()
		log.Warn().
			Uint64("dropped", s.flt.Dropped()).
			Msg("Signal quality degraded")
	case !degraded && was:
		s.agg.CountDegraded(time.Since(*since))
		log.Info().Msg("Signal quality recovered")
	}
}

func (s *Session) reset() {
	if s.degraded.Load() {
		s.degraded.Store(false)
	}
	s.flt.Reset()
	s.det.Reset()
}
