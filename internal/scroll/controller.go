// Package scroll drives the adaptive auto-scroll of the host viewer.
//
// The controller is a goroutine-owned state machine: a cadence ticker
// produces advance requests while advancing, fixation-begin pauses it,
// fixation-end arms a grace timer that resumes stepping unless a new
// fixation lands first. Manual overrides always win and require an
// explicit resume. Pausing resets the cadence, so a resumed window
// always gets one full interval before the next advance.
package scroll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Driver is the host-viewer capability the controller advances through.
// AdvanceWindow is an opaque "advance by one window" command.
type Driver interface {
	AdvanceWindow(newStart float64)
}

type command int

const (
	cmdStart command = iota
	cmdManualPause
	cmdManualResume
	cmdManualStop
)

// Controller owns a session's ScrollState.
type Controller struct {
	cfg    config.ScrollConfig
	driver Driver

	windowDuration float64
	totalDuration  float64

	fixations chan gaze.FixationEvent
	commands  chan command
	progress  chan gaze.ScrollProgress

	mu    sync.Mutex
	state gaze.ScrollProgress
}

func NewController(cfg config.ScrollConfig, driver Driver, windowDuration, totalDuration float64) *Controller {
	return &Controller{
		cfg:            cfg,
		driver:         driver,
		windowDuration: windowDuration,
		totalDuration:  totalDuration,
		fixations:      make(chan gaze.FixationEvent, 64),
		commands:       make(chan command, 8),
		progress:       make(chan gaze.ScrollProgress, 64),
		state: gaze.ScrollProgress{
			Mode:          gaze.ScrollStopped,
			TotalDuration: totalDuration,
		},
	}
}

// OnFixationEvent feeds a detector event to the controller. Non-blocking:
// the pipeline must never stall on scroll bookkeeping.
func (c *Controller) OnFixationEvent(ev gaze.FixationEvent) {
	select {
	case c.fixations <- ev:
	default:
		log.Warn().Str("kind", ev.Kind.String()).Msg("Scroll event queue full, event dropped")
	}
}

// Start begins advancing from the current offset.
func (c *Controller) Start() { c.commands <- cmdStart }

// ManualPause forces Paused until ManualResume.
func (c *Controller) ManualPause() { c.commands <- cmdManualPause }

// ManualResume resumes from a manual pause.
func (c *Controller) ManualResume() { c.commands <- cmdManualResume }

// ManualStop forces Stopped; terminal for this session.
func (c *Controller) ManualStop() { c.commands <- cmdManualStop }

// Progress exposes state changes and advances to the host viewer.
func (c *Controller) Progress() <-chan gaze.ScrollProgress {
	return c.progress
}

// Snapshot returns the current state for health reporting and tests.
func (c *Controller) Snapshot() gaze.ScrollProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run owns the state machine until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	cadence := time.Duration(c.cfg.CadenceMs) * time.Millisecond
	graceDelay := time.Duration(c.cfg.GraceMs) * time.Millisecond

	ticker := time.NewTicker(cadence)
	ticker.Stop() // armed on cmdStart
	defer ticker.Stop()

	grace := time.NewTimer(graceDelay)
	stopTimer(grace)
	defer stopTimer(grace)

	for {
		select {
		case <-ctx.Done():
			c.transition(func(s *gaze.ScrollProgress) {
				s.Mode = gaze.ScrollStopped
				s.PauseReason = gaze.PauseNone
			})
			return

		case cmd := <-c.commands:
			switch cmd {
			case cmdStart:
				if c.mode() == gaze.ScrollStopped {
					ticker.Reset(cadence)
					c.transition(func(s *gaze.ScrollProgress) {
						s.Mode = gaze.ScrollAdvancing
						s.PauseReason = gaze.PauseNone
					})
				}
			case cmdManualPause:
				if m := c.mode(); m == gaze.ScrollAdvancing || m == gaze.ScrollPaused {
					ticker.Stop()
					stopTimer(grace)
					c.transition(func(s *gaze.ScrollProgress) {
						s.Mode = gaze.ScrollPaused
						s.PauseReason = gaze.PauseManual
					})
				}
			case cmdManualResume:
				if c.mode() == gaze.ScrollPaused && c.pauseReason() == gaze.PauseManual {
					ticker.Reset(cadence)
					c.transition(func(s *gaze.ScrollProgress) {
						s.Mode = gaze.ScrollAdvancing
						s.PauseReason = gaze.PauseNone
					})
				}
			case cmdManualStop:
				ticker.Stop()
				stopTimer(grace)
				c.transition(func(s *gaze.ScrollProgress) {
					s.Mode = gaze.ScrollStopped
					s.PauseReason = gaze.PauseNone
				})
			}

		case ev := <-c.fixations:
			switch ev.Kind {
			case gaze.FixationBegin:
				stopTimer(grace)
				switch {
				case c.mode() == gaze.ScrollAdvancing:
					ticker.Stop()
					c.transition(func(s *gaze.ScrollProgress) {
						s.Mode = gaze.ScrollPaused
						s.PauseReason = gaze.PauseFixation
					})
				case c.mode() == gaze.ScrollPaused && c.pauseReason() == gaze.PauseNone:
					// New fixation landed during the grace window.
					c.transition(func(s *gaze.ScrollProgress) {
						s.PauseReason = gaze.PauseFixation
					})
				}
			case gaze.FixationEnd:
				if c.mode() == gaze.ScrollPaused && c.pauseReason() == gaze.PauseFixation {
					// Resume only after the grace delay passes with no
					// new fixation landing.
					stopTimer(grace)
					grace.Reset(graceDelay)
					c.transition(func(s *gaze.ScrollProgress) {
						s.PauseReason = gaze.PauseNone
					})
				}
			}

		case <-grace.C:
			if c.mode() == gaze.ScrollPaused && c.pauseReason() == gaze.PauseNone {
				ticker.Reset(cadence)
				c.transition(func(s *gaze.ScrollProgress) {
					s.Mode = gaze.ScrollAdvancing
				})
			}

		case <-ticker.C:
			if c.mode() != gaze.ScrollAdvancing {
				continue
			}
			if c.advance() {
				ticker.Stop()
			}
		}
	}
}

// advance requests one window step; returns true on completion.
func (c *Controller) advance() bool {
	step := c.windowDuration * (1 - c.cfg.OverlapFraction)

	var newStart float64
	completed := false
	c.transition(func(s *gaze.ScrollProgress) {
		s.TimeOffset += step
		s.ElapsedWindows++
		if s.TimeOffset >= c.totalDuration {
			s.TimeOffset = c.totalDuration
			s.Mode = gaze.ScrollCompleted
			completed = true
		}
		if c.totalDuration > 0 {
			s.Percent = 100 * s.TimeOffset / c.totalDuration
		}
		newStart = s.TimeOffset
	})

	if c.driver != nil && !completed {
		c.driver.AdvanceWindow(newStart)
	}
	if completed {
		log.Info().Msg("Auto-scroll completed review")
	}
	return completed
}

func (c *Controller) transition(apply func(*gaze.ScrollProgress)) {
	c.mu.Lock()
	apply(&c.state)
	snap := c.state
	c.mu.Unlock()

	select {
	case c.progress <- snap:
	default:
	}
}

func (c *Controller) mode() gaze.ScrollMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Mode
}

func (c *Controller) pauseReason() gaze.PauseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.PauseReason
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
