package source

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Mock generates a deterministic synthetic gaze path: slow horizontal
// drift interleaved with stable holds, plus small jitter. Used for demos
// and for exercising the full pipeline without hardware.
type Mock struct {
	cfg config.MockSourceConfig
}

func NewMock(cfg config.MockSourceConfig) *Mock {
	return &Mock{cfg: cfg}
}

func (m *Mock) Run(ctx context.Context, emit func(gaze.RawSample)) error {
	interval := time.Second / time.Duration(m.cfg.RateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	start := time.Now()

	var deadline time.Time
	if m.cfg.DurationMs > 0 {
		deadline = start.Add(time.Duration(m.cfg.DurationMs) * time.Millisecond)
	}

	log.Info().Int("rate_hz", m.cfg.RateHz).Msg("Mock sample source started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if !deadline.IsZero() && now.After(deadline) {
				log.Info().Msg("Mock sample source finished")
				return nil
			}

			elapsed := now.Sub(start).Seconds()
			x, y := m.position(elapsed)

			emit(gaze.RawSample{
				X:          x + rng.NormFloat64()*0.002,
				Y:          y + rng.NormFloat64()*0.002,
				Confidence: 0.85 + 0.15*rng.Float64(),
				Timestamp:  now.Sub(start).Microseconds(),
			})
		}
	}
}

// position alternates 2 s drift sweeps with 2 s holds across the display.
func (m *Mock) position(elapsed float64) (float64, float64) {
	const phase = 4.0
	cycle := math.Mod(elapsed, phase)
	sweep := math.Floor(elapsed / phase)

	// Holds sit at a different vertical band each cycle.
	y := 0.2 + 0.15*math.Mod(sweep, 4)

	if cycle < 2 {
		return 0.1 + 0.4*cycle, y // drifting
	}
	return 0.9, y // holding
}
