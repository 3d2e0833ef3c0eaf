package annotate

import (
	"context"

	"github.com/eyereview/gazepipe/internal/gaze"
)

// BaselineAnalyzer is the stand-in context analyzer used when no real
// waveform analyzer is attached: every excerpt gets a neutral baseline
// significance and no pattern signals, so decisions ride on fixation
// stability and confidence alone.
type BaselineAnalyzer struct {
	Significance float64
}

func NewBaselineAnalyzer() *BaselineAnalyzer {
	return &BaselineAnalyzer{Significance: 0.5}
}

func (a *BaselineAnalyzer) Analyze(_ context.Context, _ string, _, _ float64) (gaze.ContextSummary, error) {
	return gaze.ContextSummary{Significance: a.Significance}, nil
}
