package filter

import "github.com/eyereview/gazepipe/internal/gaze"

// lossWindow tracks per-sample pass/drop outcomes over a rolling time
// window to derive the signal-quality condition.
type lossWindow struct {
	windowUS  int64
	threshold float64

	samples []lossSample
}

type lossSample struct {
	tUS     int64
	dropped bool
}

func newLossWindow(windowMs int64, threshold float64) *lossWindow {
	return &lossWindow{windowUS: windowMs * 1000, threshold: threshold}
}

func (w *lossWindow) record(tUS int64, dropped bool) {
	w.samples = append(w.samples, lossSample{tUS: tUS, dropped: dropped})
	w.prune(tUS)
}

func (w *lossWindow) prune(nowUS int64) {
	cutoff := nowUS - w.windowUS
	i := 0
	for i < len(w.samples) && w.samples[i].tUS < cutoff {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// quality reports Degraded once a sustained fraction of the rolling
// window has been dropped. A handful of samples is not enough evidence.
func (w *lossWindow) quality() gaze.SignalQuality {
	if len(w.samples) < 10 {
		return gaze.SignalOK
	}
	dropped := 0
	for _, s := range w.samples {
		if s.dropped {
			dropped++
		}
	}
	if float64(dropped)/float64(len(w.samples)) > w.threshold {
		return gaze.SignalDegraded
	}
	return gaze.SignalOK
}

func (w *lossWindow) reset() {
	w.samples = w.samples[:0]
}
