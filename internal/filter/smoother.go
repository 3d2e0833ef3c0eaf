package filter

// axisSmoother is a constant-velocity (alpha-beta) estimator for one
// screen axis. The correction gain scales with per-sample confidence, so
// low-confidence measurements lean on the prediction.
type axisSmoother struct {
	alpha float64
	beta  float64

	pos    float64
	vel    float64
	lastUS int64
	primed bool
}

func newAxisSmoother(alpha, beta float64) *axisSmoother {
	return &axisSmoother{alpha: alpha, beta: beta}
}

// update folds one measurement into the estimate and returns the smoothed
// position. confidence must be in [0,1].
func (s *axisSmoother) update(z, confidence float64, tUS int64) float64 {
	if !s.primed {
		s.pos = z
		s.vel = 0
		s.lastUS = tUS
		s.primed = true
		return z
	}

	dt := float64(tUS-s.lastUS) / 1e6
	s.lastUS = tUS
	if dt <= 0 {
		// Out-of-order or duplicate timestamp: correct without predicting.
		s.pos += s.alpha * confidence * (z - s.pos)
		return s.pos
	}

	predicted := s.pos + s.vel*dt
	residual := z - predicted

	gainP := s.alpha * confidence
	gainV := s.beta * confidence

	s.pos = predicted + gainP*residual
	s.vel += gainV * residual / dt
	return s.pos
}

func (s *axisSmoother) reset() {
	s.pos, s.vel, s.lastUS = 0, 0, 0
	s.primed = false
}
