package filter

import "math"

// outlierGate tracks an exponentially weighted running mean and variance
// of the filtered positions. A point deviating more than sigma standard
// deviations from the mean is treated as blink or track loss, not motion.
type outlierGate struct {
	sigma      float64
	halfLifeUS float64

	meanX    float64
	meanY    float64
	variance float64 // EW variance of the distance from the running mean
	lastUS   int64
	seen     int
}

// Rejection needs a settled estimate first.
const outlierWarmup = 10

// The variance estimate converges over roughly the half-life, so early on
// sigma scales a near-zero deviation. The floor keeps ordinary tracker
// jitter admitted while the estimate settles.
const outlierFloorPx = 15.0

func newOutlierGate(sigma float64, halfLifeMs int64) *outlierGate {
	return &outlierGate{sigma: sigma, halfLifeUS: float64(halfLifeMs) * 1000}
}

// admit reports whether the point passes the gate, updating the running
// statistics with every admitted point.
func (g *outlierGate) admit(x, y float64, tUS int64) bool {
	if g.seen == 0 {
		g.meanX, g.meanY = x, y
		g.lastUS = tUS
		g.seen = 1
		return true
	}

	dx := x - g.meanX
	dy := y - g.meanY
	dist2 := dx*dx + dy*dy

	if g.seen >= outlierWarmup {
		limit := g.sigma * math.Sqrt(g.variance)
		if limit < outlierFloorPx {
			limit = outlierFloorPx
		}
		if math.Sqrt(dist2) > limit {
			return false
		}
	}

	// Exponential decay toward the new point, weighted by elapsed time.
	dt := float64(tUS - g.lastUS)
	if dt < 0 {
		dt = 0
	}
	g.lastUS = tUS
	decay := math.Exp2(-dt / g.halfLifeUS)
	w := 1 - decay

	g.meanX += w * dx
	g.meanY += w * dy
	g.variance = decay*g.variance + w*dist2
	g.seen++
	return true
}

func (g *outlierGate) reset() {
	g.meanX, g.meanY, g.variance = 0, 0, 0
	g.lastUS = 0
	g.seen = 0
}
