package filter

import "sort"

// medianWindow keeps the last N values of one axis and yields the window
// median, removing single-sample spikes without the lag of a wide average.
type medianWindow struct {
	size   int
	values []float64
	next   int
}

func newMedianWindow(size int) *medianWindow {
	return &medianWindow{size: size, values: make([]float64, 0, size)}
}

// push adds a value and returns the median of the current window.
func (m *medianWindow) push(v float64) float64 {
	if len(m.values) < m.size {
		m.values = append(m.values, v)
	} else {
		m.values[m.next] = v
		m.next = (m.next + 1) % m.size
	}

	scratch := make([]float64, len(m.values))
	copy(scratch, m.values)
	sort.Float64s(scratch)
	return scratch[len(scratch)/2]
}

func (m *medianWindow) reset() {
	m.values = m.values[:0]
	m.next = 0
}
