package timing

import "time"

// History accumulates one window of (hash count, seconds) observations for
// the least-squares fit. A zero History has no observations.
type History struct {
	SumXiTi float64
	SumXi   float64
	SumTi   float64
	SumXi2  float64
	Values  uint32

	HashCountMin uint64
	HashCountMax uint64

	// Finish is when the window may close.
	Finish time.Time
}

func (h *History) Add(hashCount uint64, ti float64) {
	xi := float64(hashCount)
	h.SumXiTi += xi * ti
	h.SumXi += xi
	h.SumTi += ti
	h.SumXi2 += xi * xi
	h.Values++

	if h.HashCountMax < hashCount {
		h.HashCountMax = hashCount
	}
	if h.HashCountMin > hashCount || h.HashCountMin == 0 {
		h.HashCountMin = hashCount
	}
}

// Merge pools the sums of o into h.
func (h *History) Merge(o *History) {
	h.SumXiTi += o.SumXiTi
	h.SumXi += o.SumXi
	h.SumTi += o.SumTi
	h.SumXi2 += o.SumXi2
	h.Values += o.Values

	if h.HashCountMax < o.HashCountMax {
		h.HashCountMax = o.HashCountMax
	}
	if h.HashCountMin > o.HashCountMin || h.HashCountMin == 0 {
		h.HashCountMin = o.HashCountMin
	}
}

// Fit returns the ordinary least-squares line Ti = W + Hs*Xi. ok is false
// when the observations cannot determine a slope.
func (h *History) Fit() (hs, w float64, ok bool) {
	if h.Values == 0 {
		return 0, 0, false
	}
	n := float64(h.Values)
	den := n*h.SumXi2 - h.SumXi*h.SumXi
	if den == 0 {
		return 0, 0, false
	}
	hs = (n*h.SumXiTi - h.SumXi*h.SumTi) / den
	w = h.SumTi/n - hs*h.SumXi/n
	return hs, w, true
}

func (h *History) Range() uint64 {
	return h.HashCountMax - h.HashCountMin
}
