package job

import (
	"sync"
	"time"
)

type DataPoint struct {
	Timestamp time.Time
	Value     uint64
}

// MovingWindow sums the values added within the last WindowSize.
type MovingWindow struct {
	WindowSize time.Duration
	Values     []DataPoint
	Sum        uint64
}

func NewMovingWindow(windowSize time.Duration) *MovingWindow {
	return &MovingWindow{
		WindowSize: windowSize,
		Values:     make([]DataPoint, 0),
	}
}

func (w *MovingWindow) expire(now time.Time) {
	drop := 0
	for drop < len(w.Values) && now.Sub(w.Values[drop].Timestamp) > w.WindowSize {
		w.Sum -= w.Values[drop].Value
		drop++
	}
	if drop > 0 {
		w.Values = append(w.Values[:0], w.Values[drop:]...)
	}
}

func (w *MovingWindow) Update(point DataPoint) {
	w.expire(point.Timestamp)
	w.Values = append(w.Values, point)
	w.Sum += point.Value
}

// Rate is the average per second over the window as of now.
func (w *MovingWindow) Rate(now time.Time) float64 {
	w.expire(now)
	return float64(w.Sum) / w.WindowSize.Seconds()
}

// HashStats tracks a device's hash output for reporting.
type HashStats struct {
	mx sync.Mutex

	Started     time.Time
	TotalHashes uint64
	Nonces      uint64
	Estimates   uint64
	LastUpdate  time.Time

	Rate1m  *MovingWindow
	Rate5m  *MovingWindow
	Rate15m *MovingWindow
}

func NewHashStats(now time.Time) *HashStats {
	return &HashStats{
		Started: now,
		Rate1m:  NewMovingWindow(time.Minute),
		Rate5m:  NewMovingWindow(5 * time.Minute),
		Rate15m: NewMovingWindow(15 * time.Minute),
	}
}

func (h *HashStats) Update(hashes uint64, estimate bool, ts time.Time) {
	h.mx.Lock()
	defer h.mx.Unlock()

	h.TotalHashes += hashes
	if estimate {
		h.Estimates++
	} else {
		h.Nonces++
	}
	h.LastUpdate = ts
	dp := DataPoint{Timestamp: ts, Value: hashes}
	h.Rate1m.Update(dp)
	h.Rate5m.Update(dp)
	h.Rate15m.Update(dp)
}

type HashRates struct {
	Total   uint64
	Avg     float64
	Rate1m  float64
	Rate5m  float64
	Rate15m float64
}

func (h *HashStats) Rates(now time.Time) HashRates {
	h.mx.Lock()
	defer h.mx.Unlock()

	r := HashRates{
		Total:   h.TotalHashes,
		Rate1m:  h.Rate1m.Rate(now),
		Rate5m:  h.Rate5m.Rate(now),
		Rate15m: h.Rate15m.Rate(now),
	}
	if up := now.Sub(h.Started).Seconds(); up > 0 {
		r.Avg = float64(h.TotalHashes) / up
	}
	return r
}
