package core

import (
	"time"

	"go.uber.org/zap"
)

const (
	// MaxSamples is the depth of each core's sample ring.
	MaxSamples = 10
)

type Sample struct {
	Time     time.Time
	Hashrate uint32
}

// History is one core's recent samples, newest first.
type History [MaxSamples]Sample

// Tracker follows which cores of a device are producing results and how
// fast. It is owned by the device's scan goroutine.
type Tracker struct {
	WorkStart time.Time

	expected int
	enabled  CoreSet
	active   int
	history  [MaxCores]History

	log *zap.SugaredLogger
}

func NewTracker(expected int, logger *zap.SugaredLogger) *Tracker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	t := &Tracker{log: logger}
	t.SetExpected(expected)
	return t
}

func (t *Tracker) SetExpected(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxCores {
		n = MaxCores
	}
	t.expected = n
}

func (t *Tracker) Expected() int {
	return t.expected
}

func (t *Tracker) ActiveCount() int {
	return t.active
}

func (t *Tracker) Enabled(core int) bool {
	return t.enabled.Has(core)
}

func (t *Tracker) EnabledSet() CoreSet {
	return t.enabled
}

func (t *Tracker) Bitmap() string {
	return t.enabled.Bitmap(t.expected)
}

// Latest is the newest sample of core.
func (t *Tracker) Latest(core int) Sample {
	if core < 0 || core >= MaxCores {
		return Sample{}
	}
	return t.history[core][0]
}

func (t *Tracker) History(core int) History {
	if core < 0 || core >= MaxCores {
		return History{}
	}
	return t.history[core]
}

// Seed gives every core the same starting sample so averages are defined
// before the first result arrives.
func (t *Tracker) Seed(ts time.Time, hashrate uint32) {
	for i := range t.history {
		t.history[i] = History{}
		t.history[i][0] = Sample{Time: ts, Hashrate: hashrate}
	}
}

func (t *Tracker) Enable(core int) {
	if core < 0 || core >= MaxCores || t.enabled.Has(core) {
		return
	}
	t.enabled.Set(core)
	t.active++
	if core+1 > t.expected {
		t.log.Infof("core %d reported, raising expected cores from %d", core, t.expected)
		t.expected = core + 1
	}
}

func (t *Tracker) Disable(core int) {
	if !t.enabled.Has(core) {
		return
	}
	if t.active == 0 {
		t.log.Errorf("active core count underrun disabling core %d", core)
	} else {
		t.active--
	}
	t.enabled.Clear(core)
}

// Record stores a sample for core. A sample from a new work epoch, or one
// forced with newEpoch, pushes the ring; otherwise it replaces the newest
// sample, since the latest figure for a work covers the longest run.
func (t *Tracker) Record(core int, ts time.Time, hashrate uint32, newEpoch bool) {
	if core < 0 || core >= MaxCores {
		return
	}
	h := &t.history[core]
	if newEpoch || t.WorkStart.After(h[0].Time) {
		copy(h[1:], h[:MaxSamples-1])
	}
	h[0] = Sample{Time: ts, Hashrate: hashrate}
}

// Average is the mean hashrate of the samples of core taken within window
// before ref, 0 when there are none.
func (t *Tracker) Average(core int, window time.Duration, ref time.Time) uint32 {
	if core < 0 || core >= MaxCores {
		return 0
	}
	var sum uint64
	n := 0
	for _, s := range t.history[core] {
		if s.Time.IsZero() {
			break
		}
		if ref.Sub(s.Time) > window {
			break
		}
		sum += uint64(s.Hashrate)
		n++
	}
	if n == 0 {
		return 0
	}
	return uint32(sum / uint64(n))
}

// DisableInactiveSinceWorkStart disables every core whose newest sample is
// older than the current work.
func (t *Tracker) DisableInactiveSinceWorkStart() {
	for i := 0; i < t.expected; i++ {
		if t.history[i][0].Time.Before(t.WorkStart) {
			t.Disable(i)
		}
	}
}

// FastestHashrate is the best per-core rate seen during the current work.
func (t *Tracker) FastestHashrate(ref time.Time) uint64 {
	window := ref.Sub(t.WorkStart)
	var fastest uint64
	for i := 0; i < t.expected; i++ {
		hr := uint64(t.history[i][0].Hashrate)
		if hr == 0 {
			hr = uint64(t.Average(i, window, ref))
		}
		if hr > fastest {
			fastest = hr
		}
	}
	return fastest
}

// DeviceHashrate sums the per-core averages. Cores with a nonzero average are
// enabled; with disableIdle, cores averaging zero are disabled.
func (t *Tracker) DeviceHashrate(window time.Duration, ref time.Time, disableIdle bool) uint64 {
	var sum uint64
	for i := 0; i < t.expected; i++ {
		hr := t.Average(i, window, ref)
		if hr != 0 {
			sum += uint64(hr)
			t.Enable(i)
		} else if disableIdle {
			t.Disable(i)
		}
	}
	return sum
}

// UpdateActiveCore marks core inactive when it has not reported since the
// reference time, recording a zero sample at sampleTime.
func (t *Tracker) UpdateActiveCore(core int, since, sampleTime time.Time) bool {
	if core < 0 || core >= MaxCores {
		return false
	}
	if t.history[core][0].Time.After(since) {
		return false
	}
	t.Disable(core)
	t.Record(core, sampleTime, 0, true)
	return true
}

// UpdateActive runs UpdateActiveCore over all expected cores.
func (t *Tracker) UpdateActive(since, sampleTime time.Time) bool {
	updated := false
	for i := 0; i < t.expected; i++ {
		if t.UpdateActiveCore(i, since, sampleTime) {
			updated = true
		}
	}
	return updated
}
