package core

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func TestCoreSet(t *testing.T) {
	var s CoreSet
	s.Set(0)
	s.Set(63)
	s.Set(64)
	s.Set(255)
	s.Set(256)
	s.Set(-1)

	assert.Equal(t, 4, s.Count())
	assert.True(t, s.Has(255))
	assert.False(t, s.Has(256))
	assert.Equal(t, "1000", s.Bitmap(4))

	s.Clear(63)
	s.Clear(1000)
	assert.Equal(t, 3, s.Count())
}

func TestAverageEmpty(t *testing.T) {
	tr := NewTracker(4, nil)
	assert.Equal(t, uint32(0), tr.Average(2, time.Hour, at(10)))
}

func TestAverageSingleSample(t *testing.T) {
	tr := NewTracker(4, nil)
	tr.Record(1, at(5), 1234, false)

	for _, w := range []time.Duration{time.Nanosecond, time.Second, time.Hour} {
		assert.Equal(t, uint32(1234), tr.Average(1, w, at(5)))
	}
}

func TestAverageWindow(t *testing.T) {
	tr := NewTracker(4, nil)
	tr.Record(0, at(1), 100, true)
	tr.Record(0, at(3), 200, true)
	tr.Record(0, at(9), 600, true)

	assert.Equal(t, uint32(600), tr.Average(0, 2*time.Second, at(10)))
	assert.Equal(t, uint32(400), tr.Average(0, 7*time.Second, at(10)))
	assert.Equal(t, uint32(300), tr.Average(0, 9*time.Second, at(10)))
}

func TestRecordOverwriteVersusShift(t *testing.T) {
	tr := NewTracker(2, nil)
	tr.WorkStart = at(0)
	tr.Record(0, at(1), 10, false)
	tr.Record(0, at(2), 20, false)

	h := tr.History(0)
	assert.Equal(t, Sample{at(2), 20}, h[0])
	assert.True(t, h[1].Time.IsZero())

	// new work after the newest sample starts a new slot
	tr.WorkStart = at(3)
	tr.Record(0, at(4), 40, false)
	h = tr.History(0)
	assert.Equal(t, Sample{at(4), 40}, h[0])
	assert.Equal(t, Sample{at(2), 20}, h[1])

	tr.Record(0, at(5), 50, true)
	h = tr.History(0)
	assert.Equal(t, Sample{at(5), 50}, h[0])
	assert.Equal(t, Sample{at(4), 40}, h[1])
	assert.Equal(t, Sample{at(2), 20}, h[2])
}

func TestRecordDropsOldest(t *testing.T) {
	tr := NewTracker(1, nil)
	for i := 0; i < MaxSamples+3; i++ {
		tr.Record(0, at(float64(i)), uint32(i), true)
	}
	h := tr.History(0)
	assert.Equal(t, uint32(MaxSamples+2), h[0].Hashrate)
	assert.Equal(t, uint32(3), h[MaxSamples-1].Hashrate)
}

func TestEnableDisablePopcount(t *testing.T) {
	tr := NewTracker(8, nil)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		core := rng.Intn(MaxCores + 4)
		if rng.Intn(2) == 0 {
			tr.Enable(core)
		} else {
			tr.Disable(core)
		}
		set := tr.EnabledSet()
		require.Equal(t, set.Count(), tr.ActiveCount())
	}
}

func TestEnableExtendsExpected(t *testing.T) {
	tr := NewTracker(4, nil)
	tr.Enable(2)
	assert.Equal(t, 4, tr.Expected())
	tr.Enable(9)
	assert.Equal(t, 10, tr.Expected())
	assert.Equal(t, 2, tr.ActiveCount())
	assert.Equal(t, "0010000001", tr.Bitmap())

	tr.Disable(2)
	tr.Disable(2)
	assert.Equal(t, 1, tr.ActiveCount())
}

func TestDisableInactiveSinceWorkStart(t *testing.T) {
	tr := NewTracker(3, nil)
	tr.Seed(at(0), 1000)
	for i := 0; i < 3; i++ {
		tr.Enable(i)
	}
	tr.WorkStart = at(5)
	tr.Record(1, at(6), 500, false)

	tr.DisableInactiveSinceWorkStart()
	assert.False(t, tr.Enabled(0))
	assert.True(t, tr.Enabled(1))
	assert.False(t, tr.Enabled(2))
	assert.Equal(t, 1, tr.ActiveCount())
}

func TestFastestHashrate(t *testing.T) {
	tr := NewTracker(3, nil)
	tr.WorkStart = at(0)
	tr.Record(0, at(1), 300, true)
	tr.Record(1, at(2), 900, true)
	assert.Equal(t, uint64(900), tr.FastestHashrate(at(3)))

	// a zero newest sample falls back to the average since work start
	tr.Record(2, at(1), 2000, true)
	tr.Record(2, at(2), 0, true)
	assert.Equal(t, uint64(1000), tr.FastestHashrate(at(3)))
}

func TestDeviceHashrate(t *testing.T) {
	tr := NewTracker(3, nil)
	tr.Record(0, at(9), 100, true)
	tr.Record(2, at(9), 300, true)
	tr.Enable(1)

	assert.Equal(t, uint64(400), tr.DeviceHashrate(5*time.Second, at(10), false))
	assert.True(t, tr.Enabled(0))
	assert.True(t, tr.Enabled(1))
	assert.True(t, tr.Enabled(2))

	assert.Equal(t, uint64(400), tr.DeviceHashrate(5*time.Second, at(10), true))
	assert.False(t, tr.Enabled(1))
	assert.Equal(t, 2, tr.ActiveCount())
}

func TestUpdateActive(t *testing.T) {
	tr := NewTracker(2, nil)
	tr.Seed(at(0), 5000)
	tr.Enable(0)
	tr.Enable(1)
	tr.Record(1, at(4), 700, true)

	assert.True(t, tr.UpdateActive(at(2), at(12)))
	assert.False(t, tr.Enabled(0))
	assert.True(t, tr.Enabled(1))

	h := tr.History(0)
	assert.Equal(t, Sample{at(12), 0}, h[0])
	assert.Equal(t, Sample{at(0), 5000}, h[1])

	// the zero sample counts as a report, so nothing is left to update
	assert.False(t, tr.UpdateActive(at(3), at(13)))
}
