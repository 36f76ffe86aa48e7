package timing

import (
	"time"

	"vcu_miner/device/fpgaio"
	"vcu_miner/log"
)

const (
	// HistorySec is the minimum wall-clock age of a window before it may close.
	HistorySec = 60 * time.Second

	MinDataCount    = 5
	MaxMinDataCount = 100

	// InfoHistory is how many completed windows are kept.
	InfoHistory = 10

	// EndCondition excludes nonces near either end of the range.
	EndCondition = 0x0000ffff
)

// ReadTime is the seconds the transport needs to deliver one response.
func ReadTime(baud int) float64 {
	return float64(fpgaio.ReadSize) * 8.0 / float64(baud)
}

type Snapshot struct {
	Mode           Mode
	DoTiming       bool
	Hs             float64
	W              float64
	ReadCount      int
	FullNonce      float64
	Count          int
	Values         uint32
	HashCountRange uint64
	HistoryCount   uint64
	HistoryTime    time.Duration
	MinDataCount   uint32
	TimingValues   uint32
}

// Estimator keeps the seconds-per-hash model for one device and the read
// budget derived from it.
type Estimator struct {
	Name      string
	NonceMask uint32
	Baud      int

	mode         Mode
	doTiming     bool
	hs           float64
	w            float64
	readCount    int
	fullnonce    float64
	count        int
	values       uint32
	hashRange    uint64
	minDataCount uint32
	historyCount uint64
	historyTime  time.Duration

	history [InfoHistory + 1]History
}

func NewEstimator(name string, s Settings, nonceMask uint32, baud int) *Estimator {
	return &Estimator{
		Name:         name,
		NonceMask:    nonceMask,
		Baud:         baud,
		mode:         s.Mode,
		doTiming:     s.DoTiming,
		hs:           s.Hs,
		readCount:    s.ReadCount,
		fullnonce:    s.FullNonce,
		minDataCount: MinDataCount,
	}
}

func (e *Estimator) ReadCount() int {
	return e.readCount
}

func (e *Estimator) Hs() float64 {
	return e.hs
}

func (e *Estimator) DoTiming() bool {
	return e.doTiming
}

// Qualifies reports whether a returned nonce is far enough from both ends of
// the masked range to time the device.
func (e *Estimator) Qualifies(nonce uint32) bool {
	n := nonce & e.NonceMask
	return n > EndCondition && n < e.NonceMask&^EndCondition
}

// Observe folds one timed result into the open window. sinceWork is the time
// from work dispatch to the response, scanStart when the current scan began.
// It returns true when the window closed and the model was refit.
func (e *Estimator) Observe(nonce uint32, hashCount uint64, sinceWork time.Duration, scanStart time.Time) bool {
	if !e.doTiming || !e.Qualifies(nonce) {
		return false
	}

	t0 := time.Now()
	defer func() {
		e.historyCount++
		e.historyTime += time.Since(t0)
	}()

	h0 := &e.history[0]
	if h0.Values == 0 {
		h0.Finish = scanStart.Add(HistorySec)
	}
	h0.Add(hashCount, sinceWork.Seconds()-ReadTime(e.Baud))

	if h0.Values < e.minDataCount || !scanStart.After(h0.Finish) {
		return false
	}
	return e.refit()
}

func (e *Estimator) refit() bool {
	copy(e.history[1:], e.history[:InfoHistory])
	e.history[0] = History{}

	var all History
	count := 0
	for i := 1; i <= InfoHistory; i++ {
		if e.history[i].Values >= MinDataCount {
			count++
			all.Merge(&e.history[i])
		}
	}

	hs, w, ok := all.Fit()
	if !ok {
		log.Errorf("%s: timing fit over %d values is degenerate, keeping Hs=%e", e.Name, all.Values, e.hs)
		return false
	}

	e.hs = hs
	e.w = w
	e.fullnonce = w + hs*NonceRange
	e.readCount = ReadCountFor(e.fullnonce)
	e.count = count
	e.values = all.Values
	e.hashRange = all.Range()

	if e.minDataCount < MaxMinDataCount {
		e.minDataCount *= 2
		if e.minDataCount > MaxMinDataCount {
			e.minDataCount = MaxMinDataCount
		}
	} else if e.mode == MODE_SHORT {
		e.doTiming = false
	}

	log.Infof("%s: re-estimate Hs=%e W=%e read_count=%d fullnonce=%.3fs", e.Name, e.hs, e.w, e.readCount, e.fullnonce)
	return true
}

func (e *Estimator) Snapshot() Snapshot {
	return Snapshot{
		Mode:           e.mode,
		DoTiming:       e.doTiming,
		Hs:             e.hs,
		W:              e.w,
		ReadCount:      e.readCount,
		FullNonce:      e.fullnonce,
		Count:          e.count,
		Values:         e.values,
		HashCountRange: e.hashRange,
		HistoryCount:   e.historyCount,
		HistoryTime:    e.historyTime,
		MinDataCount:   e.minDataCount,
		TimingValues:   e.history[0].Values,
	}
}
