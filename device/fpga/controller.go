package fpga

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"vcu_miner/device/core"
	"vcu_miner/device/fpgaio"
	"vcu_miner/device/timing"
	"vcu_miner/job"
	"vcu_miner/log"
)

// Controller drives one FPGA card. Every method except Stats and Statline
// must be called from the device's own goroutine.
type Controller struct {
	cfg    Config
	io     *fpgaio.FPGAIO
	est    *timing.Estimator
	cores  *core.Tracker
	submit Submitter
	faults FaultReporter
	log    *zap.SugaredLogger

	workChanged         bool
	firstTimeout        bool
	prevHashcountReturn time.Time
	prevHashcount       uint64
	prevHashrate        uint64
	lastIntervalTimeout time.Time

	telemetry   fpgaio.Telemetry
	telemetryAt time.Time

	noncesFound   uint64
	counters      uint64
	hwErrors      uint64
	stale         uint64
	unknown       uint64
	abandoned     uint64
	refreshes     uint64
	commsFailures uint64

	stats    atomic.Pointer[Stats]
	statline atomic.Pointer[string]
}

func New(cfg Config, fio *fpgaio.FPGAIO, submit Submitter, faults FaultReporter) *Controller {
	lg := log.Named("fpga", "dev", cfg.ID, "path", cfg.Path)
	expected := cfg.ExpectedCores
	if expected <= 0 {
		expected = fpgaio.DefaultCores
	}
	my := &Controller{
		cfg:    cfg,
		io:     fio,
		est:    timing.NewEstimator(cfg.Path, cfg.Timing, cfg.NonceMask, cfg.Baud),
		cores:  core.NewTracker(expected, lg),
		submit: submit,
		faults: faults,
		log:    lg,
	}
	my.publish()
	return my
}

func (my *Controller) ID() int {
	return my.cfg.ID
}

func (my *Controller) Path() string {
	return my.cfg.Path
}

// Now reads the clock the transport stamps frames with.
func (my *Controller) Now() time.Time {
	return my.io.Now()
}

// Detect probes the card, learns its core count, programs the clock and
// seeds every core with the nominal clock rate.
func (my *Controller) Detect(ctx context.Context) error {
	res, err := fpgaio.Probe(ctx, my.io, my.cfg.ClockUnits)
	if err != nil {
		return err
	}
	if my.cfg.ExpectedCores <= 0 {
		my.cores.SetExpected(res.ExpectedCores)
	}
	mhz := fpgaio.UnitsToMHz(my.cfg.ClockUnits)
	my.cores.Seed(my.io.Now(), uint32(mhz)*1000000)
	my.log.Infof("detected: clock=%dMHz baud=%d cores=%d", mhz, my.cfg.Baud, my.cores.Expected())
	my.publish()
	return nil
}

// PrepareWork marks w as new so the next Scan dispatches it.
func (my *Controller) PrepareWork(w *job.Work) {
	my.workChanged = true
	my.firstTimeout = true
}

func (my *Controller) Close() {
	my.closeDevice()
	my.publish()
}

func (my *Controller) closeDevice() {
	if err := my.io.Close(); err != nil {
		my.log.Debugf("close: %v", err)
	}
}

func (my *Controller) commsFault(err error) {
	my.commsFailures++
	my.closeDevice()
	my.log.Errorf("comms error: %v", err)
	if my.faults != nil {
		my.faults.CommsFault(my.cfg.ID)
	}
}

// Scan dispatches w if it changed, waits for one response and returns the
// hashes done since the previous scan. Only comms failures are returned as
// errors; the port is then closed and reopened by the next Scan.
func (my *Controller) Scan(ctx context.Context, w *job.Work) (Result, error) {
	defer my.publish()

	if !my.io.IsOpen() {
		if err := my.io.Open(false); err != nil {
			my.commsFault(err)
			return Result{}, err
		}
	}

	var start time.Time
	if my.workChanged {
		my.workChanged = false
		frame := fpgaio.BuildWorkFrame(w)
		if err := my.io.Write(&frame); err != nil {
			my.commsFault(err)
			return Result{}, err
		}
		start = my.io.Now()
		my.cores.WorkStart = start
		my.prevHashcountReturn = start
		my.prevHashcount = 0
		w.ScanJobTS = float64(start.UnixMicro()) / 1e6
	} else {
		start = my.io.Now()
	}

	rsp, err := my.io.Read(ctx, my.est.ReadCount())
	switch {
	case errors.Is(err, fpgaio.ErrTimeout), errors.Is(err, fpgaio.ErrRestarted):
		return my.onTimeout(w, rsp.Finish), nil
	case err != nil:
		my.commsFault(err)
		return Result{}, err
	}

	switch f := fpgaio.Classify(&rsp.Frame).(type) {
	case fpgaio.NonceResult:
		return my.onNonce(w, f, start, rsp.Finish), nil
	case fpgaio.Telemetry:
		my.telemetry = f
		my.telemetryAt = rsp.Finish
		my.log.Debugf("telemetry mV=%v C=%.1f", f.MilliVolts, f.Celsius)
		return Result{Hashes: my.estimate(w, rsp.Finish), Kind: RESULT_ESTIMATE}, nil
	case fpgaio.Unknown:
		my.unknown++
		my.log.Errorf("unknown message from FPGA, byte 0x%02x", f.Tag)
	}
	return Result{}, nil
}

func (my *Controller) onTimeout(w *job.Work, finish time.Time) Result {
	if my.firstTimeout {
		my.firstTimeout = false
		my.cores.DisableInactiveSinceWorkStart()
		my.refreshHashrate(my.cores.WorkStart, finish)
		my.lastIntervalTimeout = finish
	} else if finish.Sub(my.lastIntervalTimeout) > SecondsPerNonceRange {
		my.refreshHashrate(my.lastIntervalTimeout, finish)
		my.lastIntervalTimeout = finish
	}
	return Result{Hashes: my.estimate(w, finish), Kind: RESULT_ESTIMATE}
}

// refreshHashrate retires cores silent since the reference time and
// recomputes the device rate used for estimates.
func (my *Controller) refreshHashrate(since, sampleTime time.Time) {
	my.cores.UpdateActive(since, sampleTime)
	my.prevHashrate = my.cores.DeviceHashrate(HashrateAvgOver, sampleTime, false)
	my.refreshes++
}

func (my *Controller) onNonce(w *job.Work, r fpgaio.NonceResult, start, finish time.Time) Result {
	coreID := int(r.Core)
	my.cores.Enable(coreID)

	if r.Submittable() {
		my.noncesFound++
	} else {
		my.counters++
	}

	if !fpgaio.IsCurrentWork(r, w) {
		my.stale++
		my.log.Debugf("old work response core %d nonce %08x", r.Core, r.Nonce)
		return Result{Hashes: my.estimate(w, finish), Kind: RESULT_ESTIMATE, Stale: true, Core: r.Core}
	}

	wasHWError := false
	if r.Submittable() {
		n := fpgaio.AssembleNonce(r.Core, r.Nonce, w, my.cores.Expected())
		my.log.Infof("nonce %016x core %d", n, r.Core)
		if err := my.submit.SubmitNonce(w, fpgaio.SubmitNonce(n)); err != nil {
			if errors.Is(err, job.ErrHWError) {
				wasHWError = true
				my.hwErrors++
				my.closeDevice()
				if my.faults != nil {
					my.faults.Fault(my.cfg.ID, "hardware error")
				}
			} else {
				my.log.Errorf("submit nonce %016x: %v", n, err)
			}
		}
	}

	hashCount := uint64(r.Nonce) + 1
	elapsed := finish.Sub(my.cores.WorkStart)
	rate := coreRate(hashCount, elapsed)
	my.cores.Record(coreID, finish, rate, false)
	my.prevHashrate = my.cores.DeviceHashrate(HashrateAvgOver, finish, false)

	res := Result{
		Hashes:       my.sinceLastReturn(finish),
		Kind:         RESULT_NONCE,
		HWError:      wasHWError,
		Core:         r.Core,
		HashCount:    hashCount,
		CoreHashrate: rate,
	}
	if !r.Submittable() {
		res.Kind = RESULT_COUNTER
	}
	my.checkAbandon(w, finish)

	if log.DebugEnabled() {
		my.log.Debugf("core %d nonce 0x%08x = %d hashes in %v, core %s, device %s",
			r.Core, r.Nonce, hashCount, elapsed,
			humanize.SIWithDigits(float64(rate), 2, "H/s"),
			humanize.SIWithDigits(float64(my.prevHashrate), 2, "H/s"))
	}

	if !wasHWError {
		my.est.Observe(r.Nonce, hashCount, elapsed, start)
	}
	return res
}

func coreRate(hashCount uint64, elapsed time.Duration) uint32 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	r := float64(hashCount) / secs
	if r >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(r)
}

// sinceLastReturn extrapolates the device rate over the time since the
// previous return.
func (my *Controller) sinceLastReturn(until time.Time) uint64 {
	secs := until.Sub(my.prevHashcountReturn).Seconds()
	my.prevHashcountReturn = until
	if secs <= 0 {
		return 0
	}
	hc := uint64(float64(my.prevHashrate) * secs)
	my.prevHashcount += hc
	return hc
}

func (my *Controller) estimate(w *job.Work, until time.Time) uint64 {
	hc := my.sinceLastReturn(until)
	my.checkAbandon(w, until)
	return hc
}

func (my *Controller) checkAbandon(w *job.Work, until time.Time) {
	if w.Abandoned() {
		return
	}
	secs := until.Sub(my.cores.WorkStart).Seconds()
	fastest := my.cores.FastestHashrate(until)
	if AbandonDue(fastest, secs, my.cores.Expected()) {
		my.abandoned++
		my.log.Debugf("abandoning work %s after %.3fs, fastest core %s", w.JobID, secs,
			humanize.SIWithDigits(float64(fastest), 2, "H/s"))
		w.Abandon()
	}
}

func (my *Controller) publish() {
	tel := my.telemetry
	s := &Stats{
		ID:                my.cfg.ID,
		Path:              my.cfg.Path,
		Open:              my.io.IsOpen(),
		Timing:            my.est.Snapshot(),
		Baud:              my.cfg.Baud,
		WorkDivision:      my.cfg.WorkDivision,
		FPGACount:         my.cfg.FPGACount,
		NonceMask:         my.cfg.NonceMask,
		ClockMHz:          fpgaio.UnitsToMHz(my.cfg.ClockUnits),
		ExpectedCores:     my.cores.Expected(),
		ActiveCores:       my.cores.ActiveCount(),
		EnabledCores:      my.cores.Bitmap(),
		DeviceHashrate:    my.prevHashrate,
		PrevHashcount:     my.prevHashcount,
		WorkStart:         my.cores.WorkStart,
		MilliVolts:        tel.MilliVolts,
		Voltages:          tel.Voltages(),
		Celsius:           tel.Celsius,
		Temperatures:      tel.Temperatures(),
		TelemetryAt:       my.telemetryAt,
		NoncesFound:       my.noncesFound,
		Counters:          my.counters,
		HWErrors:          my.hwErrors,
		StaleResults:      my.stale,
		UnknownFrames:     my.unknown,
		Abandoned:         my.abandoned,
		HashrateRefreshes: my.refreshes,
		CommsErrors:       my.commsFailures,
		IO:                my.io.Stats(),
	}
	my.stats.Store(s)
	line := statline(s.ActiveCores, s.EnabledCores)
	my.statline.Store(&line)
}

// Stats returns the snapshot published by the last scan. Safe from any
// goroutine.
func (my *Controller) Stats() Stats {
	return *my.stats.Load()
}

func (my *Controller) Statline() string {
	return *my.statline.Load()
}
