package device

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vcu_miner/device/fpga"
	"vcu_miner/device/reset"
	"vcu_miner/job"
	"vcu_miner/util"
)

const (
	STATUS_ALIVE = iota
	STATUS_SICK
	STATUS_DEAD
	STATUS_NOSTART
	STATUS_INIT
)

func StatusCode(s int) string {
	switch s {
	case STATUS_ALIVE:
		return "Alive"
	case STATUS_SICK:
		return "Sick"
	case STATUS_DEAD:
		return "Dead"
	case STATUS_NOSTART:
		return "NoStart"
	case STATUS_INIT:
		return "Initialising"
	default:
		return "Dead"
	}
}

// MaxCommsFaults in a row pulse the reset line, when one is configured.
const MaxCommsFaults = 3

var ErrNoWork = errors.New("ErrNoWork")

// Device is one registered FPGA card and the loop that keeps it busy.
type Device struct {
	ID      uint
	Name    string
	Driver  string
	Path    string
	UpSince float64

	Ctrl   *fpga.Controller
	HStats *job.HashStats
	Slot   WorkSlot

	status      atomic.Int32
	commsFaults atomic.Int32
	resets      atomic.Uint64
	hwFaults    atomic.Uint64

	resetLine reset.Line
	log       *zap.SugaredLogger
}

func (my *Device) Status() int {
	return int(my.status.Load())
}

func (my *Device) setStatus(s int) {
	my.status.Store(int32(s))
}

func (my *Device) Uptime() float64 {
	return util.UptimeInSec(util.NowInSec(), my.UpSince)
}

// Run scans until ctx ends. Comms failures never stop the loop; the port
// is reopened on the next scan after retry.
func (my *Device) Run(ctx context.Context, source WorkSource, retry time.Duration) error {
	defer my.Ctrl.Close()
	my.log.Infof("started")

	for ctx.Err() == nil {
		w, fresh := my.Slot.Work(source)
		if w == nil {
			my.log.Errorf("no work available")
			if !sleepCtx(ctx, retry) {
				break
			}
			continue
		}
		if fresh {
			w.DevID = my.ID
			my.Ctrl.PrepareWork(w)
		}

		scanCtx, done := my.Slot.ScanContext(ctx)
		res, err := my.Ctrl.Scan(scanCtx, w)
		done()

		if err != nil {
			my.onCommsError(ctx, retry)
			continue
		}
		my.scanned(res)
	}

	my.log.Infof("stopped")
	return nil
}

// scanned books a scan that reached the device. A scan that hit a hardware
// error keeps the SICK status its fault report set.
func (my *Device) scanned(res fpga.Result) {
	my.commsFaults.Store(0)
	if !res.HWError && my.Status() != STATUS_ALIVE {
		my.setStatus(STATUS_ALIVE)
	}
	if res.Kind != fpga.RESULT_NONE {
		my.HStats.Update(res.Hashes, res.Kind == fpga.RESULT_ESTIMATE, my.Ctrl.Now())
	}
}

func (my *Device) onCommsError(ctx context.Context, retry time.Duration) {
	my.Slot.Invalidate()
	if my.commsFaults.Load() >= MaxCommsFaults {
		my.commsFaults.Store(0)
		if my.resetLine != nil {
			my.setStatus(STATUS_INIT)
			if err := my.resetLine.Pulse(ctx, reset.PulseWidth); err != nil {
				my.log.Errorf("reset: %v", err)
			} else {
				my.resets.Add(1)
			}
		} else {
			my.setStatus(STATUS_DEAD)
		}
	}
	sleepCtx(ctx, retry)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// DeviceSnapshot is the read-only view reporters consume.
type DeviceSnapshot struct {
	ID          uint
	Name        string
	Driver      string
	Path        string
	Status      string
	Uptime      float64
	Hashrate    job.HashRates
	WorksIssued uint64
	Restarts    uint64
	Resets      uint64
	HWFaults    uint64
	CommsFaults int
	Statline    string
	FPGA        fpga.Stats
}

func (my *Device) Snapshot() DeviceSnapshot {
	issued, restarts := my.Slot.Counts()
	return DeviceSnapshot{
		ID:          my.ID,
		Name:        my.Name,
		Driver:      my.Driver,
		Path:        my.Path,
		Status:      StatusCode(my.Status()),
		Uptime:      my.Uptime(),
		Hashrate:    my.HStats.Rates(my.Ctrl.Now()),
		WorksIssued: issued,
		Restarts:    restarts,
		Resets:      my.resets.Load(),
		HWFaults:    my.hwFaults.Load(),
		CommsFaults: int(my.commsFaults.Load()),
		Statline:    my.Ctrl.Statline(),
		FPGA:        my.Ctrl.Stats(),
	}
}
