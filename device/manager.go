package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vcu_miner/config"
	"vcu_miner/device/fpga"
	"vcu_miner/device/fpgaio"
	"vcu_miner/device/reset"
	"vcu_miner/device/timing"
	"vcu_miner/job"
	"vcu_miner/log"
	"vcu_miner/util"
)

const (
	DriverName = "fpga"

	// DefaultRetry is the pause after a comms failure before reopening.
	DefaultRetry = time.Second

	// ResultLimit bounds the results kept for the pool layer.
	ResultLimit = 1024
)

var (
	ErrDevNotExist  = errors.New("not exist")
	ErrNoDevices    = errors.New("ErrNoDevices")
	ErrInvalidEntry = errors.New("ErrInvalidEntry")
)

type Option func(*DeviceManager)

// WithIOOptions is applied to every device transport.
func WithIOOptions(opts ...fpgaio.Option) Option {
	return func(my *DeviceManager) { my.ioOpts = append(my.ioOpts, opts...) }
}

func WithResetOpener(open reset.Opener) Option {
	return func(my *DeviceManager) { my.resetOpen = open }
}

func WithRetry(d time.Duration) Option {
	return func(my *DeviceManager) { my.retry = d }
}

func WithVerifier(v VerifyFunc) Option {
	return func(my *DeviceManager) { my.verify = v }
}

// DeviceManager owns the device registry. Devices are only appended, after
// a successful detection; Run starts one goroutine per registered device.
type DeviceManager struct {
	mx      sync.RWMutex
	devices []*Device
	byID    map[uint]*Device

	Results *job.ResultQ

	ioOpts    []fpgaio.Option
	resetOpen reset.Opener
	retry     time.Duration
	verify    VerifyFunc
}

func NewDeviceManager(opts ...Option) *DeviceManager {
	my := &DeviceManager{
		byID:      make(map[uint]*Device),
		Results:   job.NewResultQ(ResultLimit),
		resetOpen: reset.Open,
		retry:     DefaultRetry,
	}
	for _, o := range opts {
		o(my)
	}
	return my
}

// Register detects the card described by entry and adds it as device idx.
// entry must have been parsed.
func (my *DeviceManager) Register(ctx context.Context, entry config.DeviceEntryConfig, idx int) (*Device, error) {
	if !entry.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntry, entry.Path)
	}
	id := uint(idx)

	my.mx.RLock()
	_, dup := my.byID[id]
	my.mx.RUnlock()
	if dup {
		return nil, fmt.Errorf("%w: device %d already registered", ErrInvalidEntry, id)
	}

	fio := fpgaio.NewFPGAIO(entry.Path, entry.Baud, my.ioOpts...)
	cfg := fpga.Config{
		ID:            idx,
		Path:          entry.Path,
		Baud:          entry.Baud,
		WorkDivision:  entry.WorkDivision,
		FPGACount:     entry.FPGACount,
		NonceMask:     entry.NonceMask,
		ClockUnits:    entry.ClockUnits,
		ExpectedCores: entry.Cores,
		Timing:        timing.ParseTiming(entry.Timing),
	}
	sink := &resultSink{devID: id, results: my.Results, verify: my.verify}
	ctrl := fpga.New(cfg, fio, sink, my)

	if err := ctrl.Detect(ctx); err != nil {
		log.Errorf("device %d %s: detect failed: %v", idx, entry.Path, err)
		return nil, err
	}

	dev := &Device{
		ID:      id,
		Name:    fmt.Sprintf("%s%d", DriverName, idx),
		Driver:  DriverName,
		Path:    entry.Path,
		UpSince: util.NowInSec(),
		Ctrl:    ctrl,
		HStats:  job.NewHashStats(ctrl.Now()),
		log:     log.Named("device", "dev", idx, "path", entry.Path),
	}
	dev.setStatus(STATUS_NOSTART)

	if entry.Reset.Enabled() && my.resetOpen != nil {
		line, err := my.resetOpen(entry.Reset.Chip, entry.Reset.Line)
		if err != nil {
			dev.log.Errorf("reset line unavailable: %v", err)
		} else {
			dev.resetLine = line
		}
	}

	my.mx.Lock()
	my.devices = append(my.devices, dev)
	my.byID[id] = dev
	my.mx.Unlock()

	log.Infof("device %d %s registered, timing %s, %d cores", idx, entry.Path, cfg.Timing.Mode, ctrl.Stats().ExpectedCores)
	return dev, nil
}

// RegisterAll registers every valid entry by its position. Failed devices
// are logged and skipped.
func (my *DeviceManager) RegisterAll(ctx context.Context, entries []config.DeviceEntryConfig) int {
	n := 0
	for i := range entries {
		if !entries[i].Valid {
			continue
		}
		if _, err := my.Register(ctx, entries[i], i); err == nil {
			n++
		}
	}
	return n
}

func (my *DeviceManager) Devices() []*Device {
	my.mx.RLock()
	defer my.mx.RUnlock()
	return append([]*Device(nil), my.devices...)
}

func (my *DeviceManager) Get(id uint) (*Device, error) {
	my.mx.RLock()
	defer my.mx.RUnlock()
	d, ok := my.byID[id]
	if !ok {
		return nil, ErrDevNotExist
	}
	return d, nil
}

// Run drives every registered device until ctx ends.
func (my *DeviceManager) Run(ctx context.Context, source WorkSource) error {
	devs := my.Devices()
	if len(devs) == 0 {
		return ErrNoDevices
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range devs {
		d := d
		d.setStatus(STATUS_ALIVE)
		g.Go(func() error {
			return d.Run(gctx, source, my.retry)
		})
	}
	err := g.Wait()
	for _, d := range devs {
		d.setStatus(STATUS_NOSTART)
	}
	return err
}

// Restart makes every device drop its work and cancels reads in flight.
func (my *DeviceManager) Restart() {
	devs := my.Devices()
	for _, d := range devs {
		d.Slot.Restart()
	}
	log.Infof("restart requested on %d devices", len(devs))
}

func (my *DeviceManager) Snapshots() []DeviceSnapshot {
	devs := my.Devices()
	out := make([]DeviceSnapshot, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (my *DeviceManager) ResultCounts() (accepted, dupes uint64) {
	return my.Results.Counts()
}

// Close releases reset lines. Ports are closed by the device loops.
func (my *DeviceManager) Close() {
	for _, d := range my.Devices() {
		if d.resetLine != nil {
			if err := d.resetLine.Close(); err != nil {
				log.Errorf("device %d: reset line close: %v", d.ID, err)
			}
		}
	}
}

func (my *DeviceManager) CommsFault(id int) {
	d, err := my.Get(uint(id))
	if err != nil {
		return
	}
	n := d.commsFaults.Add(1)
	d.setStatus(STATUS_SICK)
	d.log.Debugf("comms fault %d in a row", n)
}

func (my *DeviceManager) Fault(id int, reason string) {
	d, err := my.Get(uint(id))
	if err != nil {
		return
	}
	d.hwFaults.Add(1)
	d.setStatus(STATUS_SICK)
	d.log.Errorf("fault: %s", reason)
}
