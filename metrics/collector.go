package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/conn/v3/physic"

	"vcu_miner/device"
)

const namespace = "vcu"

// SnapshotSource is polled on every scrape.
type SnapshotSource interface {
	Snapshots() []device.DeviceSnapshot
}

// Collector turns device snapshots into metrics at scrape time, so the
// device loops never touch the registry.
type Collector struct {
	src SnapshotSource

	up            *prometheus.Desc
	hashrate      *prometheus.Desc
	estimate      *prometheus.Desc
	hashes        *prometheus.Desc
	activeCores   *prometheus.Desc
	expectedCores *prometheus.Desc
	temperature   *prometheus.Desc
	voltage       *prometheus.Desc
	nonces        *prometheus.Desc
	hwErrors      *prometheus.Desc
	stale         *prometheus.Desc
	abandoned     *prometheus.Desc
	commsErrors   *prometheus.Desc
	timeouts      *prometheus.Desc
	readCount     *prometheus.Desc
	hashTime      *prometheus.Desc
}

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "device", name), help,
		append([]string{"device", "path"}, labels...), nil)
}

func NewCollector(src SnapshotSource) *Collector {
	return &Collector{
		src:           src,
		up:            desc("up", "1 when the device loop reports the device alive"),
		hashrate:      desc("hashrate", "Rolling hash rate in H/s", "window"),
		estimate:      desc("estimated_hashrate", "Hash rate the controller extrapolates with, in H/s"),
		hashes:        desc("hashes_total", "Hashes accounted to the device"),
		activeCores:   desc("active_cores", "Cores that reported since the last activity check"),
		expectedCores: desc("expected_cores", "Cores the bitstream runs"),
		temperature:   desc("temperature_celsius", "Die temperature", "sensor"),
		voltage:       desc("voltage_volts", "Rail voltage", "rail"),
		nonces:        desc("nonces_total", "Nonce frames received"),
		hwErrors:      desc("hardware_errors_total", "Nonces rejected as hardware errors"),
		stale:         desc("stale_total", "Responses for work no longer current"),
		abandoned:     desc("abandoned_total", "Works abandoned before their range was exhausted"),
		commsErrors:   desc("comms_errors_total", "Serial communication failures"),
		timeouts:      desc("read_timeouts_total", "Reads that ran out of ticks"),
		readCount:     desc("read_count", "Current read budget in deciseconds"),
		hashTime:      desc("hash_time_seconds", "Fitted seconds per hash"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.up, c.hashrate, c.estimate, c.hashes, c.activeCores, c.expectedCores,
		c.temperature, c.voltage, c.nonces, c.hwErrors, c.stale, c.abandoned,
		c.commsErrors, c.timeouts, c.readCount, c.hashTime,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src.Snapshots() {
		id := strconv.FormatUint(uint64(s.ID), 10)
		gauge := func(d *prometheus.Desc, v float64, extra ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, append([]string{id, s.Path}, extra...)...)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), id, s.Path)
		}

		up := 0.0
		if s.Status == device.StatusCode(device.STATUS_ALIVE) {
			up = 1
		}
		gauge(c.up, up)
		gauge(c.hashrate, s.Hashrate.Rate1m, "1m")
		gauge(c.hashrate, s.Hashrate.Rate5m, "5m")
		gauge(c.hashrate, s.Hashrate.Rate15m, "15m")
		gauge(c.estimate, float64(s.FPGA.DeviceHashrate))
		counter(c.hashes, s.Hashrate.Total)
		gauge(c.activeCores, float64(s.FPGA.ActiveCores))
		gauge(c.expectedCores, float64(s.FPGA.ExpectedCores))

		if !s.FPGA.TelemetryAt.IsZero() {
			for i, t := range s.FPGA.Temperatures {
				if t == 0 {
					continue
				}
				gauge(c.temperature, float64(t-physic.ZeroCelsius)/float64(physic.Celsius), strconv.Itoa(i))
			}
			for i, v := range s.FPGA.Voltages {
				gauge(c.voltage, float64(v)/float64(physic.Volt), strconv.Itoa(i))
			}
		}

		counter(c.nonces, s.FPGA.NoncesFound)
		counter(c.hwErrors, s.FPGA.HWErrors)
		counter(c.stale, s.FPGA.StaleResults)
		counter(c.abandoned, s.FPGA.Abandoned)
		counter(c.commsErrors, s.FPGA.CommsErrors)
		counter(c.timeouts, s.FPGA.IO.Timeouts)
		gauge(c.readCount, float64(s.FPGA.Timing.ReadCount))
		gauge(c.hashTime, s.FPGA.Timing.Hs)
	}
}
