package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"vcu_miner/device"
	"vcu_miner/device/fpga"
	"vcu_miner/job"
)

type staticSource []device.DeviceSnapshot

func (s staticSource) Snapshots() []device.DeviceSnapshot { return s }

func snapshots() staticSource {
	withTelemetry := device.DeviceSnapshot{
		ID:       0,
		Path:     "/dev/fpga0",
		Status:   "Alive",
		Hashrate: job.HashRates{Total: 1000, Rate1m: 50e6},
		FPGA: fpga.Stats{
			ExpectedCores: 9,
			ActiveCores:   8,
			NoncesFound:   4,
			TelemetryAt:   time.Unix(1700000000, 0),
			Voltages:      [3]physic.ElectricPotential{850 * physic.MilliVolt, 1800 * physic.MilliVolt, 1200 * physic.MilliVolt},
			Temperatures:  [3]physic.Temperature{physic.ZeroCelsius + 61*physic.Celsius, physic.ZeroCelsius + 58*physic.Celsius, 0},
		},
	}
	bare := device.DeviceSnapshot{ID: 1, Path: "/dev/fpga1", Status: "Sick"}
	return staticSource{withTelemetry, bare}
}

func TestCollectorCount(t *testing.T) {
	c := NewCollector(snapshots())
	// 16 per device, plus 2 temperatures and 3 rails for the first
	assert.Equal(t, 16*2+5, testutil.CollectAndCount(c))
	assert.Equal(t, 3, testutil.CollectAndCount(c, "vcu_device_voltage_volts"))
}

func TestCollectorValues(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(snapshots())))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := ""
			for _, l := range m.GetLabel() {
				key += l.GetName() + "=" + l.GetValue() + ","
			}
			v := m.GetGauge().GetValue()
			if m.GetCounter() != nil {
				v = m.GetCounter().GetValue()
			}
			if values[f.GetName()] == nil {
				values[f.GetName()] = map[string]float64{}
			}
			values[f.GetName()][key] = v
		}
	}

	dev0 := "device=0,path=/dev/fpga0,"
	dev1 := "device=1,path=/dev/fpga1,"
	assert.Equal(t, 1.0, values["vcu_device_up"][dev0])
	assert.Equal(t, 0.0, values["vcu_device_up"][dev1])
	assert.Equal(t, 50e6, values["vcu_device_hashrate"][dev0+"window=1m,"])
	assert.Equal(t, 1000.0, values["vcu_device_hashes_total"][dev0])
	assert.Equal(t, 4.0, values["vcu_device_nonces_total"][dev0])
	assert.InDelta(t, 61.0, values["vcu_device_temperature_celsius"][dev0+"sensor=0,"], 1e-6)
	assert.InDelta(t, 0.85, values["vcu_device_voltage_volts"][dev0+"rail=0,"], 1e-9)
	_, ok := values["vcu_device_temperature_celsius"][dev0+"sensor=2,"]
	assert.False(t, ok)
}
