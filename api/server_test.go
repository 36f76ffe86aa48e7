package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcu_miner/device"
	"vcu_miner/job"
	"vcu_miner/metrics"
)

type fakeMiner struct {
	snaps    []device.DeviceSnapshot
	restarts int
}

func (f *fakeMiner) Snapshots() []device.DeviceSnapshot { return f.snaps }

func (f *fakeMiner) Restart() { f.restarts++ }

func (f *fakeMiner) ResultCounts() (uint64, uint64) { return 7, 1 }

func newTestServer() (*Server, *fakeMiner) {
	m := &fakeMiner{snaps: []device.DeviceSnapshot{
		{ID: 0, Path: "/dev/fpga0", Status: "Alive", Hashrate: job.HashRates{Total: 10, Rate1m: 1.5e9}},
		{ID: 3, Path: "/dev/fpga3", Status: "Sick", Hashrate: job.HashRates{Total: 5, Rate1m: 0.5e9}},
	}}
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(m))
	return NewServer(m, reg), m
}

func get(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSummary(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, http.MethodGet, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var sum Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.Devices)
	assert.Equal(t, 1, sum.Alive)
	assert.Equal(t, 2e9, sum.Hashrate)
	assert.Equal(t, uint64(15), sum.Hashes)
	assert.Equal(t, uint64(7), sum.Accepted)
	assert.Contains(t, sum.Human, "GH/s")
}

func TestDevices(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, http.MethodGet, "/api/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []device.DeviceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = get(t, s, http.MethodGet, "/api/devices/3")
	require.Equal(t, http.StatusOK, rec.Code)
	var one device.DeviceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "/dev/fpga3", one.Path)

	assert.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/api/devices/9").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, http.MethodGet, "/api/devices/x").Code)
}

func TestRestart(t *testing.T) {
	s, m := newTestServer()
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, s, http.MethodGet, "/api/restart").Code)
	assert.Equal(t, http.StatusOK, get(t, s, http.MethodPost, "/api/restart").Code)
	assert.Equal(t, 1, m.restarts)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `vcu_device_up{device="0",path="/dev/fpga0"} 1`), body)
	assert.Contains(t, body, "vcu_device_hashes_total")
}

func TestVersion(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s, http.MethodGet, "/api/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "VCU1525")
}

func TestStopBeforeStart(t *testing.T) {
	s, _ := newTestServer()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	started := make(chan error, 1)
	go func() { started <- s.Start("127.0.0.1:0") }()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Stop")
	}
}

func TestStartThenStop(t *testing.T) {
	s, _ := newTestServer()
	started := make(chan error, 1)
	go func() { started <- s.Start("127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
