package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcu_miner/config"
	"vcu_miner/job"
	"vcu_miner/jsonrpc"
)

func TestLoadConfigFlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  - path: /dev/ttyUSB0\n    timing: long\n"), 0o644))

	cfg, err := loadConfig(flags{
		config:    path,
		debug:     true,
		devices:   ",/dev/ttyUSB1",
		timing:    "short",
		clock:     ",500",
		apiListen: ":9999",
		noAPI:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9999", cfg.API.Listen)
	assert.False(t, cfg.API.Enabled)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "short", cfg.Devices[0].Timing)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Devices[1].Path)
	assert.Equal(t, 500, cfg.Devices[1].Clock)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigBadClock(t *testing.T) {
	_, err := loadConfig(flags{devices: "/dev/ttyUSB0", clock: "fast"})
	assert.ErrorIs(t, err, config.ErrInvalidOptions)
}

func TestNewSource(t *testing.T) {
	g, err := newSource(config.WorkConfig{})
	require.NoError(t, err)
	assert.Equal(t, "bench-000000", g.Next().JobID)

	_, err = newSource(config.WorkConfig{Template: "zz"})
	assert.Error(t, err)

	tmpl := make([]byte, job.WorkDataSize*2)
	for i := range tmpl {
		tmpl[i] = 'a'
	}
	g, err = newSource(config.WorkConfig{Template: string(tmpl), PrefixStart: 0x10})
	require.NoError(t, err)
	w := g.Next()
	assert.Equal(t, "work-000010", w.JobID)
	assert.Equal(t, byte(0xaa), w.Data[5])
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "debug", "devices", "fpga-options", "fpga-timing", "fpga-clock", "api-listen", "no-api"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestQueryCmd(t *testing.T) {
	srv, err := jsonrpc.NewServer("127.0.0.1:0", func(req *jsonrpc.APIRequest) (interface{}, error) {
		return map[string]string{"got": req.Command}, nil
	})
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Shutdown(context.Background())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"query", "--addr", srv.Addr().String(), "summary"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.JSONEq(t, `{"got":"summary"}`, out.String())
}
