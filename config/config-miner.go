package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vcu_miner/device/fpgaio"
	"vcu_miner/log"
)

type ResetConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

func (my *ResetConfig) Enabled() bool {
	return my != nil && my.Chip != ""
}

// DeviceEntryConfig is one FPGA card as written in the config file. Parse
// fills the derived fields.
type DeviceEntryConfig struct {
	Path    string       `yaml:"path"`
	Options string       `yaml:"options"`
	Timing  string       `yaml:"timing"`
	Clock   int          `yaml:"clock"`
	Cores   int          `yaml:"cores"`
	Reset   *ResetConfig `yaml:"reset"`

	Baud         int    `yaml:"-"`
	WorkDivision int    `yaml:"-"`
	FPGACount    int    `yaml:"-"`
	NonceMask    uint32 `yaml:"-"`
	ClockUnits   int    `yaml:"-"`
	Valid        bool   `yaml:"-"`
}

func (my *DeviceEntryConfig) Parse() error {
	my.Valid = false
	if my.Path == "" {
		return fmt.Errorf("%w: device without path", ErrInvalidOptions)
	}

	opts, err := ParseOptions(my.Options)
	if err != nil {
		return fmt.Errorf("%s: %w", my.Path, err)
	}
	my.Baud = opts.Baud
	my.WorkDivision = opts.WorkDivision
	my.FPGACount = opts.FPGACount
	my.NonceMask, _ = NonceMask(opts.WorkDivision)

	my.ClockUnits = fpgaio.DefaultClockUnits
	if my.Clock != 0 {
		if my.ClockUnits, err = fpgaio.ClockUnits(my.Clock); err != nil {
			return fmt.Errorf("%s: %w: %w", my.Path, ErrInvalidOptions, err)
		}
	}

	if my.Cores < 0 || my.Cores > 256 {
		return fmt.Errorf("%s: %w: cores %d", my.Path, ErrInvalidOptions, my.Cores)
	}
	my.Valid = true
	return nil
}

// APIConfig covers the HTTP API and the line protocol command port.
type APIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	CommandListen string `yaml:"command_listen"`
}

type WorkConfig struct {
	Template    string `yaml:"template"`
	PrefixStart uint32 `yaml:"prefix_start"`
}

type MinerConfig struct {
	Log     log.Config          `yaml:"log"`
	API     APIConfig           `yaml:"api"`
	Work    WorkConfig          `yaml:"work"`
	Devices []DeviceEntryConfig `yaml:"devices"`
}

func Default() MinerConfig {
	return MinerConfig{
		Log: log.Config{Level: "info", Encoding: "console"},
		API: APIConfig{Enabled: true, Listen: ":8080", CommandListen: ":4028"},
	}
}

var ErrNoDevices = errors.New("ErrNoDevices")

// Load reads a YAML config over the defaults. A missing path yields the
// defaults.
func Load(path string) (MinerConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyOverrides merges the comma-list command line options into the device
// entries. Entry idx takes the idx-th item of each list; an empty or missing
// item leaves that device on its file or default value.
func (my *MinerConfig) ApplyOverrides(paths, options, timings, clocks string) error {
	if paths != "" {
		for i, p := range strings.Split(paths, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if i < len(my.Devices) {
				my.Devices[i].Path = p
				continue
			}
			// gaps keep later paths at their list index, so the option
			// lists stay aligned; a gap has no path and is never registered
			for len(my.Devices) < i {
				my.Devices = append(my.Devices, DeviceEntryConfig{})
			}
			my.Devices = append(my.Devices, DeviceEntryConfig{Path: p})
		}
	}
	for i := range my.Devices {
		d := &my.Devices[i]
		if v, ok := OptionAt(options, i); ok && v != "" {
			d.Options = v
		}
		if v, ok := OptionAt(timings, i); ok && v != "" {
			d.Timing = v
		}
		if v, ok := OptionAt(clocks, i); ok && v != "" {
			if _, err := fmt.Sscanf(v, "%d", &d.Clock); err != nil {
				return fmt.Errorf("%w: clock %q", ErrInvalidOptions, v)
			}
		}
	}
	return nil
}

func (my *MinerConfig) Validate() error {
	if len(my.Devices) == 0 {
		return ErrNoDevices
	}
	var errs []error
	for i := range my.Devices {
		if err := my.Devices[i].Parse(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
