package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vcu_miner/device/fpgaio"
)

var ErrInvalidOptions = errors.New("ErrInvalidOptions")

type DeviceOptions struct {
	Baud         int
	WorkDivision int
	FPGACount    int
}

func DefaultOptions() DeviceOptions {
	return DeviceOptions{Baud: fpgaio.IOSpeed, WorkDivision: 2, FPGACount: 2}
}

// ParseOptions reads "baud:work_division:fpga_count". Omitted fields keep
// their defaults; a work_division alone also sets fpga_count.
func ParseOptions(s string) (DeviceOptions, error) {
	o := DefaultOptions()
	s = strings.TrimSpace(s)
	if s == "" {
		return o, nil
	}

	parts := strings.SplitN(s, ":", 3)
	if parts[0] != "" {
		baud, err := strconv.Atoi(parts[0])
		if err != nil || baud != fpgaio.IOSpeed {
			return o, fmt.Errorf("%w: baud (%s) must be %d", ErrInvalidOptions, parts[0], fpgaio.IOSpeed)
		}
		o.Baud = baud
	}

	if len(parts) > 1 && parts[1] != "" {
		wd, err := strconv.Atoi(parts[1])
		if _, ok := NonceMask(wd); err != nil || !ok {
			return o, fmt.Errorf("%w: work_division (%s) must be 1, 2, 4 or 8", ErrInvalidOptions, parts[1])
		}
		o.WorkDivision = wd
		o.FPGACount = wd
	}

	if len(parts) > 2 && parts[2] != "" {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n <= 0 || n > o.WorkDivision {
			return o, fmt.Errorf("%w: fpga_count (%s) must be >0 and <=work_division (%d)", ErrInvalidOptions, parts[2], o.WorkDivision)
		}
		o.FPGACount = n
	}
	return o, nil
}

// NonceMask is the part of the nonce range one FPGA searches for a work
// division.
func NonceMask(workDivision int) (uint32, bool) {
	switch workDivision {
	case 1:
		return 0xffffffff, true
	case 2:
		return 0x7fffffff, true
	case 4:
		return 0x3fffffff, true
	case 8:
		return 0x1fffffff, true
	default:
		return 0x7fffffff, false
	}
}

// OptionAt returns the idx-th entry of a comma separated option list.
// When the list has fewer entries the last one is not reused; ok is false.
func OptionAt(list string, idx int) (string, bool) {
	if list == "" || idx < 0 {
		return "", false
	}
	items := strings.Split(list, ",")
	if idx >= len(items) {
		return "", false
	}
	return strings.TrimSpace(items[idx]), true
}
