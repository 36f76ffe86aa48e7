package timing

import (
	"math"
	"strconv"
	"strings"

	"vcu_miner/device/fpgaio"
)

type Mode int

const (
	MODE_DEFAULT Mode = iota
	MODE_SHORT
	MODE_LONG
	MODE_VALUE
)

func (m Mode) String() string {
	switch m {
	case MODE_DEFAULT:
		return "default"
	case MODE_SHORT:
		return "short"
	case MODE_LONG:
		return "long"
	case MODE_VALUE:
		return "value"
	default:
		return "unknown"
	}
}

const (
	// REV3HashTime is the seconds per hash assumed before any fit.
	REV3HashTime = 0.0000000026316

	// ReadCountTiming is the read budget while calibrating, 5 seconds.
	ReadCountTiming = 5 * fpgaio.TimeFactor

	nanosec = 1e9
)

// NonceRange is the size of the 32-bit nonce space.
const NonceRange = float64(math.MaxUint32) + 1

type Settings struct {
	Mode      Mode
	Hs        float64
	ReadCount int
	FullNonce float64
	DoTiming  bool
}

// ParseTiming reads one device's timing option: "short", "long",
// "<ns per hash>[=read_count]", or anything else for the default.
func ParseTiming(opt string) Settings {
	var s Settings

	opt = strings.TrimSpace(opt)
	switch {
	case strings.EqualFold(opt, MODE_SHORT.String()):
		s = Settings{Mode: MODE_SHORT, Hs: REV3HashTime, ReadCount: ReadCountTiming, DoTiming: true}
		s.FullNonce = s.Hs * NonceRange
		return s
	case strings.EqualFold(opt, MODE_LONG.String()):
		s = Settings{Mode: MODE_LONG, Hs: REV3HashTime, ReadCount: ReadCountTiming, DoTiming: true}
		s.FullNonce = s.Hs * NonceRange
		return s
	}

	value, rc := splitValue(opt)
	if ns := atof(value); ns > 0 {
		s.Mode = MODE_VALUE
		s.Hs = ns / nanosec
		s.DoTiming = false
	} else {
		s.Mode = MODE_DEFAULT
		s.Hs = REV3HashTime
		s.DoTiming = true
	}
	s.FullNonce = s.Hs * NonceRange
	s.ReadCount = rc
	if s.ReadCount < 1 {
		s.ReadCount = ReadCountFor(s.FullNonce)
	}
	return s
}

// MaxReadCount bounds the read budget whatever the fit produced.
const MaxReadCount = math.MaxInt32

// ReadCountFor is the read budget in ticks that covers fullnonce seconds,
// between one tick and MaxReadCount.
func ReadCountFor(fullnonce float64) int {
	ticks := fullnonce * fpgaio.TimeFactor
	switch {
	case math.IsNaN(ticks) || ticks < 2:
		return 1
	case ticks-1 >= MaxReadCount:
		return MaxReadCount
	}
	return int(ticks) - 1
}

func splitValue(opt string) (string, int) {
	value, after, found := strings.Cut(opt, "=")
	if !found {
		return value, 0
	}
	return value, atoi(after)
}

// atof and atoi accept a numeric prefix and yield 0 when there is none.
func atof(s string) float64 {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0
			}
			return v
		}
	}
	return 0
}

func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}
