package fpga

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"

	"vcu_miner/device/fpgaio"
	"vcu_miner/device/timing"
	"vcu_miner/job"
)

const (
	// HashrateAvgOver is the window for device hashrate averages.
	HashrateAvgOver = 5 * time.Second

	// SecondsPerNonceRange is the interval between core activity checks
	// while a work keeps timing out.
	SecondsPerNonceRange = 10 * time.Second

	// AbandonFraction of the expected cores' nonce range triggers new work.
	AbandonFraction = 0.75
)

// Submitter hands a found nonce to the pool layer. It returns
// job.ErrHWError when the nonce does not verify.
type Submitter interface {
	SubmitNonce(w *job.Work, nonce uint64) error
}

type FaultReporter interface {
	CommsFault(id int)
	Fault(id int, reason string)
}

type Kind int

const (
	RESULT_NONE Kind = iota
	RESULT_NONCE
	RESULT_COUNTER
	RESULT_ESTIMATE
)

func (k Kind) String() string {
	switch k {
	case RESULT_NONE:
		return "none"
	case RESULT_NONCE:
		return "nonce"
	case RESULT_COUNTER:
		return "counter"
	case RESULT_ESTIMATE:
		return "estimate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is what one scan contributes to the caller's running hash total.
type Result struct {
	Hashes uint64
	Kind   Kind
	Stale  bool
	// HWError is set when the nonce failed verification and the device
	// was closed.
	HWError bool

	// HashCount and CoreHashrate are set for current-work nonce frames.
	Core         uint8
	HashCount    uint64
	CoreHashrate uint32
}

type Config struct {
	ID           int
	Path         string
	Baud         int
	WorkDivision int
	FPGACount    int
	NonceMask    uint32
	ClockUnits   int
	// ExpectedCores overrides the count reported at detection when > 0.
	ExpectedCores int
	Timing        timing.Settings
}

// Stats is a read-only copy of a controller's state for reporters.
type Stats struct {
	ID   int
	Path string
	Open bool

	Timing timing.Snapshot

	Baud         int
	WorkDivision int
	FPGACount    int
	NonceMask    uint32
	ClockMHz     int

	ExpectedCores int
	ActiveCores   int
	EnabledCores  string

	DeviceHashrate uint64
	PrevHashcount  uint64
	WorkStart      time.Time

	MilliVolts   [3]uint32
	Voltages     [3]physic.ElectricPotential
	Celsius      [3]float64
	Temperatures [3]physic.Temperature
	TelemetryAt  time.Time

	NoncesFound       uint64
	Counters          uint64
	HWErrors          uint64
	StaleResults      uint64
	UnknownFrames     uint64
	Abandoned         uint64
	HashrateRefreshes uint64
	CommsErrors       uint64

	IO fpgaio.IOStats
}

// AbandonDue reports whether the fastest core has worked through more than
// the abandon fraction of the expected cores' combined nonce range.
func AbandonDue(fastest uint64, seconds float64, expectedCores int) bool {
	return float64(fastest)*seconds > AbandonFraction*timing.NonceRange*float64(expectedCores)
}
