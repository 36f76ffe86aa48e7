package fpgaio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"vcu_miner/log"
)

// DefaultCores is assumed when the bitstream does not report its core count.
const DefaultCores = 9

type ProbeResult struct {
	Reply [ReadSize]byte
	// Confirmed is set when the card answered the golden frame.
	Confirmed     bool
	ExpectedCores int
	Start         time.Time
	Elapsed       time.Duration
}

// Probe writes the all-zero golden frame, waits briefly for the counter
// reply that carries the core count, then programs the clock. The port is
// left closed. A card that does not answer is still usable and is assumed
// to run DefaultCores cores.
func Probe(ctx context.Context, fio *FPGAIO, clockUnits int) (ProbeResult, error) {
	var res ProbeResult

	if err := fio.Open(true); err != nil {
		return res, err
	}
	defer fio.Close()

	var golden [WriteSize]byte
	if err := fio.Write(&golden); err != nil {
		return res, err
	}
	res.Start = fio.Now()

	rsp, err := fio.Read(ctx, ReadCountProbe)
	if err != nil && !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrRestarted) {
		return res, err
	}
	res.Reply = rsp.Frame
	res.Elapsed = rsp.Finish.Sub(res.Start)

	clk := BuildClockFrame(clockUnits)
	if err := fio.Write(&clk); err != nil {
		return res, fmt.Errorf("clock %d MHz: %w", UnitsToMHz(clockUnits), err)
	}

	if err == nil && res.Reply[0] == TAG_COUNTER {
		res.Confirmed = true
		res.ExpectedCores = int(res.Reply[1])
	}
	if res.ExpectedCores == 0 {
		res.ExpectedCores = DefaultCores
	}

	if res.Confirmed {
		log.Infof("%s: bitstream is for %d cores", fio.Path, res.ExpectedCores)
	} else {
		log.Errorf("%s: detect test failed, got %s, expecting %d cores", fio.Path, hex.EncodeToString(res.Reply[:]), res.ExpectedCores)
	}
	return res, nil
}
