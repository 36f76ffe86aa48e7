package reset

import (
	"context"
	"errors"
	"time"
)

// PulseWidth is how long the reset line is held low.
const PulseWidth = 100 * time.Millisecond

var ErrUnsupported = errors.New("ErrUnsupported")

// Line is an output that resets one FPGA card when pulsed low.
type Line interface {
	Pulse(ctx context.Context, width time.Duration) error
	Close() error
}

type Opener func(chip string, offset int) (Line, error)

// pulse drives set low for width, then high again. The line is released
// high even when ctx ends early.
func pulse(ctx context.Context, set func(int) error, width time.Duration) error {
	if err := set(0); err != nil {
		return err
	}
	t := time.NewTimer(width)
	defer t.Stop()
	var cerr error
	select {
	case <-t.C:
	case <-ctx.Done():
		cerr = ctx.Err()
	}
	if err := set(1); err != nil {
		return err
	}
	return cerr
}
