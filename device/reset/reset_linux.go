//go:build linux
// +build linux

package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/gpiod"

	"vcu_miner/log"
)

type gpioLine struct {
	chip   string
	offset int
	line   *gpiod.Line
}

// Open requests offset on chip as an output, initially high.
func Open(chip string, offset int) (Line, error) {
	l, err := gpiod.RequestLine(chip, offset, gpiod.AsOutput(1), gpiod.WithConsumer("vcu_miner"))
	if err != nil {
		return nil, fmt.Errorf("gpio %s:%d: %w", chip, offset, err)
	}
	return &gpioLine{chip: chip, offset: offset, line: l}, nil
}

func (my *gpioLine) Pulse(ctx context.Context, width time.Duration) error {
	log.Infof("gpio %s:%d: reset pulse %v", my.chip, my.offset, width)
	return pulse(ctx, my.line.SetValue, width)
}

func (my *gpioLine) Close() error {
	return my.line.Close()
}
