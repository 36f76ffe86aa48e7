package fpgaio

import (
	"context"
	"fmt"
	"time"

	"vcu_miner/log"
)

type Opener func(path string, baud int, purge bool) (Port, error)

type Option func(*FPGAIO)

// WithOpener replaces the function used to open the port.
func WithOpener(open Opener) Option {
	return func(my *FPGAIO) { my.open = open }
}

// WithClock replaces time.Now for frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(my *FPGAIO) { my.now = now }
}

type IOStats struct {
	FramesWritten uint64
	FramesRead    uint64
	Timeouts      uint64
	Restarts      uint64
	CommsErrors   uint64
}

// FPGAIO is the framed byte channel to one FPGA card.
type FPGAIO struct {
	Path string
	Baud int

	open  Opener
	now   func() time.Time
	port  Port
	stats IOStats
}

func NewFPGAIO(path string, baud int, opts ...Option) *FPGAIO {
	my := &FPGAIO{
		Path: path,
		Baud: baud,
		open: OpenSerial,
		now:  time.Now,
	}
	for _, o := range opts {
		o(my)
	}
	return my
}

func (my *FPGAIO) Open(purge bool) error {
	if my.port != nil {
		return nil
	}
	p, err := my.open(my.Path, my.Baud, purge)
	if err != nil {
		my.stats.CommsErrors++
		return fmt.Errorf("%w: %w", ErrComms, err)
	}
	my.port = p
	log.Debugf("%s: opened at %d baud", my.Path, my.Baud)
	return nil
}

func (my *FPGAIO) IsOpen() bool {
	return my.port != nil
}

func (my *FPGAIO) Close() error {
	if my.port == nil {
		return nil
	}
	err := my.port.Close()
	my.port = nil
	return err
}

func (my *FPGAIO) Now() time.Time {
	return my.now()
}

func (my *FPGAIO) Stats() IOStats {
	return my.stats
}

func (my *FPGAIO) Write(frame *[WriteSize]byte) error {
	if my.port == nil {
		return fmt.Errorf("%w: %s: %w", ErrComms, my.Path, ErrClosed)
	}
	n, err := my.port.Write(frame[:])
	if err != nil {
		my.stats.CommsErrors++
		return fmt.Errorf("%w: %s write: %w", ErrComms, my.Path, err)
	}
	if n != WriteSize {
		my.stats.CommsErrors++
		return fmt.Errorf("%w: %s wrote %d of %d: %w", ErrComms, my.Path, n, WriteSize, ErrShortWrite)
	}
	my.stats.FramesWritten++
	return nil
}

// Read collects one response frame a byte at a time so Finish marks the
// arrival of the first byte. Each empty tick counts against readCount; once
// it is used up Read returns ErrTimeout. ctx is checked only on empty ticks,
// after the timeout check.
func (my *FPGAIO) Read(ctx context.Context, readCount int) (Response, error) {
	var rsp Response

	if my.port == nil {
		return rsp, fmt.Errorf("%w: %s: %w", ErrComms, my.Path, ErrClosed)
	}

	got := 0
	rc := 0
	for {
		n, err := my.port.Read(rsp.Frame[got : got+1])
		if err != nil || n < 0 {
			my.stats.CommsErrors++
			return rsp, fmt.Errorf("%w: %s read: %v", ErrComms, my.Path, err)
		}

		if got == 0 {
			rsp.Finish = my.now()
		}

		if n > 0 {
			got += n
			if got >= ReadSize {
				my.stats.FramesRead++
				return rsp, nil
			}
			continue
		}

		rc++
		if rc >= readCount {
			my.stats.Timeouts++
			if log.DebugEnabled() {
				log.Debugf("%s: no data in %.2f seconds", my.Path, float64(rc)/TimeFactor)
			}
			return rsp, ErrTimeout
		}

		select {
		case <-ctx.Done():
			my.stats.Restarts++
			if log.DebugEnabled() {
				log.Debugf("%s: work restart at %.2f seconds", my.Path, float64(rc)/TimeFactor)
			}
			return rsp, ErrRestarted
		default:
		}
	}
}
