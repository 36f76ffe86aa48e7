// Package fpgaiotest provides a scripted clock and serial port for exercising
// the FPGA transport without hardware.
package fpgaiotest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vcu_miner/device/fpgaio"
)

var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Clock only moves when the port consumes ticks or a test advances it.
type Clock struct {
	mx  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mx.Lock()
	c.now = c.now.Add(d)
	c.mx.Unlock()
}

func (c *Clock) set(t time.Time) {
	c.mx.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mx.Unlock()
}

type reply struct {
	at    time.Time
	frame []byte
	sent  int
}

var ErrInjected = errors.New("injected i/o error")

// Port replays queued frames at their scheduled times. A Read with nothing
// due advances the clock by one tick and returns (0, nil), like a tty with
// VMIN=0 and VTIME=1.
type Port struct {
	Clock *Clock

	mx       sync.Mutex
	replies  []*reply
	written  [][]byte
	closed   bool
	readErr  error
	writeErr error
	short    bool
	reads    int
}

func NewPort(c *Clock) *Port {
	return &Port{Clock: c}
}

// QueueAfter schedules a frame to start arriving d after the current time.
func (p *Port) QueueAfter(d time.Duration, frame []byte) {
	p.QueueAt(p.Clock.Now().Add(d), frame)
}

func (p *Port) QueueAt(t time.Time, frame []byte) {
	p.mx.Lock()
	defer p.mx.Unlock()
	b := make([]byte, len(frame))
	copy(b, frame)
	p.replies = append(p.replies, &reply{at: t, frame: b})
}

func (p *Port) FailReads(err error) {
	p.mx.Lock()
	p.readErr = err
	p.mx.Unlock()
}

func (p *Port) FailWrites(err error) {
	p.mx.Lock()
	p.writeErr = err
	p.mx.Unlock()
}

func (p *Port) ShortWrites() {
	p.mx.Lock()
	p.short = true
	p.mx.Unlock()
}

func (p *Port) Written() [][]byte {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([][]byte(nil), p.written...)
}

func (p *Port) Closed() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.closed
}

func (p *Port) Pending() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.replies)
}

func (p *Port) Read(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	p.reads++
	if p.closed {
		return 0, fpgaio.ErrClosed
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(b) == 0 {
		return 0, nil
	}

	now := p.Clock.Now()
	if len(p.replies) > 0 {
		r := p.replies[0]
		if !r.at.After(now.Add(fpgaio.TickPeriod)) {
			p.Clock.set(r.at)
			b[0] = r.frame[r.sent]
			r.sent++
			if r.sent == len(r.frame) {
				p.replies = p.replies[1:]
			}
			return 1, nil
		}
	}

	p.Clock.Advance(fpgaio.TickPeriod)
	return 0, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return 0, fpgaio.ErrClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	c := make([]byte, len(b))
	copy(c, b)
	p.written = append(p.written, c)
	if p.short {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.mx.Lock()
	p.closed = true
	p.mx.Unlock()
	return nil
}

// Opener hands out the same port on every open and reopen.
func Opener(p *Port) fpgaio.Opener {
	return func(path string, baud int, purge bool) (fpgaio.Port, error) {
		p.mx.Lock()
		p.closed = false
		p.mx.Unlock()
		return p, nil
	}
}

// PathOpener serves one port per device path and fails for unknown paths.
func PathOpener(ports map[string]*Port) fpgaio.Opener {
	return func(path string, baud int, purge bool) (fpgaio.Port, error) {
		p, ok := ports[path]
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, ErrInjected)
		}
		return Opener(p)(path, baud, purge)
	}
}

// CounterFrame is the reply to the detection frame.
func CounterFrame(cores uint8) []byte {
	b := make([]byte, fpgaio.ReadSize)
	b[0] = fpgaio.TAG_COUNTER
	b[1] = cores
	return b
}

func NonceFrame(tag uint8, core uint8, nonce uint32, prefix [3]byte) []byte {
	b := make([]byte, fpgaio.ReadSize)
	b[0] = tag
	copy(b[9:12], prefix[:])
	b[12] = core
	fpgaio.NonceByteOrder.PutUint32(b[13:17], nonce)
	return b
}

func TelemetryFrame(volts, temps [3]uint16) []byte {
	b := make([]byte, fpgaio.ReadSize)
	b[0] = fpgaio.TAG_TELEMETRY
	for i := 0; i < 3; i++ {
		b[1+2*i] = byte(volts[i] >> 8)
		b[2+2*i] = byte(volts[i])
		b[9+2*i] = byte(temps[i] >> 8)
		b[10+2*i] = byte(temps[i])
	}
	return b
}
