package fpgaio

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	WriteSize = 175
	ReadSize  = 17

	// IOSpeed is the only baud rate the bitstream accepts.
	IOSpeed = 3000000

	// TimeFactor converts seconds into read ticks. One tick is the
	// termios VTIME unit, a tenth of a second.
	TimeFactor = 10
	TickPeriod = time.Second / TimeFactor

	// ReadCountProbe is the read budget used while detecting a device.
	ReadCountProbe = 6
)

const (
	TAG_COUNTER   uint8 = 0xbb
	TAG_NONCE     uint8 = 0x01
	TAG_TELEMETRY uint8 = 0xaa
)

const (
	offPrefixEcho = 9
	offCore       = 12
	offNonce      = 13
)

var (
	ErrComms      = errors.New("ErrComms")
	ErrTimeout    = errors.New("ErrTimeout")
	ErrRestarted  = errors.New("ErrRestarted")
	ErrShortWrite = errors.New("ErrShortWrite")
	ErrClosed     = errors.New("ErrClosed")
)

// NonceByteOrder is the order of the 4-byte nonce counter on the wire.
var NonceByteOrder binary.ByteOrder = binary.BigEndian

// Port is the raw byte channel to one device. A Read returning (0, nil)
// means one tick elapsed without data.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type Response struct {
	Frame [ReadSize]byte
	// Finish is when the first byte of Frame arrived.
	Finish time.Time
}
