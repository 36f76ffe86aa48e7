package fpgaio

import (
	"encoding/binary"
	"math/bits"

	"periph.io/x/conn/v3/physic"

	"vcu_miner/job"
)

// Frame is one classified response frame: NonceResult, Telemetry or Unknown.
type Frame interface {
	tag() uint8
}

type NonceResult struct {
	Tag   uint8
	Core  uint8
	Nonce uint32
	// Prefix is the job prefix the device echoes back.
	Prefix [job.PrefixSize]byte
}

func (r NonceResult) tag() uint8 { return r.Tag }

// Submittable is false for counter frames, which only report progress.
func (r NonceResult) Submittable() bool {
	return r.Tag == TAG_NONCE
}

type Telemetry struct {
	RawVoltage     [3]uint16
	RawTemperature [3]uint16
	// MilliVolts is raw*3000/65536, truncated.
	MilliVolts [3]uint32
	Celsius    [3]float64
}

func (t Telemetry) tag() uint8 { return TAG_TELEMETRY }

func (t Telemetry) Voltages() [3]physic.ElectricPotential {
	var v [3]physic.ElectricPotential
	for i, mv := range t.MilliVolts {
		v[i] = physic.ElectricPotential(mv) * physic.MilliVolt
	}
	return v
}

// Temperatures converts to periph units. A sensor reading 0 stays 0 K so
// consumers can tell "no sensor" apart from a real reading.
func (t Telemetry) Temperatures() [3]physic.Temperature {
	var v [3]physic.Temperature
	for i, c := range t.Celsius {
		if t.RawTemperature[i] == 0 {
			continue
		}
		v[i] = physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
	}
	return v
}

type Unknown struct {
	Tag uint8
}

func (u Unknown) tag() uint8 { return u.Tag }

func Classify(b *[ReadSize]byte) Frame {
	switch b[0] {
	case TAG_COUNTER, TAG_NONCE:
		if isCommandEcho(b) {
			r := NonceResult{
				Tag:   b[0],
				Core:  b[offCore],
				Nonce: NonceByteOrder.Uint32(b[offNonce : offNonce+4]),
			}
			copy(r.Prefix[:], b[offPrefixEcho:offPrefixEcho+job.PrefixSize])
			return r
		}
	case TAG_TELEMETRY:
		return decodeTelemetry(b)
	}
	return Unknown{Tag: b[0]}
}

func isCommandEcho(b *[ReadSize]byte) bool {
	for _, v := range b[2:9] {
		if v != 0 {
			return false
		}
	}
	return true
}

func decodeTelemetry(b *[ReadSize]byte) Telemetry {
	var t Telemetry
	for i := 0; i < 3; i++ {
		t.RawVoltage[i] = binary.BigEndian.Uint16(b[1+2*i:])
		t.RawTemperature[i] = binary.BigEndian.Uint16(b[9+2*i:])
		t.MilliVolts[i] = ScaleVoltage(t.RawVoltage[i])
		t.Celsius[i] = ScaleTemperature(t.RawTemperature[i])
	}
	return t
}

func ScaleVoltage(raw uint16) uint32 {
	if raw == 0 {
		return 0
	}
	return uint32(raw) * 3000 / 65536
}

func ScaleTemperature(raw uint16) float64 {
	if raw == 0 {
		return 0
	}
	return float64(raw)*509.3140064/65536 - 280.2308787
}

// BuildWorkFrame lays out the 175-byte work frame: the 3-byte job prefix
// followed by the job buffer from offset 8.
func BuildWorkFrame(w *job.Work) [WriteSize]byte {
	var buf [WriteSize]byte
	copy(buf[:job.PrefixSize], w.Data[:job.PrefixSize])
	copy(buf[job.PrefixSize:], w.Data[8:8+WriteSize-job.PrefixSize])
	return buf
}

// IsCurrentWork reports whether a nonce frame echoes the prefix of w.
func IsCurrentWork(r NonceResult, w *job.Work) bool {
	return r.Prefix == w.Prefix()
}

// AssembleNonce combines the core id and the 4-byte counter into the 64-bit
// nonce. Bitstreams with 9 or more cores also carry the low 3 bytes of the
// job's nonce2 in the upper word.
func AssembleNonce(core uint8, nonce uint32, w *job.Work, expectedCores int) uint64 {
	n := uint64(core)<<32 + uint64(nonce)
	if expectedCores >= 9 {
		n2 := bits.ReverseBytes32(w.Nonce2() & 0xffffff)
		n |= uint64(n2) << 32
	}
	return n
}

// SubmitNonce is the byte order the pool layer expects.
func SubmitNonce(real uint64) uint64 {
	return bits.ReverseBytes64(real)
}
