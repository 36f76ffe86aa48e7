package fpgaio_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"vcu_miner/device/fpgaio"
	"vcu_miner/device/fpgaio/fpgaiotest"
	"vcu_miner/job"
)

func frameOf(b []byte) *[fpgaio.ReadSize]byte {
	var f [fpgaio.ReadSize]byte
	copy(f[:], b)
	return &f
}

func testWork(t *testing.T) *job.Work {
	data := make([]byte, job.WorkDataSize)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	w, err := job.NewWork("j1", data)
	require.NoError(t, err)
	return w
}

func TestClassifyNonce(t *testing.T) {
	prefix := [3]byte{0x11, 0x22, 0x33}
	f := fpgaio.Classify(frameOf(fpgaiotest.NonceFrame(fpgaio.TAG_NONCE, 3, 0x00000100, prefix)))

	r, ok := f.(fpgaio.NonceResult)
	require.True(t, ok)
	assert.Equal(t, uint8(3), r.Core)
	assert.Equal(t, uint32(0x100), r.Nonce)
	assert.Equal(t, prefix, r.Prefix)
	assert.True(t, r.Submittable())

	f = fpgaio.Classify(frameOf(fpgaiotest.NonceFrame(fpgaio.TAG_COUNTER, 7, 0xdeadbeef, prefix)))
	r, ok = f.(fpgaio.NonceResult)
	require.True(t, ok)
	assert.False(t, r.Submittable())
	assert.Equal(t, uint32(0xdeadbeef), r.Nonce)
}

func TestClassifyCounterWithDirtyMiddle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		b := fpgaiotest.NonceFrame(fpgaio.TAG_COUNTER, uint8(rng.Intn(256)), rng.Uint32(), [3]byte{})
		pos := 2 + rng.Intn(7)
		b[pos] = byte(1 + rng.Intn(255))

		f := fpgaio.Classify(frameOf(b))
		_, isNonce := f.(fpgaio.NonceResult)
		assert.False(t, isNonce, "byte %d = %#x", pos, b[pos])
		assert.Equal(t, fpgaio.Unknown{Tag: fpgaio.TAG_COUNTER}, f)
	}
}

func TestClassifyTelemetry(t *testing.T) {
	f := fpgaio.Classify(frameOf(fpgaiotest.TelemetryFrame([3]uint16{}, [3]uint16{})))
	tel, ok := f.(fpgaio.Telemetry)
	require.True(t, ok)
	assert.Equal(t, [3]uint32{}, tel.MilliVolts)
	assert.Equal(t, [3]float64{}, tel.Celsius)
	assert.Equal(t, [3]physic.Temperature{}, tel.Temperatures())

	f = fpgaio.Classify(frameOf(fpgaiotest.TelemetryFrame(
		[3]uint16{0x5555, 0x8000, 0xffff},
		[3]uint16{0x9c40, 0x8000, 1},
	)))
	tel = f.(fpgaio.Telemetry)
	assert.Equal(t, uint32(0x5555*3000/65536), tel.MilliVolts[0])
	assert.Equal(t, uint32(1500), tel.MilliVolts[1])
	assert.Equal(t, uint32(2999), tel.MilliVolts[2])
	assert.InDelta(t, 40000*509.3140064/65536-280.2308787, tel.Celsius[0], 1e-9)
	assert.InDelta(t, 509.3140064/2-280.2308787, tel.Celsius[1], 1e-9)
	assert.Equal(t, 1500*physic.MilliVolt, tel.Voltages()[1])
	assert.Less(t, tel.Celsius[2], 0.0)
}

func TestClassifyUnknown(t *testing.T) {
	b := make([]byte, fpgaio.ReadSize)
	b[0] = 0x42
	assert.Equal(t, fpgaio.Unknown{Tag: 0x42}, fpgaio.Classify(frameOf(b)))
}

func TestBuildWorkFrame(t *testing.T) {
	w := testWork(t)
	f := fpgaio.BuildWorkFrame(w)

	assert.Equal(t, w.Data[0:3], f[0:3])
	assert.Equal(t, w.Data[8:180], f[3:175])
}

func TestWorkFrameRoundTrip(t *testing.T) {
	w := testWork(t)
	f := fpgaio.BuildWorkFrame(w)

	var prefix [3]byte
	copy(prefix[:], f[:3])
	rsp := fpgaio.Classify(frameOf(fpgaiotest.NonceFrame(fpgaio.TAG_NONCE, 0, 42, prefix)))
	r, ok := rsp.(fpgaio.NonceResult)
	require.True(t, ok)
	assert.True(t, fpgaio.IsCurrentWork(r, w))

	other := testWork(t)
	other.Data[1] ^= 0xff
	assert.False(t, fpgaio.IsCurrentWork(r, other))
}

func TestAssembleNonce(t *testing.T) {
	w := testWork(t)
	w.Data[0], w.Data[1], w.Data[2], w.Data[3] = 0x01, 0x02, 0x03, 0x04

	assert.Equal(t, uint64(0x0000000512345678), fpgaio.AssembleNonce(5, 0x12345678, w, 8))
	// low 3 bytes of the little-endian nonce2, byte swapped into the top word
	assert.Equal(t, uint64(0x0102030512345678), fpgaio.AssembleNonce(5, 0x12345678, w, 9))
	assert.Equal(t, uint64(0x7856341205000000), fpgaio.SubmitNonce(0x0000000512345678))
}

func TestClockFrame(t *testing.T) {
	units, err := fpgaio.ClockUnits(400)
	require.NoError(t, err)
	assert.Equal(t, 160, units)

	f := fpgaio.BuildClockFrame(units)
	assert.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0xaa, 0x12, 0x08, 0x00, 0x85, 0x00, 0xc3, 0x00, 0x00, 0xbb, 0xbb, 0xbb, 0xbb}, f[:16])
	assert.Equal(t, make([]byte, fpgaio.WriteSize-16), f[16:])

	f = fpgaio.BuildClockFrame(fpgaio.DefaultClockUnits)
	assert.Equal(t, byte(0x12), f[4])
	assert.Equal(t, byte(0x08), f[5])

	units, _ = fpgaio.ClockUnits(790)
	f = fpgaio.BuildClockFrame(units)
	assert.Equal(t, []byte{0x13, 0xd0, 0x01, 0x02}, f[4:8])

	_, err = fpgaio.ClockUnits(850)
	assert.Error(t, err)
	_, err = fpgaio.ClockUnits(399)
	assert.Error(t, err)
}
