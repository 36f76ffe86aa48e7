package fpgaio

import "fmt"

const (
	ClockMinMHz = 400
	ClockMaxMHz = 800

	// DefaultClockUnits is 175 MHz in 2.5 MHz units.
	DefaultClockUnits = 70
)

type pllSetting struct {
	mhz  int
	regs [8]byte
}

// pllTable holds the PLL register bytes for each 25 MHz step. A request
// selects the highest step not above it.
var pllTable = []pllSetting{
	{400, [8]byte{0x12, 0x08, 0x00, 0x85, 0x00, 0xc3, 0x00, 0x00}},
	{425, [8]byte{0x12, 0x09, 0x00, 0x8e, 0x00, 0xc3, 0x00, 0x00}},
	{450, [8]byte{0x12, 0x49, 0x00, 0x96, 0x00, 0xc3, 0x00, 0x00}},
	{475, [8]byte{0x12, 0x4a, 0x00, 0x9e, 0x00, 0xc3, 0x00, 0x00}},
	{500, [8]byte{0x12, 0x8a, 0x00, 0xa7, 0x00, 0xc3, 0x00, 0x00}},
	{525, [8]byte{0x12, 0x8b, 0x00, 0xaf, 0x00, 0xc3, 0x00, 0x00}},
	{550, [8]byte{0x12, 0xcb, 0x00, 0xb7, 0x00, 0xc3, 0x00, 0x00}},
	{575, [8]byte{0x12, 0xcc, 0x00, 0xc0, 0x00, 0xc3, 0x00, 0x00}},
	{600, [8]byte{0x13, 0x0c, 0x00, 0xc8, 0x00, 0xc3, 0x00, 0x00}},
	{625, [8]byte{0x13, 0x0d, 0x00, 0xd0, 0x00, 0xc3, 0x00, 0x00}},
	{650, [8]byte{0x13, 0x4d, 0x00, 0xd9, 0x00, 0xc3, 0x00, 0x00}},
	{675, [8]byte{0x13, 0x4e, 0x00, 0xe1, 0x00, 0xc3, 0x00, 0x00}},
	{700, [8]byte{0x13, 0x8e, 0x00, 0xe9, 0x00, 0xc3, 0x00, 0x00}},
	{725, [8]byte{0x13, 0x8f, 0x00, 0xf2, 0x00, 0xc3, 0x00, 0x00}},
	{750, [8]byte{0x13, 0xcf, 0x00, 0xfa, 0x00, 0xc3, 0x00, 0x00}},
	{775, [8]byte{0x13, 0xd0, 0x01, 0x02, 0x00, 0xc3, 0x00, 0x00}},
	{800, [8]byte{0x14, 0x10, 0x01, 0x0b, 0x00, 0xc3, 0x00, 0x00}},
	{825, [8]byte{0x14, 0x11, 0x01, 0x13, 0x01, 0x86, 0x00, 0x40}},
	{850, [8]byte{0x14, 0x51, 0x01, 0x1b, 0x01, 0x86, 0x00, 0x40}},
	{875, [8]byte{0x14, 0x52, 0x01, 0x24, 0x01, 0x86, 0x00, 0x40}},
	{900, [8]byte{0x14, 0x92, 0x01, 0x2c, 0x01, 0x86, 0x00, 0x40}},
	{925, [8]byte{0x14, 0x93, 0x01, 0x34, 0x01, 0x86, 0x00, 0x40}},
	{950, [8]byte{0x14, 0xd3, 0x01, 0x3d, 0x01, 0x86, 0x00, 0x40}},
	{975, [8]byte{0x14, 0xd4, 0x01, 0x45, 0x01, 0x86, 0x00, 0x40}},
	{1000, [8]byte{0x15, 0x14, 0x01, 0x4d, 0x01, 0x86, 0x00, 0x40}},
}

// ClockUnits converts a MHz option into 2.5 MHz units.
func ClockUnits(mhz int) (int, error) {
	if mhz < ClockMinMHz || mhz > ClockMaxMHz {
		return 0, fmt.Errorf("clock %d MHz must be between %d and %d", mhz, ClockMinMHz, ClockMaxMHz)
	}
	return mhz * 2 / 5, nil
}

func UnitsToMHz(units int) int {
	return units * 5 / 2
}

func pllFor(mhz int) pllSetting {
	sel := pllTable[0]
	for _, s := range pllTable {
		if mhz < s.mhz {
			break
		}
		sel = s
	}
	return sel
}

// BuildClockFrame is the PLL command: four 0xaa, the register bytes, four
// 0xbb, zero padding.
func BuildClockFrame(units int) [WriteSize]byte {
	var buf [WriteSize]byte
	s := pllFor(UnitsToMHz(units))
	copy(buf[0:4], []byte{0xaa, 0xaa, 0xaa, 0xaa})
	copy(buf[4:12], s.regs[:])
	copy(buf[12:16], []byte{0xbb, 0xbb, 0xbb, 0xbb})
	return buf
}
