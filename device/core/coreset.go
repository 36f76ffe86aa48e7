package core

import (
	"math/bits"
	"strings"
)

const MaxCores = 256

// CoreSet is a bitset over core indexes 0..MaxCores-1.
type CoreSet [MaxCores / 64]uint64

func (s *CoreSet) Has(core int) bool {
	if core < 0 || core >= MaxCores {
		return false
	}
	return s[core/64]&(1<<(uint(core)%64)) != 0
}

func (s *CoreSet) Set(core int) {
	if core < 0 || core >= MaxCores {
		return
	}
	s[core/64] |= 1 << (uint(core) % 64)
}

func (s *CoreSet) Clear(core int) {
	if core < 0 || core >= MaxCores {
		return
	}
	s[core/64] &^= 1 << (uint(core) % 64)
}

func (s *CoreSet) Count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// Bitmap renders the first n cores as '1' (enabled) or '0'.
func (s *CoreSet) Bitmap(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		if s.Has(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
