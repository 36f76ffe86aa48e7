package job

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"vcu_miner/util"
)

const (
	// WorkDataSize is the size of the job buffer handed to the device. Only
	// bytes 0..2 and 8..179 are ever sent.
	WorkDataSize = 180
	PrefixSize   = 3

	// NonceAbandon written to Work.Nonce tells the scheduler to issue new
	// work on its next cycle.
	NonceAbandon uint32 = 0xffffffff
)

var ErrHWError = errors.New("hardware error")

// Work is the job buffer as the pool layer produced it. The controller treats
// Data as opaque apart from fixed offsets.
type Work struct {
	JobID  string
	PoolID uint
	Data   [WorkDataSize]byte

	nonce atomic.Uint32

	/* stats */
	NotifyJobTS float64
	ScanJobTS   float64
	DevID       uint
}

func NewWork(jobID string, data []byte) (*Work, error) {
	if len(data) < WorkDataSize {
		return nil, fmt.Errorf("work %s: %d bytes, need %d", jobID, len(data), WorkDataSize)
	}
	w := &Work{JobID: jobID, NotifyJobTS: util.NowInSec()}
	copy(w.Data[:], data)
	return w, nil
}

// Prefix returns the job-identifying bytes the device echoes back in its
// nonce responses.
func (w *Work) Prefix() [PrefixSize]byte {
	var p [PrefixSize]byte
	copy(p[:], w.Data[:PrefixSize])
	return p
}

// Nonce2 is the little-endian word at the start of the buffer, used when
// assembling the full nonce for large bitstreams.
func (w *Work) Nonce2() uint32 {
	return binary.LittleEndian.Uint32(w.Data[0:4])
}

func (w *Work) Abandon() {
	w.nonce.Store(NonceAbandon)
}

func (w *Work) Abandoned() bool {
	return w.nonce.Load() == NonceAbandon
}

func (w *Work) Nonce() uint32 {
	return w.nonce.Load()
}
