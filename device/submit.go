package device

import (
	"math/bits"

	"vcu_miner/job"
)

// VerifyFunc checks a nonce in submission order against its work. A false
// return is reported to the device as a hardware error.
type VerifyFunc func(w *job.Work, nonce uint64) bool

// resultSink is the per-device submitter handed to the controller.
type resultSink struct {
	devID   uint
	results *job.ResultQ
	verify  VerifyFunc
}

func (my *resultSink) SubmitNonce(w *job.Work, nonce uint64) error {
	if my.verify != nil && !my.verify(w, nonce) {
		return job.ErrHWError
	}
	n := bits.ReverseBytes64(nonce)
	return my.results.Add(&job.JobResult{
		DevID:       my.devID,
		Core:        uint8(n >> 32),
		JobID:       w.JobID,
		Nonce:       nonce,
		DeviceNonce: uint32(n),
	})
}
