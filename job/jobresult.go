package job

import (
	"fmt"
)

// JobResult is a nonce the device found for a Work.
type JobResult struct {
	DevID uint
	Core  uint8
	JobID string
	// Nonce is the 64-bit value in submission byte order.
	Nonce uint64
	// DeviceNonce is the 4-byte counter as it came off the wire.
	DeviceNonce uint32
	TS          float64
}

func (r *JobResult) String() string {
	return fmt.Sprintf("dev %d core %d job %s nonce %016x", r.DevID, r.Core, r.JobID, r.Nonce)
}

func (r *JobResult) IsDuplicate(r2 *JobResult) bool {
	return r.Nonce == r2.Nonce && r.JobID == r2.JobID
}
