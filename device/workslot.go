package device

import (
	"context"
	"sync"

	"vcu_miner/job"
	"vcu_miner/log"
)

// WorkSource hands out fresh work. It is shared by all device goroutines.
type WorkSource interface {
	Next() *job.Work
}

// WorkSlot holds the work a device is scanning and the cancel hook for its
// in-flight read.
type WorkSlot struct {
	mx       sync.Mutex
	current  *job.Work
	restart  bool
	cancel   context.CancelFunc
	issued   uint64
	restarts uint64
}

// Work returns the work to scan next. fresh is set when it was just taken
// from source because there was none, a restart was requested, or the
// previous work was abandoned.
func (my *WorkSlot) Work(source WorkSource) (w *job.Work, fresh bool) {
	my.mx.Lock()
	defer my.mx.Unlock()

	if my.current != nil && !my.restart && !my.current.Abandoned() {
		return my.current, false
	}
	my.restart = false
	my.current = source.Next()
	if my.current == nil {
		return nil, false
	}
	my.issued++
	log.Debugf("new work %s", my.current.JobID)
	return my.current, true
}

// ScanContext derives the context for one scan. A restart arriving before
// or during the scan cancels it.
func (my *WorkSlot) ScanContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	my.mx.Lock()
	my.cancel = cancel
	if my.restart {
		cancel()
	}
	my.mx.Unlock()

	return ctx, func() {
		my.mx.Lock()
		my.cancel = nil
		my.mx.Unlock()
		cancel()
	}
}

func (my *WorkSlot) Restart() {
	my.mx.Lock()
	defer my.mx.Unlock()
	my.restart = true
	my.restarts++
	if my.cancel != nil {
		my.cancel()
	}
}

// Invalidate drops the current work so the next scan starts on new work.
func (my *WorkSlot) Invalidate() {
	my.mx.Lock()
	my.current = nil
	my.mx.Unlock()
}

func (my *WorkSlot) Current() *job.Work {
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.current
}

func (my *WorkSlot) Counts() (issued, restarts uint64) {
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.issued, my.restarts
}
