package job

import (
	"errors"
	"sync"

	"vcu_miner/log"
	"vcu_miner/util"
)

// JobQ is a FIFO of works waiting for a device. Works pushed by the pool
// layer are handed out first; Fallback fills in when the queue is empty.
type JobQ struct {
	queue    []*Work
	mx       sync.Mutex
	Created  int
	Fallback interface{ Next() *Work }
}

func (q *JobQ) Enqueue(w *Work) {
	q.mx.Lock()
	defer q.mx.Unlock()
	w.NotifyJobTS = util.NowInSec()
	q.queue = append(q.queue, w)
	q.Created++
}

var ErrEmptyJobQ = errors.New("empty jobQ")

func (q *JobQ) Dequeue() (*Work, error) {
	q.mx.Lock()
	defer q.mx.Unlock()

	if len(q.queue) == 0 {
		return nil, ErrEmptyJobQ
	}
	w := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	log.Debugf("dequeue work %s, %d left", w.JobID, len(q.queue))
	return w, nil
}

func (q *JobQ) ClearQ() int {
	q.mx.Lock()
	defer q.mx.Unlock()

	n := len(q.queue)
	q.queue = nil
	return n
}

func (q *JobQ) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.queue)
}

// Next dequeues a work, falling back to Fallback when none is queued.
func (q *JobQ) Next() *Work {
	if w, err := q.Dequeue(); err == nil {
		return w
	}
	if q.Fallback == nil {
		return nil
	}
	return q.Fallback.Next()
}
