package job

import (
	"errors"
	"sync"

	"vcu_miner/log"
	"vcu_miner/util"
)

var ErrDuplicateResult = errors.New("ErrDuplicateResult")

// ResultQ collects nonces found by the devices for the pool layer.
type ResultQ struct {
	mx       sync.Mutex
	results  []*JobResult
	last     map[uint]*JobResult
	Accepted uint64
	Dupes    uint64
	Limit    int
}

func NewResultQ(limit int) *ResultQ {
	return &ResultQ{last: make(map[uint]*JobResult), Limit: limit}
}

func (q *ResultQ) Add(r *JobResult) error {
	q.mx.Lock()
	defer q.mx.Unlock()

	if prev, ok := q.last[r.DevID]; ok && r.IsDuplicate(prev) {
		q.Dupes++
		log.Infof("duplicate result %v", r)
		return ErrDuplicateResult
	}
	if r.TS == 0 {
		r.TS = util.NowInSec()
	}
	q.last[r.DevID] = r
	q.results = append(q.results, r)
	if q.Limit > 0 && len(q.results) > q.Limit {
		q.results = q.results[len(q.results)-q.Limit:]
	}
	q.Accepted++
	return nil
}

// Drain returns and forgets the collected results.
func (q *ResultQ) Drain() []*JobResult {
	q.mx.Lock()
	defer q.mx.Unlock()
	r := q.results
	q.results = nil
	return r
}

func (q *ResultQ) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.results)
}

func (q *ResultQ) Counts() (accepted, dupes uint64) {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.Accepted, q.Dupes
}
