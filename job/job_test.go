package job

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func template() []byte {
	b := make([]byte, WorkDataSize)
	for i := range b {
		b[i] = byte(0xf0 ^ i)
	}
	return b
}

func TestNewWork(t *testing.T) {
	_, err := NewWork("short", make([]byte, 10))
	assert.Error(t, err)

	w, err := NewWork("j", template())
	require.NoError(t, err)
	assert.Equal(t, [PrefixSize]byte{0xf0, 0xf1, 0xf2}, w.Prefix())
	assert.Equal(t, uint32(0xf3f2f1f0), w.Nonce2())
	assert.False(t, w.Abandoned())

	w.Abandon()
	assert.True(t, w.Abandoned())
	assert.Equal(t, NonceAbandon, w.Nonce())
}

func TestJobQ(t *testing.T) {
	var q JobQ
	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrEmptyJobQ)

	for i := 0; i < 3; i++ {
		w, _ := NewWork(strings.Repeat("x", i+1), template())
		q.Enqueue(w)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Created)

	w, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "x", w.JobID)
	assert.NotZero(t, w.NotifyJobTS)
	assert.Equal(t, 2, q.ClearQ())
	assert.Equal(t, 0, q.Len())
}

func TestJobQNextFallsBack(t *testing.T) {
	var q JobQ
	assert.Nil(t, q.Next())

	g, err := NewGenerator("gen", template(), 0)
	require.NoError(t, err)
	q.Fallback = g

	pushed, _ := NewWork("pushed", template())
	q.Enqueue(pushed)
	assert.Same(t, pushed, q.Next())
	assert.Equal(t, "gen-000000", q.Next().JobID)
	assert.Equal(t, uint64(1), g.Issued())
}

func TestGeneratorPrefixes(t *testing.T) {
	g, err := NewGenerator("vcu", template(), 0xfffffe)
	require.NoError(t, err)

	w1 := g.Next()
	w2 := g.Next()
	w3 := g.Next()
	assert.Equal(t, [PrefixSize]byte{0xff, 0xff, 0xfe}, w1.Prefix())
	assert.Equal(t, [PrefixSize]byte{0xff, 0xff, 0xff}, w2.Prefix())
	assert.Equal(t, [PrefixSize]byte{0x00, 0x00, 0x00}, w3.Prefix())
	assert.Equal(t, "vcu-fffffe", w1.JobID)
	assert.Equal(t, template()[PrefixSize:], w1.Data[PrefixSize:])
	assert.Equal(t, uint64(3), g.Issued())
}

func TestGeneratorConcurrent(t *testing.T) {
	g, err := NewGenerator("vcu", template(), 0)
	require.NoError(t, err)

	var mx sync.Mutex
	seen := map[[PrefixSize]byte]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p := g.Next().Prefix()
				mx.Lock()
				seen[p] = true
				mx.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestGeneratorHex(t *testing.T) {
	_, err := NewGeneratorHex("bad", "zz", 0)
	assert.Error(t, err)

	hexStr := strings.Repeat("ab", WorkDataSize)
	g, err := NewGeneratorHex("ok", hexStr[:100]+"\n  "+hexStr[100:], 5)
	require.NoError(t, err)
	w := g.Next()
	assert.Equal(t, [PrefixSize]byte{0, 0, 5}, w.Prefix())
	assert.Equal(t, byte(0xab), w.Data[WorkDataSize-1])
}

func TestMovingWindow(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewMovingWindow(time.Minute)

	w.Update(DataPoint{t0, 600})
	w.Update(DataPoint{t0.Add(30 * time.Second), 600})
	assert.Equal(t, 20.0, w.Rate(t0.Add(time.Minute)))
	assert.Equal(t, 10.0, w.Rate(t0.Add(61*time.Second)))
	assert.Equal(t, 0.0, w.Rate(t0.Add(5*time.Minute)))
	assert.Empty(t, w.Values)
}

func TestHashStats(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHashStats(t0)

	for i := 1; i <= 10; i++ {
		h.Update(6000, i%2 == 0, t0.Add(time.Duration(i)*time.Second))
	}
	r := h.Rates(t0.Add(10 * time.Second))
	assert.Equal(t, uint64(60000), r.Total)
	assert.Equal(t, 6000.0, r.Avg)
	assert.Equal(t, 1000.0, r.Rate1m)
	assert.Equal(t, 200.0, r.Rate5m)
	assert.Equal(t, uint64(5), h.Estimates)
	assert.Equal(t, uint64(5), h.Nonces)
}

func TestResultQ(t *testing.T) {
	q := NewResultQ(2)
	r1 := &JobResult{DevID: 1, JobID: "a", Nonce: 10}
	require.NoError(t, q.Add(r1))
	assert.ErrorIs(t, q.Add(&JobResult{DevID: 1, JobID: "a", Nonce: 10}), ErrDuplicateResult)
	require.NoError(t, q.Add(&JobResult{DevID: 2, JobID: "a", Nonce: 10}))
	require.NoError(t, q.Add(&JobResult{DevID: 1, JobID: "b", Nonce: 11}))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(3), q.Accepted)
	assert.Equal(t, uint64(1), q.Dupes)
	assert.NotZero(t, r1.TS)

	got := q.Drain()
	assert.Len(t, got, 2)
	assert.Equal(t, 0, q.Len())
}
