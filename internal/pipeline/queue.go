package pipeline

import (
	"log/slog"
	"sync"

	"github.com/chaz8081/gostt-kiosk/internal/audio"
)

// item is either a segment or the stop sentinel.
type item struct {
	seg  audio.Segment
	stop bool
}

// Queue is the FIFO between the capture thread and the worker. Push never
// blocks. With max > 0 the queue is bounded and a full queue drops its
// oldest segment; with max <= 0 it grows without limit.
//
// The stop sentinel is always the last item: once PushStop is called,
// further segments are rejected.
type Queue struct {
	cond *sync.Cond

	mu      sync.Mutex
	items   []item
	max     int
	stopped bool
	dropped uint64
}

// NewQueue creates a Queue holding at most max segments (0 for unbounded).
func NewQueue(max int) *Queue {
	q := &Queue{max: max}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends seg. It returns false if seg was rejected because the queue
// is already stopped.
func (q *Queue) Push(seg audio.Segment) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		slog.Warn("segment pushed after stop, discarding", "seq", seg.Seq)
		return false
	}
	if q.max > 0 && len(q.items) >= q.max {
		old := q.items[0]
		q.items[0] = item{}
		q.items = q.items[1:]
		q.dropped++
		slog.Warn("segment queue full, dropping oldest",
			"dropped_seq", old.seg.Seq, "max", q.max, "total_dropped", q.dropped)
	}
	q.items = append(q.items, item{seg: seg})
	q.cond.Signal()
	return true
}

// PushStop appends the stop sentinel. Only the first call has an effect.
func (q *Queue) PushStop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.items = append(q.items, item{stop: true})
	q.cond.Signal()
}

// Pop blocks until an item is available. It returns ok == false when the
// stop sentinel is reached; every segment pushed before PushStop is
// returned first.
func (q *Queue) Pop() (seg audio.Segment, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}
	it := q.items[0]
	if it.stop {
		// Leave the sentinel in place so repeated Pops keep returning false.
		return audio.Segment{}, false
	}
	q.items[0] = item{}
	q.items = q.items[1:]
	return it.seg, true
}

// Len returns the number of queued segments, excluding the sentinel.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.stopped {
		n--
	}
	return n
}

// Dropped returns how many segments were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
