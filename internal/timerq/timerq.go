// Package timerq implements the ordered delay queue that drives the
// load generator's cooperative run loop. All scheduled actions execute
// synchronously inside RunReady; the queue itself never spawns
// goroutines and is not safe for concurrent use.
package timerq

import (
	"container/heap"
	"time"
)

// Token identifies a scheduled entry for cancellation.
type Token uint64

// entry is a single scheduled callback.
type entry struct {
	due      time.Time
	priority int
	seq      uint64 // insertion order, final tie-break
	action   func()
	token    Token
	index    int // position in the heap, maintained by heap.Interface
}

// Queue is a min-heap of entries ordered by due time, then priority,
// then insertion order.
type Queue struct {
	now     func() time.Time
	entries entryHeap
	pending map[Token]*entry
	nextID  uint64
}

// New creates a queue using the wall clock.
func New() *Queue {
	return NewWithClock(time.Now)
}

// NewWithClock creates a queue with an injectable clock.
func NewWithClock(now func() time.Time) *Queue {
	return &Queue{
		now:     now,
		pending: make(map[Token]*entry),
	}
}

// Schedule inserts an action due at now+delay. Negative delays are
// clamped to zero. The returned token can be passed to Cancel while
// the entry is still pending.
func (q *Queue) Schedule(delay time.Duration, priority int, action func()) Token {
	if delay < 0 {
		delay = 0
	}
	q.nextID++
	e := &entry{
		due:      q.now().Add(delay),
		priority: priority,
		seq:      q.nextID,
		action:   action,
		token:    Token(q.nextID),
	}
	heap.Push(&q.entries, e)
	q.pending[e.token] = e
	return e.token
}

// Cancel removes a still-pending entry. It returns false if the entry
// already ran, was already cancelled, or was never scheduled. An entry
// collected by an in-progress RunReady drain but not yet executed can
// still be cancelled.
func (q *Queue) Cancel(t Token) bool {
	e, ok := q.pending[t]
	if !ok {
		return false
	}
	if e.index >= 0 {
		heap.Remove(&q.entries, e.index)
	}
	delete(q.pending, t)
	return true
}

// NextDelay returns the time remaining until the earliest pending entry
// is due, clamped to zero if it is already overdue. ok is false when
// the queue is empty.
func (q *Queue) NextDelay() (d time.Duration, ok bool) {
	if q.entries.Len() == 0 {
		return 0, false
	}
	d = q.entries[0].due.Sub(q.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return q.entries.Len()
}

// RunReady pops and invokes every entry due at or before a single clock
// sample taken when the call starts. The due entries are collected
// before any action runs, so entries scheduled by the actions
// themselves wait for the next call even when they are due
// immediately. This keeps a self-re-arming action from turning the
// drain into an unbounded loop.
func (q *Queue) RunReady() {
	now := q.now()

	var ready []*entry
	for q.entries.Len() > 0 && !q.entries[0].due.After(now) {
		ready = append(ready, heap.Pop(&q.entries).(*entry))
	}

	for _, e := range ready {
		if _, ok := q.pending[e.token]; !ok {
			// Cancelled by an earlier action in this drain.
			continue
		}
		delete(q.pending, e.token)
		e.action()
	}
}

// entryHeap implements heap.Interface.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
