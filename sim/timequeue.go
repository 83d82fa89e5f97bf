package sim

import "container/heap"

// TimeQueue holds items keyed by the tick at which they become due. Ties
// are broken by insertion order so that two runs drain identical queues in
// identical order.
type TimeQueue[T any] struct {
	h timeHeap[T]
	// monotonically increasing sequence for stable ordering
	seq uint64
}

type timeItem[T any] struct {
	at    uint32
	seq   uint64
	value T
}

type timeHeap[T any] []timeItem[T]

func (h timeHeap[T]) Len() int { return len(h) }
func (h timeHeap[T]) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timeHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timeHeap[T]) Push(x any) { *h = append(*h, x.(timeItem[T])) }

func (h *timeHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func NewTimeQueue[T any]() *TimeQueue[T] {
	return &TimeQueue[T]{}
}

// Add schedules value to become due at tick at.
func (q *TimeQueue[T]) Add(at uint32, value T) {
	heap.Push(&q.h, timeItem[T]{at: at, seq: q.seq, value: value})
	q.seq++
}

// PopDue removes and returns all items due at or before now, in order.
func (q *TimeQueue[T]) PopDue(now uint32) []T {
	var due []T
	for len(q.h) > 0 && q.h[0].at <= now {
		it := heap.Pop(&q.h).(timeItem[T])
		due = append(due, it.value)
	}
	return due
}

// Len returns the number of scheduled items.
func (q *TimeQueue[T]) Len() int { return len(q.h) }

// NextTime returns the tick of the earliest scheduled item.
func (q *TimeQueue[T]) NextTime() (uint32, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].at, true
}
