package core

import (
	"container/heap"
	"sync"
)

// SchedulerLock is the mutex guarding one PriorityQueue, or a chain of queues
// built with NewPriorityQueueWithPredecessor. Queues hold it by pointer; the
// handle is shared, never looked up by name.
type SchedulerLock struct {
	mu sync.Mutex
}

func (l *SchedulerLock) lock()   { l.mu.Lock() }
func (l *SchedulerLock) unlock() { l.mu.Unlock() }

// =============================================================================
// sequenceHeap: max-heap of SequenceAndSortKey, highest SortKey at index 0
// =============================================================================

type sequenceHeap []SequenceAndSortKey

func (h sequenceHeap) Len() int { return len(h) }

// Less puts the entry that must be selected first at the root.
func (h sequenceHeap) Less(i, j int) bool {
	return h[j].SortKey.Less(h[i].SortKey)
}

func (h sequenceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sequenceHeap) Push(x any) {
	*h = append(*h, x.(SequenceAndSortKey))
}

func (h *sequenceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = SequenceAndSortKey{} // Avoid memory leak
	*h = old[0 : n-1]
	return item
}

// PriorityQueue orders Sequences by SortKey. All access goes through a
// Transaction obtained from BeginTransaction.
//
// onPush runs once per successful Transaction.Push, after the transaction has
// released the lock. It may be called from any goroutine and may begin a new
// transaction on this queue.
type PriorityQueue struct {
	lock   *SchedulerLock
	onPush func()

	// guarded by lock
	container sequenceHeap
}

// NewPriorityQueue creates a queue with its own lock. onPush must not be nil.
func NewPriorityQueue(onPush func()) *PriorityQueue {
	mustf(onPush != nil, "NewPriorityQueue: nil insertion callback")
	return &PriorityQueue{
		lock:      &SchedulerLock{},
		onPush:    onPush,
		container: make(sequenceHeap, 0, defaultQueueCap),
	}
}

// NewPriorityQueueWithPredecessor creates a queue that shares predecessor's
// lock, so one Transaction can mutate both atomically (see Transaction.Extend).
// The predecessor must already exist, which keeps the sharing relation acyclic.
func NewPriorityQueueWithPredecessor(onPush func(), predecessor *PriorityQueue) *PriorityQueue {
	mustf(onPush != nil, "NewPriorityQueueWithPredecessor: nil insertion callback")
	mustf(predecessor != nil, "NewPriorityQueueWithPredecessor: nil predecessor")
	return &PriorityQueue{
		lock:      predecessor.lock,
		onPush:    onPush,
		container: make(sequenceHeap, 0, defaultQueueCap),
	}
}

// BeginTransaction blocks until the queue's lock is held and returns a
// Transaction owning it. The caller must Close the transaction on the same
// goroutine.
func (q *PriorityQueue) BeginTransaction() *Transaction {
	q.lock.lock()
	return newTransaction(q)
}

// SharesLockWith reports whether q and other are guarded by the same lock.
func (q *PriorityQueue) SharesLockWith(other *PriorityQueue) bool {
	return other != nil && q.lock == other.lock
}

// The methods below require q.lock to be held.

func (q *PriorityQueue) pushLocked(entry SequenceAndSortKey) {
	heap.Push(&q.container, entry)
}

func (q *PriorityQueue) peekLocked() (SequenceAndSortKey, bool) {
	if len(q.container) == 0 {
		return SequenceAndSortKey{}, false
	}
	return q.container[0], true
}

func (q *PriorityQueue) popLocked() SequenceAndSortKey {
	return heap.Pop(&q.container).(SequenceAndSortKey)
}

func (q *PriorityQueue) lenLocked() int {
	return len(q.container)
}

func (q *PriorityQueue) clearLocked() []SequenceAndSortKey {
	drained := q.container
	q.container = make(sequenceHeap, 0, defaultQueueCap)
	return drained
}
