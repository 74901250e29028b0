package core

import (
	"github.com/cockroachdb/errors"
	"github.com/petermattis/goid"
)

// txnState is shared by a Transaction and every view created with Extend.
// Only the owning goroutine touches closed and views.
type txnState struct {
	lock   *SchedulerLock
	owner  int64
	closed bool
	views  []*Transaction
}

// Transaction is exclusive access to a PriorityQueue. It holds the queue's
// lock from BeginTransaction until Close.
//
// Notifications for pushed entries are deferred: Close releases the lock
// first and only then runs the insertion callback, once per successful Push.
// A Transaction is bound to the goroutine that began it.
type Transaction struct {
	queue     *PriorityQueue
	state     *txnState
	numPushed int
}

func newTransaction(q *PriorityQueue) *Transaction {
	t := &Transaction{queue: q}
	t.state = &txnState{
		lock:  q.lock,
		owner: goid.Get(),
		views: []*Transaction{t},
	}
	return t
}

func (t *Transaction) check() error {
	if goid.Get() != t.state.owner {
		return ErrWrongGoroutine
	}
	if t.state.closed {
		return ErrTransactionClosed
	}
	return nil
}

func (t *Transaction) mustCheck(op string) {
	if err := t.check(); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "Transaction.%s", op))
	}
}

// Push inserts entry. The insertion callback fires when the transaction closes.
func (t *Transaction) Push(entry SequenceAndSortKey) error {
	if err := t.check(); err != nil {
		return err
	}
	if entry.IsNull() {
		return ErrNilSequence
	}
	t.queue.pushLocked(entry)
	t.numPushed++
	return nil
}

// Peek returns the entry that Pop would remove, or false when the queue is empty.
func (t *Transaction) Peek() (SequenceAndSortKey, bool) {
	t.mustCheck("Peek")
	return t.queue.peekLocked()
}

// Pop removes and returns the highest-priority entry.
func (t *Transaction) Pop() (SequenceAndSortKey, error) {
	if err := t.check(); err != nil {
		return SequenceAndSortKey{}, err
	}
	if t.queue.lenLocked() == 0 {
		return SequenceAndSortKey{}, ErrQueueEmpty
	}
	return t.queue.popLocked(), nil
}

// Len returns the number of entries in the queue.
func (t *Transaction) Len() int {
	t.mustCheck("Len")
	return t.queue.lenLocked()
}

// IsEmpty reports whether the queue has no entries.
func (t *Transaction) IsEmpty() bool {
	return t.Len() == 0
}

// Clear removes every entry and returns them. No notifications are sent.
func (t *Transaction) Clear() []SequenceAndSortKey {
	t.mustCheck("Clear")
	return t.queue.clearLocked()
}

// Extend returns a view of q inside this transaction's critical section.
// q must share this transaction's lock. Pushes made through the view notify
// q's callback when the transaction closes.
func (t *Transaction) Extend(q *PriorityQueue) (*Transaction, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if q == nil || q.lock != t.state.lock {
		return nil, ErrLockNotShared
	}
	for _, v := range t.state.views {
		if v.queue == q {
			return v, nil
		}
	}
	v := &Transaction{queue: q, state: t.state}
	t.state.views = append(t.state.views, v)
	return v, nil
}

// Close releases the lock and then notifies each queue once per entry pushed
// through this transaction or its views. Closing twice is a no-op. Closing
// from another goroutine panics.
//
// A panicking callback does not suppress the remaining notifications: every
// one still fires, and the first panic is re-raised once they have.
func (t *Transaction) Close() {
	if goid.Get() != t.state.owner {
		panic(errors.NewAssertionErrorWithWrappedErrf(ErrWrongGoroutine, "Transaction.Close"))
	}
	if t.state.closed {
		return
	}
	t.state.closed = true
	views := t.state.views
	t.state.views = nil
	t.state.lock.unlock()

	var first any
	for _, v := range views {
		n := v.numPushed
		v.numPushed = 0
		for range n {
			if p := callRecovering(v.queue.onPush); p != nil && first == nil {
				first = p
			}
		}
	}
	if first != nil {
		panic(first)
	}
}

func callRecovering(fn func()) (p any) {
	defer func() { p = recover() }()
	fn()
	return nil
}
