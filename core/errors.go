package core

import "github.com/cockroachdb/errors"

var (
	// ErrNilSequence is returned when pushing an entry without a Sequence.
	ErrNilSequence = errors.New("priority queue: entry has no sequence")

	// ErrQueueEmpty is returned by Pop when nothing is queued.
	ErrQueueEmpty = errors.New("priority queue: pop on empty queue")

	// ErrTransactionClosed is returned when a closed transaction is used.
	ErrTransactionClosed = errors.New("priority queue: transaction already closed")

	// ErrWrongGoroutine is returned when a transaction is used off its creating goroutine.
	ErrWrongGoroutine = errors.New("priority queue: transaction used from another goroutine")

	// ErrLockNotShared is returned by Transaction.Extend for a queue with a different lock.
	ErrLockNotShared = errors.New("priority queue: queues do not share a lock")

	// ErrSchedulerShutdown is reported when work is posted after shutdown.
	ErrSchedulerShutdown = errors.New("task scheduler: shutting down")
)

// mustf panics with an assertion failure when cond does not hold.
func mustf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.AssertionFailedf(format, args...))
	}
}
