package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// maxAllowedConcurrency is the maximum allowed value for maxConcurrency parameter.
	maxAllowedConcurrency = 10000
)

// ParallelTaskRunner runs up to maxConcurrency of its tasks at the same time.
//
// Pending tasks wait in the runner's own PriorityQueue, each wrapped in a
// one-off Sequence, so they are dispatched in SortKey order. The queue's
// insertion callback and every task completion try to dispatch more work; a
// dispatched task goes to the thread pool in a fresh Sequence of its own.
type ParallelTaskRunner struct {
	threadPool     ThreadPool
	queue          *PriorityQueue
	id             uuid.UUID
	traits         TaskTraits
	maxConcurrency int32

	running atomic.Int32 // only incremented under the queue lock
	pending atomic.Int64 // posted but not yet finished
	closed  atomic.Bool
}

// NewParallelTaskRunner creates a runner with the default traits.
// It panics if threadPool is nil or maxConcurrency is outside [1, 10000].
func NewParallelTaskRunner(threadPool ThreadPool, maxConcurrency int) *ParallelTaskRunner {
	return NewParallelTaskRunnerWithTraits(threadPool, maxConcurrency, DefaultTaskTraits())
}

// NewParallelTaskRunnerWithTraits creates a runner whose PostTask uses traits.
func NewParallelTaskRunnerWithTraits(threadPool ThreadPool, maxConcurrency int, traits TaskTraits) *ParallelTaskRunner {
	mustf(threadPool != nil, "NewParallelTaskRunner: nil thread pool")
	mustf(maxConcurrency >= 1 && maxConcurrency <= maxAllowedConcurrency,
		"NewParallelTaskRunner: maxConcurrency must be in [1, %d], got %d", maxAllowedConcurrency, maxConcurrency)

	r := &ParallelTaskRunner{
		threadPool:     threadPool,
		id:             uuid.New(),
		traits:         traits,
		maxConcurrency: int32(maxConcurrency),
	}
	r.queue = NewPriorityQueue(r.trySchedule)
	return r
}

var _ TaskRunner = (*ParallelTaskRunner)(nil)

// MaxConcurrency returns the maximum number of concurrent tasks.
func (r *ParallelTaskRunner) MaxConcurrency() int {
	return int(r.maxConcurrency)
}

// RunningTaskCount returns the number of dispatched tasks that have not finished.
func (r *ParallelTaskRunner) RunningTaskCount() int {
	return int(r.running.Load())
}

// PendingTaskCount returns tasks posted but not yet finished.
func (r *ParallelTaskRunner) PendingTaskCount() int {
	return int(r.pending.Load())
}

// QueuedTaskCount returns tasks still waiting for a concurrency slot.
func (r *ParallelTaskRunner) QueuedTaskCount() int {
	txn := r.queue.BeginTransaction()
	defer txn.Close()
	return txn.Len()
}

// Stats returns a snapshot of the runner. The name is its ID.
func (r *ParallelTaskRunner) Stats() RunnerStats {
	return RunnerStats{
		Name:     r.id.String(),
		Priority: r.traits.Priority,
		Pending:  r.PendingTaskCount(),
		Running:  r.RunningTaskCount(),
		Closed:   r.IsClosed(),
	}
}

func (r *ParallelTaskRunner) PostTask(task Task) {
	r.PostTaskWithTraits(task, r.traits)
}

// PostTaskWithTraits queues task. Among queued tasks, higher priorities are
// dispatched first and equal priorities in posting order.
func (r *ParallelTaskRunner) PostTaskWithTraits(task Task, traits TaskTraits) {
	if r.closed.Load() {
		return
	}
	seq := NewSequence(traits)
	seq.PushTask(task, traits)

	r.pending.Add(1)
	txn := r.queue.BeginTransaction()
	err := txn.Push(NewSequenceAndSortKey(seq))
	txn.Close()
	if err != nil {
		r.pending.Add(-1)
	}
}

func (r *ParallelTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	r.PostDelayedTaskWithTraits(task, delay, r.traits)
}

// PostDelayedTaskWithTraits posts task back to this runner once delay has elapsed.
func (r *ParallelTaskRunner) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	if r.closed.Load() {
		return
	}
	r.threadPool.PostDelayedInternal(task, delay, traits, r)
}

// PostRepeatingTask submits a task that repeats at a fixed interval.
func (r *ParallelTaskRunner) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return postRepeatingTask(r, task, 0, interval, r.traits)
}

// PostRepeatingTaskWithInitialDelay submits a repeating task with an initial delay.
func (r *ParallelTaskRunner) PostRepeatingTaskWithInitialDelay(
	task Task,
	initialDelay, interval time.Duration,
	traits TaskTraits,
) RepeatingTaskHandle {
	return postRepeatingTask(r, task, initialDelay, interval, traits)
}

// PostTaskAndReply runs task on this runner, then posts reply to replyRunner.
func (r *ParallelTaskRunner) PostTaskAndReply(task Task, reply Task, replyRunner TaskRunner) {
	postTaskAndReplyInternalWithTraits(r, task, r.traits, reply, r.traits, replyRunner)
}

// PostTaskAndReplyWithTraits allows different traits for the task and the reply.
func (r *ParallelTaskRunner) PostTaskAndReplyWithTraits(
	task Task,
	taskTraits TaskTraits,
	reply Task,
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	postTaskAndReplyInternalWithTraits(r, task, taskTraits, reply, replyTraits, replyRunner)
}

// trySchedule dispatches queued tasks while slots are free. It is the queue's
// insertion callback and also runs after every task completes.
func (r *ParallelTaskRunner) trySchedule() {
	for {
		item, ok := r.takeNext()
		if !ok {
			return
		}
		seq := NewSequenceWithDropHandler(item.Traits, r.onDropped)
		if err := r.threadPool.PostToSequence(seq, r.runLoop(item.Task), item.Traits); err != nil {
			r.release(1)
		}
	}
}

// takeNext pops the next task and claims a slot for it, or drains the queue
// once the runner is closed.
func (r *ParallelTaskRunner) takeNext() (TaskItem, bool) {
	txn := r.queue.BeginTransaction()
	defer txn.Close()

	if r.closed.Load() {
		r.pending.Add(-int64(len(txn.Clear())))
		return TaskItem{}, false
	}
	if r.running.Load() >= r.maxConcurrency {
		return TaskItem{}, false
	}
	entry, err := txn.Pop()
	if err != nil {
		return TaskItem{}, false
	}
	item, ok := entry.Sequence.TakeTask()
	if !ok {
		r.pending.Add(-1)
		return TaskItem{}, false
	}
	r.running.Add(1)
	return item, true
}

func (r *ParallelTaskRunner) release(n int) {
	r.running.Add(-int32(n))
	r.pending.Add(-int64(n))
}

// onDropped runs when the thread pool discards dispatched tasks unrun. The
// freed slots go to queued tasks, which the pool then rejects in turn.
func (r *ParallelTaskRunner) onDropped(n int) {
	r.release(n)
	r.trySchedule()
}

func (r *ParallelTaskRunner) runLoop(task Task) Task {
	return func(ctx context.Context) {
		defer r.onTaskComplete()
		if r.closed.Load() {
			return
		}
		task(context.WithValue(ctx, taskRunnerKey, r))
	}
}

func (r *ParallelTaskRunner) onTaskComplete() {
	r.release(1)
	r.trySchedule()
}

// WaitIdle blocks until every posted task has finished or ctx is done.
func (r *ParallelTaskRunner) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if r.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops the runner from accepting tasks and discards queued ones.
// Tasks already dispatched are skipped if they have not started; a running
// task is not interrupted.
func (r *ParallelTaskRunner) Shutdown() {
	r.closed.Store(true)
	r.trySchedule()
}

// IsClosed returns true if the runner has been shut down.
func (r *ParallelTaskRunner) IsClosed() bool {
	return r.closed.Load()
}
