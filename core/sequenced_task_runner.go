package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// SequencedTaskRunner posts tasks into a single Sequence, so they run one at a
// time in posting order while the sequence competes with others by priority.
type SequencedTaskRunner struct {
	threadPool   ThreadPool
	sequence     *Sequence
	runningCount int32        // atomic guard for concurrency assertion
	pending      atomic.Int64 // posted but not yet finished
	closed       atomic.Bool
}

func NewSequencedTaskRunner(threadPool ThreadPool) *SequencedTaskRunner {
	return NewSequencedTaskRunnerWithTraits(threadPool, DefaultTaskTraits())
}

func NewSequencedTaskRunnerWithTraits(threadPool ThreadPool, traits TaskTraits) *SequencedTaskRunner {
	r := &SequencedTaskRunner{threadPool: threadPool}
	// Tasks dropped by a scheduler shutdown never run; stop waiting for them.
	r.sequence = NewSequenceWithDropHandler(traits, func(n int) {
		r.pending.Add(-int64(n))
	})
	return r
}

// Sequence returns the sequence backing this runner.
func (r *SequencedTaskRunner) Sequence() *Sequence { return r.sequence }

// PostTask submits task (using the runner's default traits)
func (r *SequencedTaskRunner) PostTask(task Task) {
	r.PostTaskWithTraits(task, r.sequence.Traits())
}

// PostTaskWithTraits submits task with traits. The traits' priority decides
// when the sequence is picked while this task is at its front.
func (r *SequencedTaskRunner) PostTaskWithTraits(task Task, traits TaskTraits) {
	if r.closed.Load() {
		return
	}
	r.pending.Add(1)
	if err := r.threadPool.PostToSequence(r.sequence, r.wrap(task), traits); err != nil {
		r.pending.Add(-1)
	}
}

func (r *SequencedTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	r.PostDelayedTaskWithTraits(task, delay, r.sequence.Traits())
}

func (r *SequencedTaskRunner) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	if r.closed.Load() {
		return
	}
	r.threadPool.PostDelayedInternal(task, delay, traits, r)
}

func (r *SequencedTaskRunner) wrap(task Task) Task {
	return func(ctx context.Context) {
		defer r.pending.Add(-1)

		// Assertion: Ensure strictly one goroutine at a time
		if n := atomic.AddInt32(&r.runningCount, 1); n > 1 {
			panic(fmt.Sprintf("SequencedTaskRunner: concurrent execution detected (count=%d)", n))
		}
		defer atomic.AddInt32(&r.runningCount, -1)

		if r.closed.Load() {
			return
		}
		task(context.WithValue(ctx, taskRunnerKey, r))
	}
}

// GetRunningCount returns how many tasks of this runner are executing (0 or 1).
func (r *SequencedTaskRunner) GetRunningCount() int32 {
	return atomic.LoadInt32(&r.runningCount)
}

// PendingTaskCount returns tasks posted but not yet finished.
func (r *SequencedTaskRunner) PendingTaskCount() int {
	return int(r.pending.Load())
}

// WaitIdle blocks until every posted task has finished or ctx is done.
// Delayed tasks count only once they are due and posted.
func (r *SequencedTaskRunner) WaitIdle(ctx context.Context) error {
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

// =============================================================================
// Repeating Task Implementation
// =============================================================================

// RepeatingTaskHandle controls the lifecycle of a repeating task
type RepeatingTaskHandle interface {
	Stop()
	IsStopped() bool
}

type repeatingTaskHandle struct {
	task     Task
	interval time.Duration
	traits   TaskTraits
	stopped  atomic.Bool
}

func (h *repeatingTaskHandle) Stop() {
	h.stopped.Store(true)
}

func (h *repeatingTaskHandle) IsStopped() bool {
	return h.stopped.Load()
}

// createRepeatingTask creates a self-scheduling repeating task
func (h *repeatingTaskHandle) createRepeatingTask() Task {
	return func(ctx context.Context) {
		if h.IsStopped() {
			return
		}
		h.task(ctx)

		runner := GetCurrentTaskRunner(ctx)
		if h.IsStopped() || runner == nil {
			return
		}
		if c, ok := runner.(interface{ IsClosed() bool }); ok && c.IsClosed() {
			return
		}
		runner.PostDelayedTaskWithTraits(h.createRepeatingTask(), h.interval, h.traits)
	}
}

// PostRepeatingTask submits a task that repeats at a fixed interval
func (r *SequencedTaskRunner) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return r.PostRepeatingTaskWithInitialDelay(task, 0, interval, r.sequence.Traits())
}

// PostRepeatingTaskWithInitialDelay submits a repeating task with an initial delay
// The task will first execute after initialDelay, then repeat every interval.
func (r *SequencedTaskRunner) PostRepeatingTaskWithInitialDelay(
	task Task,
	initialDelay, interval time.Duration,
	traits TaskTraits,
) RepeatingTaskHandle {
	return postRepeatingTask(r, task, initialDelay, interval, traits)
}

// postRepeatingTask starts a repeating task on runner. Each run reposts the
// next one with a delay, stopping once the handle or the runner is closed.
func postRepeatingTask(
	runner TaskRunner,
	task Task,
	initialDelay, interval time.Duration,
	traits TaskTraits,
) RepeatingTaskHandle {
	handle := &repeatingTaskHandle{
		task:     task,
		interval: interval,
		traits:   traits,
	}

	repeatingTask := handle.createRepeatingTask()
	if initialDelay > 0 {
		runner.PostDelayedTaskWithTraits(repeatingTask, initialDelay, traits)
	} else {
		runner.PostTaskWithTraits(repeatingTask, traits)
	}
	return handle
}

// =============================================================================
// Shutdown and Lifecycle Management
// =============================================================================

// Shutdown stops the runner from accepting tasks. Tasks already queued are
// skipped when their turn comes; a running task is not interrupted.
func (r *SequencedTaskRunner) Shutdown() {
	r.closed.Store(true)
}

// IsClosed returns true if the runner has been shut down.
func (r *SequencedTaskRunner) IsClosed() bool {
	return r.closed.Load()
}
