package core

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// ThreadPool is what task runners need from an execution engine.
type ThreadPool interface {
	// PostInternal runs task as a one-off sequence.
	PostInternal(task Task, traits TaskTraits)
	// PostToSequence appends task to seq and schedules seq if it was idle.
	PostToSequence(seq *Sequence, task Task, traits TaskTraits) error
	// PostDelayedInternal posts task to target once delay has elapsed.
	PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner)
}

// TaskScheduler multiplexes Sequences over worker goroutines.
//
// Sequences with pending work wait in a PriorityQueue. The queue's insertion
// callback signals an idle worker; the worker takes the highest-priority
// sequence, runs its front task and hands the sequence back with DidRunTask,
// which re-enqueues it while it still has work.
type TaskScheduler struct {
	name        string
	queue       *PriorityQueue
	signal      chan struct{}
	workerCount int

	delayManager *DelayManager

	metricQueued int32 // Tasks waiting in sequences
	metricActive int32 // Taken by a worker, not yet returned via DidRunTask

	// Handlers and Metrics
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger

	// Lifecycle
	shuttingDown atomic.Bool
	cleared      bool // guarded by the queue lock
}

func NewTaskScheduler(workerCount int) *TaskScheduler {
	return NewTaskSchedulerWithConfig(workerCount, DefaultTaskSchedulerConfig())
}

func NewTaskSchedulerWithConfig(workerCount int, config *TaskSchedulerConfig) *TaskScheduler {
	mustf(workerCount > 0, "NewTaskScheduler: workerCount must be positive, got %d", workerCount)

	s := &TaskScheduler{
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
	}
	s.queue = NewPriorityQueue(s.wakeWorker)
	s.delayManager = NewDelayManager()

	// Apply config
	if config != nil {
		s.name = config.Name
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
		s.logger = config.Logger
	}

	// Use defaults if not provided
	if s.name == "" {
		s.name = "task-scheduler"
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: s.logger}
	}

	return s
}

// wakeWorker is the priority queue's insertion callback.
func (s *TaskScheduler) wakeWorker() {
	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full: enough wake-ups are already pending
	}
}

func (s *TaskScheduler) Name() string { return s.name }

// PostInternal runs task in a fresh single-task sequence.
func (s *TaskScheduler) PostInternal(task Task, traits TaskTraits) {
	_ = s.PostToSequence(NewSequence(traits), task, traits)
}

// PostToSequence appends task to seq. If seq had no pending work it is pushed
// into the priority queue with the task's SortKey.
func (s *TaskScheduler) PostToSequence(seq *Sequence, task Task, traits TaskTraits) error {
	if s.shuttingDown.Load() {
		s.reject("shutting down")
		return ErrSchedulerShutdown
	}

	atomic.AddInt32(&s.metricQueued, 1)
	if seq.PushTask(task, traits) {
		s.enqueue(seq)
	}
	return nil
}

// PostDelayedInternal
func (s *TaskScheduler) PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner) {
	if s.shuttingDown.Load() {
		s.reject("shutting down")
		return
	}
	s.delayManager.AddDelayedTask(task, delay, traits, target)
}

func (s *TaskScheduler) reject(reason string) {
	s.rejectedTaskHandler.HandleRejectedTask(s.name, reason)
	s.metrics.RecordTaskRejected(s.name, reason)
}

func (s *TaskScheduler) enqueue(seq *Sequence) {
	entry := NewSequenceAndSortKey(seq)

	txn := s.queue.BeginTransaction()
	if s.cleared {
		txn.Close()
		s.dropSequence(seq)
		return
	}
	err := txn.Push(entry)
	depth := txn.Len()
	txn.Close()

	if err != nil {
		s.logger.Error("failed to enqueue sequence", F("sequence", seq.ID()), F("error", err))
		return
	}
	s.metrics.RecordSequenceQueued(s.name, entry.SortKey.Priority)
	s.metrics.RecordQueueDepth(s.name, depth)
}

// dropSequence discards seq's tasks. Counting and clearing happen under one
// sequence lock, so the queued counter stays exact under concurrent posts.
func (s *TaskScheduler) dropSequence(seq *Sequence) {
	n := seq.drop()
	atomic.AddInt32(&s.metricQueued, -int32(n))
}

// takeSequence pops the highest-priority sequence, if any.
func (s *TaskScheduler) takeSequence() (*Sequence, int, bool) {
	txn := s.queue.BeginTransaction()
	defer txn.Close()

	if _, ok := txn.Peek(); !ok {
		return nil, 0, false
	}
	entry, err := txn.Pop()
	if err != nil {
		return nil, 0, false
	}
	return entry.Sequence, txn.Len(), true
}

// GetWork blocks until a sequence is available or stopCh closes. The caller
// runs the returned task and then calls DidRunTask(seq).
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (*Sequence, TaskItem, bool) {
	for {
		if seq, depth, ok := s.takeSequence(); ok {
			s.metrics.RecordQueueDepth(s.name, depth)
			if item, ok := seq.TakeTask(); ok {
				// Active before leaving Queued so drain checks never see both at zero
				atomic.AddInt32(&s.metricActive, 1)
				atomic.AddInt32(&s.metricQueued, -1)
				return seq, item, true
			}
			// Cleared by shutdown after it was queued
			continue
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, TaskItem{}, false
		}
	}
}

// DidRunTask retires seq's front task and re-enqueues seq if work remains.
// It must be called exactly once for every task returned by GetWork.
func (s *TaskScheduler) DidRunTask(seq *Sequence) {
	if seq.DidRunTask() {
		s.enqueue(seq)
	}
	atomic.AddInt32(&s.metricActive, -1)
}

func (s *TaskScheduler) clearQueue() {
	txn := s.queue.BeginTransaction()
	s.cleared = true
	drained := txn.Clear()
	txn.Close()

	for _, entry := range drained {
		s.dropSequence(entry.Sequence)
	}
	s.logger.Debug("scheduler queue cleared", F("scheduler", s.name), F("sequences", len(drained)))
}

func (s *TaskScheduler) Shutdown() {
	// 1. Mark as shutting down to stop accepting new tasks
	s.shuttingDown.Store(true)

	// 2. Stop DelayManager (no more new tasks generated)
	s.delayManager.Stop()

	// 3. Clear queue to release all task references
	s.clearQueue()
	s.logger.Info("scheduler shut down", F("scheduler", s.name))
}

// ShutdownGraceful waits for all queued and active tasks to complete
// Returns error if timeout is exceeded before tasks complete
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.shuttingDown.Store(true)
	s.delayManager.Stop()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			// Timeout exceeded, force clear remaining queues
			s.clearQueue()
			return errors.Newf("shutdown graceful timeout after %v, forced clearing", timeout)
		case <-ticker.C:
			if s.QueuedTaskCount() == 0 && s.ActiveTaskCount() == 0 {
				s.logger.Info("scheduler drained", F("scheduler", s.name))
				return nil
			}
		}
	}
}

func (s *TaskScheduler) IsShuttingDown() bool { return s.shuttingDown.Load() }

// Metrics
func (s *TaskScheduler) WorkerCount() int     { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *TaskScheduler) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }
func (s *TaskScheduler) DelayedTaskCount() int {
	return s.delayManager.TaskCount()
}

// QueuedSequenceCount returns the number of sequences waiting in the priority queue.
func (s *TaskScheduler) QueuedSequenceCount() int {
	txn := s.queue.BeginTransaction()
	defer txn.Close()
	return txn.Len()
}

func (s *TaskScheduler) GetPanicHandler() PanicHandler { return s.panicHandler }
func (s *TaskScheduler) GetMetrics() Metrics           { return s.metrics }
func (s *TaskScheduler) GetLogger() Logger             { return s.logger }
