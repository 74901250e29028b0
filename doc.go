// Package taskscheduler provides a Chromium-inspired task scheduler for Go.
//
// Work is posted to TaskRunners. Each SequencedTaskRunner owns a Sequence: a
// FIFO of tasks that never run concurrently. Sequences with pending work wait in
// a PriorityQueue and are handed to worker goroutines by priority.
//
// # Quick Start
//
//	taskscheduler.InitGlobalThreadPool(4) // 4 workers
//	defer taskscheduler.ShutdownGlobalThreadPool()
//
//	runner := taskscheduler.CreateTaskRunner(core.DefaultTaskTraits())
//	runner.PostTask(func(ctx context.Context) {
//		// guaranteed sequential execution
//	})
//
// # Priority Queue
//
// The PriorityQueue is only reachable through a Transaction, which holds the
// queue's lock from BeginTransaction until Close:
//
//	txn := queue.BeginTransaction()
//	if entry, ok := txn.Peek(); ok {
//		_, _ = txn.Pop()
//		_ = entry
//	}
//	txn.Close()
//
// Entries are ordered by SortKey: higher TaskPriority first, then the earlier
// sequencing value. The queue's insertion callback runs once per Push, after
// Close has released the lock, so the callback may freely begin another
// transaction. Two queues built with NewPriorityQueueWithPredecessor share a
// lock; Transaction.Extend moves entries between them atomically.
package taskscheduler
