package taskscheduler

import "github.com/Swind/go-task-scheduler/core"

// Re-export commonly used types from core package for convenience.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskTraits defines task attributes (priority, blocking behavior, etc.)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// SequencedTaskRunner ensures sequential execution of tasks
type SequencedTaskRunner = core.SequencedTaskRunner

// ParallelTaskRunner runs a bounded number of tasks concurrently
type ParallelTaskRunner = core.ParallelTaskRunner

// TaskWithResult and ReplyWithResult are the halves of PostTaskAndReplyWithResult
type (
	TaskWithResult[T any]  = core.TaskWithResult[T]
	ReplyWithResult[T any] = core.ReplyWithResult[T]
)

// RepeatingTaskHandle controls the lifecycle of a repeating task
type RepeatingTaskHandle = core.RepeatingTaskHandle

// ThreadPool is re-exported for type compatibility
type ThreadPool = core.ThreadPool

// Priority queue building blocks
type (
	SortKey            = core.SortKey
	Sequence           = core.Sequence
	SequenceAndSortKey = core.SequenceAndSortKey
	PriorityQueue      = core.PriorityQueue
	Transaction        = core.Transaction
)

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsBestEffort   = core.TraitsBestEffort
	TraitsUserVisible  = core.TraitsUserVisible
)

var (
	NewPriorityQueue                = core.NewPriorityQueue
	NewPriorityQueueWithPredecessor = core.NewPriorityQueueWithPredecessor
	NewSequence                     = core.NewSequence
	NewSortKey                      = core.NewSortKey
)

// NewSequencedTaskRunner creates a new SequencedTaskRunner with the given thread pool.
func NewSequencedTaskRunner(pool ThreadPool) *SequencedTaskRunner {
	return core.NewSequencedTaskRunner(pool)
}

// NewParallelTaskRunner creates a runner that runs at most maxConcurrency tasks at once.
func NewParallelTaskRunner(pool ThreadPool, maxConcurrency int) *ParallelTaskRunner {
	return core.NewParallelTaskRunner(pool, maxConcurrency)
}

// GetCurrentTaskRunner retrieves the current TaskRunner from context
var GetCurrentTaskRunner = core.GetCurrentTaskRunner
