package core_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	taskscheduler "github.com/Swind/go-task-scheduler"
	"github.com/Swind/go-task-scheduler/core"
)

func waitIdle(t *testing.T, runners ...*core.SequencedTaskRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range runners {
		if err := r.WaitIdle(ctx); err != nil {
			t.Fatalf("WaitIdle failed: %v", err)
		}
	}
}

// TestSequencedTaskRunner_FIFO verifies tasks of one runner run in posting order
// Given: a 4-worker pool and a runner with 500 tasks
// When: all tasks complete
// Then: they ran in exactly the order they were posted
func TestSequencedTaskRunner_FIFO(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 4)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewSequencedTaskRunner(pool)

	// Act
	var order []int
	for i := range 500 {
		runner.PostTask(func(ctx context.Context) {
			order = append(order, i)
		})
	}
	waitIdle(t, runner)

	// Assert
	if len(order) != 500 {
		t.Fatalf("executed %d tasks, want 500", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

// TestSequencedTaskRunner_ConcurrentPostTask verifies concurrent producers
// Given: 100 goroutines each posting 100 tasks to one runner on an 8-worker pool
// When: all tasks are posted and WaitIdle returns
// Then: all 10000 tasks execute exactly once and never concurrently
func TestSequencedTaskRunner_ConcurrentPostTask(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 8)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewSequencedTaskRunner(pool)

	const numGoroutines = 100
	const tasksPerGoroutine = 100

	var executed atomic.Int64
	var maxRunning atomic.Int32
	var wg sync.WaitGroup

	// Act
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range tasksPerGoroutine {
				runner.PostTask(func(ctx context.Context) {
					if n := runner.GetRunningCount(); n > maxRunning.Load() {
						maxRunning.Store(n)
					}
					executed.Add(1)
				})
			}
		}()
	}
	wg.Wait()
	waitIdle(t, runner)

	// Assert
	if got := executed.Load(); got != numGoroutines*tasksPerGoroutine {
		t.Errorf("tasks executed: got = %d, want = %d", got, numGoroutines*tasksPerGoroutine)
	}
	if got := maxRunning.Load(); got != 1 {
		t.Errorf("max running count = %d, want 1", got)
	}
	if got := runner.GetRunningCount(); got != 0 {
		t.Errorf("final runningCount: got = %d, want = 0", got)
	}
}

// TestSequencedTaskRunner_PriorityAcrossRunners verifies the queue picks sequences by priority
// Given: a best-effort runner and a user-blocking runner with tasks posted before the pool starts
// When: a single-worker pool starts
// Then: the user-blocking runner's tasks run before the best-effort runner's
func TestSequencedTaskRunner_PriorityAcrossRunners(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 1)
	defer pool.Stop()

	low := core.NewSequencedTaskRunnerWithTraits(pool, core.TraitsBestEffort())
	high := core.NewSequencedTaskRunnerWithTraits(pool, core.TraitsUserBlocking())

	var mu sync.Mutex
	var results []string
	record := func(name string) core.Task {
		return func(ctx context.Context) {
			mu.Lock()
			results = append(results, name)
			mu.Unlock()
		}
	}
	low.PostTask(record("low-1"))
	low.PostTask(record("low-2"))
	high.PostTask(record("high-1"))
	high.PostTask(record("high-2"))

	// Act
	pool.Start(context.Background())
	waitIdle(t, low, high)

	// Assert
	want := []string{"high-1", "high-2", "low-1", "low-2"}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("Step %d: got %s, want %s", i, results[i], want[i])
		}
	}
}

func TestSequencedTaskRunner_ContextCarriesRunner(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewSequencedTaskRunner(pool)

	got := make(chan core.TaskRunner, 1)
	runner.PostTask(func(ctx context.Context) {
		got <- core.GetCurrentTaskRunner(ctx)
	})

	select {
	case r := <-got:
		if r != runner {
			t.Errorf("GetCurrentTaskRunner() = %v, want runner", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

// TestSequencedTaskRunner_DelayedTask verifies delayed posting
// Given: a task posted with a 50ms delay
// When: the delay elapses
// Then: the task runs no earlier than the delay
func TestSequencedTaskRunner_DelayedTask(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewSequencedTaskRunner(pool)

	start := time.Now()
	ran := make(chan time.Duration, 1)
	runner.PostDelayedTask(func(ctx context.Context) {
		ran <- time.Since(start)
	}, 50*time.Millisecond)

	select {
	case elapsed := <-ran:
		if elapsed < 50*time.Millisecond {
			t.Errorf("delayed task ran after %v, want >= 50ms", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task did not run")
	}
}

// TestSequencedTaskRunner_RepeatingTask verifies repeating tasks and Stop
// Given: a task repeating every 10ms
// When: it has run at least 3 times and the handle is stopped
// Then: it stops running
func TestSequencedTaskRunner_RepeatingTask(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewSequencedTaskRunner(pool)

	var count atomic.Int32
	handle := runner.PostRepeatingTask(func(ctx context.Context) {
		count.Add(1)
	}, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if count.Load() < 3 {
		t.Fatalf("repeating task ran %d times, want >= 3", count.Load())
	}

	handle.Stop()
	if !handle.IsStopped() {
		t.Error("IsStopped() = false after Stop")
	}
	time.Sleep(30 * time.Millisecond)
	settled := count.Load()
	time.Sleep(50 * time.Millisecond)
	if got := count.Load(); got != settled {
		t.Errorf("repeating task ran %d more times after Stop", got-settled)
	}
}

// TestSequencedTaskRunner_ShutdownSkipsQueuedTasks verifies runner shutdown
// Given: a runner whose first task blocks while more tasks are queued
// When: the runner is shut down and the first task is released
// Then: the queued tasks are skipped and new posts are ignored
func TestSequencedTaskRunner_ShutdownSkipsQueuedTasks(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewSequencedTaskRunner(pool)

	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32
	runner.PostTask(func(ctx context.Context) {
		close(started)
		<-release
	})
	for range 5 {
		runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	}

	<-started
	runner.Shutdown()
	close(release)
	runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	waitIdle(t, runner)

	if !runner.IsClosed() {
		t.Error("IsClosed() = false, want true")
	}
	if got := ran.Load(); got != 0 {
		t.Errorf("%d tasks ran after Shutdown, want 0", got)
	}
	if stats := runner.Stats(); !stats.Closed || stats.Pending != 0 {
		t.Errorf("Stats() = %+v, want closed with nothing pending", stats)
	}
}

// TestSequencedTaskRunner_WaitIdleAfterPoolStop verifies dropped tasks leave the pending count
// Given: a runner with tasks queued on a pool that never started
// When: the pool is stopped and its queue cleared
// Then: WaitIdle returns without waiting for the context and nothing is pending
func TestSequencedTaskRunner_WaitIdleAfterPoolStop(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	runner := core.NewSequencedTaskRunner(pool)
	for range 5 {
		runner.PostTask(func(ctx context.Context) {})
	}
	if got := runner.PendingTaskCount(); got != 5 {
		t.Fatalf("PendingTaskCount() before Stop = %d, want 5", got)
	}

	// Act
	pool.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := runner.WaitIdle(ctx)

	// Assert
	if err != nil {
		t.Errorf("WaitIdle after pool Stop = %v, want nil", err)
	}
	if got := runner.PendingTaskCount(); got != 0 {
		t.Errorf("PendingTaskCount() after Stop = %d, want 0", got)
	}
}
