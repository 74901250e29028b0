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

func waitParallelIdle(t *testing.T, r *core.ParallelTaskRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
}

// TestParallelTaskRunner_RespectsMaxConcurrency verifies the concurrency cap
// Given: a runner limited to 3 on an 8-worker pool
// When: 60 sleeping tasks are posted
// Then: all run and never more than 3 at a time
func TestParallelTaskRunner_RespectsMaxConcurrency(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 8)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewParallelTaskRunner(pool, 3)

	var current, peak, executed atomic.Int32

	// Act
	for range 60 {
		runner.PostTask(func(ctx context.Context) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			executed.Add(1)
		})
	}
	waitParallelIdle(t, runner)

	// Assert
	if got := executed.Load(); got != 60 {
		t.Errorf("executed %d tasks, want 60", got)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
	if got := runner.RunningTaskCount(); got != 0 {
		t.Errorf("RunningTaskCount() after idle = %d, want 0", got)
	}
}

// TestParallelTaskRunner_DispatchesByPriority verifies queued tasks leave by SortKey
// Given: a runner limited to 1 whose only slot is held by a blocking task
// When: best-effort then user-blocking tasks are queued and the slot is released
// Then: the user-blocking tasks run first, each band in posting order
func TestParallelTaskRunner_DispatchesByPriority(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 4)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewParallelTaskRunner(pool, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	runner.PostTask(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	var mu sync.Mutex
	var order []string
	record := func(name string) core.Task {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	runner.PostTaskWithTraits(record("low-1"), core.TraitsBestEffort())
	runner.PostTaskWithTraits(record("low-2"), core.TraitsBestEffort())
	runner.PostTaskWithTraits(record("high-1"), core.TraitsUserBlocking())
	runner.PostTaskWithTraits(record("high-2"), core.TraitsUserBlocking())
	if got := runner.QueuedTaskCount(); got != 4 {
		t.Errorf("QueuedTaskCount() = %d, want 4", got)
	}

	// Act
	close(release)
	waitParallelIdle(t, runner)

	// Assert
	want := []string{"high-1", "high-2", "low-1", "low-2"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Step %d: got %s, want %s", i, order[i], want[i])
		}
	}
}

func TestParallelTaskRunner_ContextCarriesRunner(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewParallelTaskRunner(pool, 2)

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

// TestParallelTaskRunner_ShutdownDiscardsQueued verifies runner shutdown
// Given: a runner limited to 1 with a blocking task running and 5 queued
// When: the runner shuts down and the blocking task is released
// Then: no queued task runs, new posts are ignored and nothing is pending
func TestParallelTaskRunner_ShutdownDiscardsQueued(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewParallelTaskRunner(pool, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	runner.PostTask(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started
	var ran atomic.Int32
	for range 5 {
		runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	}

	// Act
	runner.Shutdown()
	runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	close(release)
	waitParallelIdle(t, runner)

	// Assert
	if got := ran.Load(); got != 0 {
		t.Errorf("%d tasks ran after Shutdown, want 0", got)
	}
	if got := runner.QueuedTaskCount(); got != 0 {
		t.Errorf("QueuedTaskCount() = %d, want 0", got)
	}
	if stats := runner.Stats(); !stats.Closed || stats.Pending != 0 || stats.Running != 0 {
		t.Errorf("Stats() = %+v, want closed and idle", stats)
	}
}

// TestParallelTaskRunner_WaitIdleAfterPoolStop verifies dropped tasks are released
// Given: a runner limited to 2 with 5 tasks on a pool that never started
// When: the pool is stopped
// Then: dispatched and queued tasks are all released and WaitIdle returns
func TestParallelTaskRunner_WaitIdleAfterPoolStop(t *testing.T) {
	// Arrange
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	runner := core.NewParallelTaskRunner(pool, 2)
	for range 5 {
		runner.PostTask(func(ctx context.Context) {})
	}
	if got := runner.RunningTaskCount(); got != 2 {
		t.Fatalf("RunningTaskCount() before Stop = %d, want 2", got)
	}

	// Act
	pool.Stop()

	// Assert
	waitParallelIdle(t, runner)
	if got := runner.RunningTaskCount(); got != 0 {
		t.Errorf("RunningTaskCount() after Stop = %d, want 0", got)
	}
	if got := runner.QueuedTaskCount(); got != 0 {
		t.Errorf("QueuedTaskCount() after Stop = %d, want 0", got)
	}
}

func TestParallelTaskRunner_RepeatingTask(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()
	runner := core.NewParallelTaskRunner(pool, 2)

	var count atomic.Int32
	handle := runner.PostRepeatingTask(func(ctx context.Context) {
		count.Add(1)
	}, 5*time.Millisecond)
	defer handle.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if count.Load() < 3 {
		t.Fatalf("repeating task ran %d times, want >= 3", count.Load())
	}
}

func TestNewParallelTaskRunner_Panics(t *testing.T) {
	pool := taskscheduler.NewGoroutineThreadPool("test-pool", 1)
	defer pool.Stop()

	for name, fn := range map[string]func(){
		"nil pool":       func() { core.NewParallelTaskRunner(nil, 1) },
		"zero slots":     func() { core.NewParallelTaskRunner(pool, 0) },
		"too many slots": func() { core.NewParallelTaskRunner(pool, 10001) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: did not panic", name)
				}
			}()
			fn()
		}()
	}
}
