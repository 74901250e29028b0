package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedTask is a task waiting for its run time before being posted to Target.
type DelayedTask struct {
	RunAt  time.Time
	Task   Task
	Traits TaskTraits
	Target TaskRunner
	seq    uint64 // ties on RunAt keep posting order
}

type delayedTaskHeap []*DelayedTask

func (h delayedTaskHeap) Len() int { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool {
	if h[i].RunAt.Equal(h[j].RunAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].RunAt.Before(h[j].RunAt)
}
func (h delayedTaskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedTaskHeap) Push(x any) { *h = append(*h, x.(*DelayedTask)) }

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}

// DelayManager holds delayed tasks in a timer heap and posts each one to its
// target runner once it is due. Due tasks are posted outside the lock.
type DelayManager struct {
	mu      sync.Mutex
	pq      delayedTaskHeap
	nextSeq uint64
	stopped bool

	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	go dm.loop()
	return dm
}

func (dm *DelayManager) AddDelayedTask(task Task, delay time.Duration, traits TaskTraits, target TaskRunner) {
	dm.mu.Lock()
	if dm.stopped {
		dm.mu.Unlock()
		return
	}
	item := &DelayedTask{
		RunAt:  time.Now().Add(delay),
		Task:   task,
		Traits: traits,
		Target: target,
		seq:    dm.nextSeq,
	}
	dm.nextSeq++
	heap.Push(&dm.pq, item)
	isFront := dm.pq[0] == item
	dm.mu.Unlock()

	if isFront {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		wait, ok := dm.nextWait()
		if !ok {
			wait = time.Hour
		}
		timer.Reset(wait)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.processExpiredTasks(time.Now())
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextWait returns how long until the earliest task is due, or false if none is pending.
func (dm *DelayManager) nextWait() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(dm.pq) == 0 {
		return 0, false
	}
	return max(time.Until(dm.pq[0].RunAt), 0), true
}

func (dm *DelayManager) processExpiredTasks(now time.Time) {
	dm.mu.Lock()
	var expired []*DelayedTask
	for len(dm.pq) > 0 && !dm.pq[0].RunAt.After(now) {
		expired = append(expired, heap.Pop(&dm.pq).(*DelayedTask))
	}
	dm.mu.Unlock()

	for _, item := range expired {
		item.Target.PostTaskWithTraits(item.Task, item.Traits)
	}
}

// Stop halts the timer loop and drops every pending task.
func (dm *DelayManager) Stop() {
	dm.cancel()

	dm.mu.Lock()
	dm.stopped = true
	dm.pq = nil
	dm.mu.Unlock()
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
