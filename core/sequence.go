package core

import (
	"sync"

	"github.com/google/uuid"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskItem is a task waiting in a Sequence together with its traits and
// the sequencing value it was stamped with when posted.
type TaskItem struct {
	Task      Task
	Traits    TaskTraits
	Sequenced uint64
}

// Sequence is a FIFO of tasks that must run one at a time, in posting order.
//
// A Sequence is the unit the PriorityQueue orders: while it has pending work it
// sits in exactly one queue (or is held by exactly one worker). The task at the
// front stays in place while it runs, so a concurrent PushTask never sees the
// sequence as empty and never enqueues it a second time.
type Sequence struct {
	id     uuid.UUID
	traits TaskTraits
	onDrop func(n int)

	mu    sync.Mutex
	tasks []TaskItem
}

func NewSequence(traits TaskTraits) *Sequence {
	return NewSequenceWithDropHandler(traits, nil)
}

// NewSequenceWithDropHandler creates a Sequence whose owner is told how many
// tasks were discarded whenever a scheduler drops them unrun.
func NewSequenceWithDropHandler(traits TaskTraits, onDrop func(n int)) *Sequence {
	return &Sequence{
		id:     uuid.New(),
		traits: traits,
		onDrop: onDrop,
		tasks:  make([]TaskItem, 0, defaultQueueCap),
	}
}

func (s *Sequence) ID() uuid.UUID      { return s.id }
func (s *Sequence) Traits() TaskTraits { return s.traits }

// PushTask appends a task and reports whether the sequence was empty before,
// in which case the caller must enqueue it.
func (s *Sequence) PushTask(t Task, traits TaskTraits) bool {
	item := TaskItem{Task: t, Traits: traits, Sequenced: NextSequencingValue()}

	s.mu.Lock()
	defer s.mu.Unlock()
	wasEmpty := len(s.tasks) == 0
	s.tasks = append(s.tasks, item)
	return wasEmpty
}

// TakeTask returns the front task without removing it. The caller must
// call DidRunTask once the task has run.
func (s *Sequence) TakeTask() (TaskItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return TaskItem{}, false
	}
	return s.tasks[0], true
}

// DidRunTask removes the front task and reports whether more tasks remain.
func (s *Sequence) DidRunTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return false
	}
	// Zero out the element in the underlying array to prevent memory leak
	s.tasks[0] = TaskItem{}
	s.tasks = s.tasks[1:]
	s.maybeCompactLocked()
	return len(s.tasks) > 0
}

// SortKey derives the key from the front task: its priority and the
// sequencing value it was posted with. An empty sequence yields the zero key.
func (s *Sequence) SortKey() SortKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return SortKey{}
	}
	front := s.tasks[0]
	return SortKey{Priority: front.Traits.Priority, Sequenced: front.Sequenced}
}

func (s *Sequence) maybeCompactLocked() {
	n := len(s.tasks)
	c := cap(s.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		s.tasks = make([]TaskItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, s.tasks)
	s.tasks = newSlice
}

func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Sequence) IsEmpty() bool {
	return s.Len() == 0
}

// Clear drops every pending task, releases their references and returns how
// many were dropped.
func (s *Sequence) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	s.tasks = make([]TaskItem, 0, defaultQueueCap)
	return n
}

// drop clears the sequence on behalf of a scheduler and reports the count to
// the drop handler.
func (s *Sequence) drop() int {
	n := s.Clear()
	if n > 0 && s.onDrop != nil {
		s.onDrop(n)
	}
	return n
}

// SequenceAndSortKey is one PriorityQueue entry.
type SequenceAndSortKey struct {
	Sequence *Sequence
	SortKey  SortKey
}

// NewSequenceAndSortKey pairs seq with its current SortKey.
func NewSequenceAndSortKey(seq *Sequence) SequenceAndSortKey {
	return SequenceAndSortKey{Sequence: seq, SortKey: seq.SortKey()}
}

// IsNull reports whether the entry carries no sequence.
func (e SequenceAndSortKey) IsNull() bool {
	return e.Sequence == nil
}
