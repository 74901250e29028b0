package core

import "sync/atomic"

// SortKey decides the order in which sequences leave a PriorityQueue.
//
// Keys are totally ordered: a higher Priority is selected first, and within the
// same Priority the key with the smaller Sequenced value is selected first (FIFO
// within a band). The zero SortKey has the lowest priority and a zero sequencing
// value; it is never assigned to a real entry.
type SortKey struct {
	Priority  TaskPriority
	Sequenced uint64
}

var sequencingClock atomic.Uint64

// NextSequencingValue returns a process-wide, strictly increasing sequencing value.
// The first value handed out is 1 so that it never collides with the zero SortKey.
func NextSequencingValue() uint64 {
	return sequencingClock.Add(1)
}

// NewSortKey stamps priority with the next sequencing value.
func NewSortKey(priority TaskPriority) SortKey {
	return SortKey{Priority: priority, Sequenced: NextSequencingValue()}
}

// IsZero reports whether k is the empty sentinel key.
func (k SortKey) IsZero() bool {
	return k == SortKey{}
}

// Compare returns +1 if k is selected before other, -1 if after, 0 if equal.
func (k SortKey) Compare(other SortKey) int {
	switch {
	case k.Priority > other.Priority:
		return 1
	case k.Priority < other.Priority:
		return -1
	case k.Sequenced < other.Sequenced:
		return 1
	case k.Sequenced > other.Sequenced:
		return -1
	default:
		return 0
	}
}

// Less reports whether k is selected after other.
func (k SortKey) Less(other SortKey) bool {
	return k.Compare(other) < 0
}
