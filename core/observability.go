package core

// RunnerStats represents runtime observability state for a task runner.
type RunnerStats struct {
	Name     string
	Priority TaskPriority
	Pending  int
	Running  int
	Closed   bool
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID              string
	Workers         int
	Queued          int
	QueuedSequences int
	Active          int
	Delayed         int
	Running         bool
}

// Stats returns a snapshot of the runner. The name is its sequence ID.
func (r *SequencedTaskRunner) Stats() RunnerStats {
	return RunnerStats{
		Name:     r.sequence.ID().String(),
		Priority: r.sequence.Traits().Priority,
		Pending:  r.PendingTaskCount(),
		Running:  int(r.GetRunningCount()),
		Closed:   r.IsClosed(),
	}
}
