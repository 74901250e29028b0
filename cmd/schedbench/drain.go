package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-task-scheduler/core"
)

func DrainCommand() *cli.Command {
	return &cli.Command{
		Name:   "drain",
		Usage:  "Push sample sequences into a bare priority queue and print the drain order",
		Action: DrainAction,
	}
}

func DrainAction(c *cli.Context) error {
	var notified atomic.Int64
	queue := core.NewPriorityQueue(func() { notified.Add(1) })

	samples := []core.SortKey{
		{Priority: core.TaskPriorityUserBlocking, Sequenced: 1},
		{Priority: core.TaskPriorityBestEffort, Sequenced: 2},
		{Priority: core.TaskPriorityUserBlocking, Sequenced: 3},
	}

	txn := queue.BeginTransaction()
	for _, key := range samples {
		seq := core.NewSequence(core.TaskTraits{Priority: key.Priority})
		seq.PushTask(func(ctx context.Context) {}, core.TaskTraits{Priority: key.Priority})
		if err := txn.Push(core.SequenceAndSortKey{Sequence: seq, SortKey: key}); err != nil {
			txn.Close()
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
	}
	txn.Close()
	fmt.Printf("pushed=%d notifications=%d\n", len(samples), notified.Load())

	txn = queue.BeginTransaction()
	defer txn.Close()
	for !txn.IsEmpty() {
		entry, err := txn.Pop()
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		fmt.Printf("(%s, %d)\n", entry.SortKey.Priority, entry.SortKey.Sequenced)
	}
	return nil
}
