package core

import (
	"context"
	"time"
)

// TaskWithResult is a task that produces a value for its reply.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the value and error produced by a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// PostTaskAndReply Internal Helpers
// =============================================================================

// postTaskAndReplyInternalWithTraits runs task on targetRunner and, once it
// returns, posts reply to replyRunner. A task that panics never posts its
// reply; the panic reaches the worker's PanicHandler as usual.
func postTaskAndReplyInternalWithTraits(
	targetRunner TaskRunner,
	task Task,
	taskTraits TaskTraits,
	reply Task,
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	if replyRunner == nil {
		targetRunner.PostTaskWithTraits(task, taskTraits)
		return
	}

	targetRunner.PostTaskWithTraits(func(ctx context.Context) {
		task(ctx)
		replyRunner.PostTaskWithTraits(reply, replyTraits)
	}, taskTraits)
}

// PostTaskAndReply runs task on this runner, then posts reply to replyRunner.
func (r *SequencedTaskRunner) PostTaskAndReply(task Task, reply Task, replyRunner TaskRunner) {
	traits := r.sequence.Traits()
	postTaskAndReplyInternalWithTraits(r, task, traits, reply, traits, replyRunner)
}

// PostTaskAndReplyWithTraits allows different traits for the task and the reply.
func (r *SequencedTaskRunner) PostTaskAndReplyWithTraits(
	task Task,
	taskTraits TaskTraits,
	reply Task,
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	postTaskAndReplyInternalWithTraits(r, task, taskTraits, reply, replyTraits, replyRunner)
}

// =============================================================================
// Generic PostTaskAndReply with Result
// =============================================================================

// PostTaskAndReplyWithResult runs task on targetRunner and hands its result
// to reply on replyRunner.
//
// The task always finishes before the reply is posted, so the reply sees the
// values the task wrote.
//
// Example:
//
//	PostTaskAndReplyWithResult(
//	    backgroundRunner,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	    uiRunner,
//	)
func PostTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	PostTaskAndReplyWithResultAndTraits(
		targetRunner,
		task,
		DefaultTaskTraits(),
		reply,
		DefaultTaskTraits(),
		replyRunner,
	)
}

// PostTaskAndReplyWithResultAndTraits is PostTaskAndReplyWithResult with
// separate traits, e.g. best-effort work whose reply is user-blocking.
func PostTaskAndReplyWithResultAndTraits[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	taskTraits TaskTraits,
	reply ReplyWithResult[T],
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	var result T
	var err error

	postTaskAndReplyInternalWithTraits(
		targetRunner,
		func(ctx context.Context) { result, err = task(ctx) },
		taskTraits,
		func(ctx context.Context) { reply(ctx, result, err) },
		replyTraits,
		replyRunner,
	)
}

// =============================================================================
// Delayed Task and Reply
// =============================================================================

// PostDelayedTaskAndReplyWithResult delays the task by delay. The reply is
// posted as soon as the task finishes.
func PostDelayedTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	delay time.Duration,
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	var result T
	var err error

	wrapped := func(ctx context.Context) {
		result, err = task(ctx)
		if replyRunner != nil {
			replyRunner.PostTaskWithTraits(func(ctx context.Context) {
				reply(ctx, result, err)
			}, DefaultTaskTraits())
		}
	}
	targetRunner.PostDelayedTaskWithTraits(wrapped, delay, DefaultTaskTraits())
}
