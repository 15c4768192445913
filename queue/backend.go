// Package queue is the asynchronous job backend: a Redis-backed queue with
// typed connectivity/domain errors, and the worker that drains it.
package queue

import (
	"context"
	"time"

	"docintake/types"
)

// Backend is what the job manager needs from a queue. Every error returned
// is a *ConnectivityError or a *DomainError.
type Backend interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, req types.JobRequest) (string, error)
	// Status returns nil, nil when the backend has no record of id.
	Status(ctx context.Context, id string) (*types.Job, error)
	Stats(ctx context.Context) (Stats, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	CleanOld(ctx context.Context, olderThan time.Duration) (int, error)
}

// WorkQueue is the worker-side view of a backend.
type WorkQueue interface {
	Dequeue(ctx context.Context, wait time.Duration) (*types.Job, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id string, result types.JobResult) error
	Fail(ctx context.Context, id string, reason string) error
	Status(ctx context.Context, id string) (*types.Job, error)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Reachable bool  `json:"reachable"`
	Paused    bool  `json:"paused"`
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// JobListener is told about every job that reaches a terminal state.
type JobListener interface {
	JobFinished(ctx context.Context, job types.Job)
}

// ListenerFunc adapts a function to JobListener.
type ListenerFunc func(ctx context.Context, job types.Job)

func (f ListenerFunc) JobFinished(ctx context.Context, job types.Job) { f(ctx, job) }

// Listeners fans a notification out to each non-nil listener in order.
type Listeners []JobListener

func (ls Listeners) JobFinished(ctx context.Context, job types.Job) {
	for _, l := range ls {
		if l != nil {
			l.JobFinished(ctx, job)
		}
	}
}
