// Package jobs runs deferred work after the triggering transaction commits.
// Delivery is at-least-once: a failed job is retried with backoff up to
// MaxAttempts, and the cron sweeps pick up whatever is still left behind.
package jobs

import (
	"context"
	"errors"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Paced jobs wait on the pool's rate limiter before running (outbound mail).
type Paced interface {
	Paced() bool
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Func adapts a closure to Job.
type Func struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f Func) Name() string                  { return f.JobName }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }
