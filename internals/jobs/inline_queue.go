package jobs

import (
	"context"
	"fmt"
	"sync"

	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
)

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("job panicked: %v", e.value) }

// InlineQueue runs each job synchronously in the caller's goroutine.
// Errors are logged, not returned, to keep Enqueue's contract fire-and-forget.
type InlineQueue struct{}

func (InlineQueue) Enqueue(ctx context.Context, job Job) error {
	err := safeRun(ctx, job)
	metrics.RecordJobRun(job.Name(), err == nil)
	if err != nil {
		logger.L().Warn().Err(err).Str("job", job.Name()).Msg("inline job failed")
	}
	return nil
}

// ManualQueue records jobs until Drain runs them.
type ManualQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func (q *ManualQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

func (q *ManualQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}

// Drain runs queued jobs in order, including jobs they enqueue, and returns
// the errors they produced.
func (q *ManualQueue) Drain(ctx context.Context) []error {
	var errs []error
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return errs
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if err := safeRun(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
}
